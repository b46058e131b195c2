package chat

import (
	"fmt"
	"strings"
	"time"
)

// DefaultName is assigned to every freshly created conversation.
const DefaultName = "New Chat"

// Conversation is a named, ordered transcript owned by a single user.
type Conversation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	History   []Message `json:"history"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserMessages returns the user-authored turns in order.
func (c *Conversation) UserMessages() []string {
	out := make([]string, 0, len(c.History))
	for _, msg := range c.History {
		if msg.Role == RoleUser {
			out = append(out, msg.Content)
		}
	}
	return out
}

// Clone returns a deep copy safe to hand out of a locked session.
func (c *Conversation) Clone() Conversation {
	cp := *c
	cp.History = append([]Message(nil), c.History...)
	return cp
}

// IsDefaultName reports whether a name is still an untouched placeholder.
func IsDefaultName(name string) bool {
	if name == "New Chat" || name == "New chat" || strings.HasPrefix(name, "Chat ") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(name), "new chat")
}

// ConversationSet is an insertion-ordered collection of conversations.
type ConversationSet struct {
	order []string
	items map[string]*Conversation
}

// NewConversationSet returns an empty set.
func NewConversationSet() *ConversationSet {
	return &ConversationSet{items: make(map[string]*Conversation)}
}

// Add appends c, replacing any conversation with the same id in place.
func (s *ConversationSet) Add(c *Conversation) {
	if _, ok := s.items[c.ID]; !ok {
		s.order = append(s.order, c.ID)
	}
	s.items[c.ID] = c
}

// Get looks up a conversation by id.
func (s *ConversationSet) Get(id string) (*Conversation, bool) {
	c, ok := s.items[id]
	return c, ok
}

// Remove deletes a conversation and reports whether it existed.
func (s *ConversationSet) Remove(id string) bool {
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// IDs returns conversation ids oldest first.
func (s *ConversationSet) IDs() []string {
	return append([]string(nil), s.order...)
}

// Len returns the number of conversations.
func (s *ConversationSet) Len() int {
	return len(s.order)
}

// First returns the oldest conversation, if any.
func (s *ConversationSet) First() (*Conversation, bool) {
	if len(s.order) == 0 {
		return nil, false
	}
	return s.items[s.order[0]], true
}

// All returns the conversations in order. The pointers alias the set.
func (s *ConversationSet) All() []*Conversation {
	out := make([]*Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// UniqueName returns name, or name suffixed with " (n)" so that it does not
// collide with any other conversation's current name.
func (s *ConversationSet) UniqueName(name, exceptID string) string {
	taken := make(map[string]struct{}, len(s.items))
	for id, c := range s.items {
		if id == exceptID {
			continue
		}
		taken[c.Name] = struct{}{}
	}
	if _, ok := taken[name]; !ok {
		return name
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", name, n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

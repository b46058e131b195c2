package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cycore-edu/cycore/backend/internal/game"
	"github.com/cycore-edu/cycore/backend/internal/identity"
	"github.com/cycore-edu/cycore/backend/internal/logger"
	"github.com/cycore-edu/cycore/backend/internal/model/chat"
	"github.com/cycore-edu/cycore/backend/internal/store"
	"github.com/cycore-edu/cycore/backend/internal/trigger"
)

var ErrConversationNotFound = errors.New("conversation not found")

// Session is the per-user conversation state. It must only be touched
// inside Service.Do.
type Session struct {
	mu     sync.Mutex
	loaded bool

	User     identity.User
	Convos   *chat.ConversationSet
	ActiveID string
	Game     game.State
	Counters trigger.Counters
}

// Summary is the list view of a conversation.
type Summary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Service encapsulates conversation state management.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	repo store.Repository
	log  *logger.Logger
	now  func() time.Time
}

// NewService creates the session registry. repo may be nil, in which case
// nothing is persisted.
func NewService(repo store.Repository, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		sessions: make(map[string]*Session),
		repo:     repo,
		log:      log.With("component", "chat"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Do runs fn with exclusive access to the user's session, loading it on
// first use.
func (s *Service) Do(ctx context.Context, user identity.User, fn func(*Session) error) error {
	sess := s.session(user)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if !sess.loaded {
		s.load(ctx, sess)
	}
	return fn(sess)
}

// Forget drops the cached session, e.g. on sign-out.
func (s *Service) Forget(userID string) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}

// SessionCount reports how many sessions are cached.
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Service) session(user identity.User) *Session {
	s.mu.RLock()
	sess, ok := s.sessions[user.ID]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok = s.sessions[user.ID]; ok {
		return sess
	}
	sess = &Session{User: user, Convos: chat.NewConversationSet()}
	s.sessions[user.ID] = sess
	return sess
}

func (s *Service) load(ctx context.Context, sess *Session) {
	sess.loaded = true

	if s.persistent(sess) {
		s.mergeStoredUser(ctx, sess)
		if err := s.repo.UpsertUser(ctx, &store.User{
			ID:          sess.User.ID,
			DisplayName: sess.User.DisplayName,
			LastSeenAt:  s.now(),
		}); err != nil {
			s.log.Warn("failed to record user", "user_id", sess.User.ID, "error", err)
		}

		convs, err := s.repo.LoadConversations(ctx, sess.User.ID)
		if err != nil {
			s.log.Warn("failed to load conversations", "user_id", sess.User.ID, "error", err)
		}
		for i := range convs {
			conv := convs[i]
			sess.Convos.Add(&conv)
		}
		s.log.Debug("session loaded", "user_id", sess.User.ID, "conversations", len(convs))
	}

	if first, ok := sess.Convos.First(); ok {
		sess.ActiveID = first.ID
		return
	}
	sess.ActiveID = s.add(sess)
}

// mergeStoredUser fills the display name from the stored profile when the
// token did not carry one. Identity falls back to the subject in that case.
func (s *Service) mergeStoredUser(ctx context.Context, sess *Session) {
	stored, err := s.repo.GetUser(ctx, sess.User.ID)
	if err != nil {
		s.log.Warn("failed to read user profile", "user_id", sess.User.ID, "error", err)
		return
	}
	if stored == nil || stored.DisplayName == "" {
		return
	}
	if sess.User.DisplayName == "" || sess.User.DisplayName == sess.User.ID {
		sess.User.DisplayName = stored.DisplayName
	}
}

func (s *Service) persistent(sess *Session) bool {
	return s.repo != nil && sess.User.Authenticated
}

func (s *Service) add(sess *Session) string {
	id := newConversationID()
	for {
		if _, taken := sess.Convos.Get(id); !taken {
			break
		}
		id = newConversationID()
	}
	sess.Convos.Add(&chat.Conversation{ID: id, Name: chat.DefaultName, CreatedAt: s.now()})
	return id
}

func newConversationID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Create adds an empty conversation and makes it active.
func (s *Service) Create(ctx context.Context, sess *Session) string {
	id := s.add(sess)
	sess.ActiveID = id
	s.Sync(ctx, sess)
	return id
}

// Rename sets a trimmed name. An empty name keeps the current one.
func (s *Service) Rename(ctx context.Context, sess *Session, id, name string) error {
	conv, ok := sess.Convos.Get(id)
	if !ok {
		return ErrConversationNotFound
	}
	if name = strings.TrimSpace(name); name == "" {
		return nil
	}
	conv.Name = name
	s.Sync(ctx, sess)
	return nil
}

// Delete removes a conversation. The set is never left empty and the
// active id always points at a member afterwards.
func (s *Service) Delete(ctx context.Context, sess *Session, id string) error {
	if _, ok := sess.Convos.Get(id); !ok {
		return ErrConversationNotFound
	}

	if s.persistent(sess) {
		if err := s.repo.DeleteConversation(ctx, sess.User.ID, id); err != nil {
			s.log.Warn("failed to delete stored conversation", "user_id", sess.User.ID, "conversation_id", id, "error", err)
		}
	}

	sess.Convos.Remove(id)
	if sess.ActiveID == id {
		sess.ActiveID = ""
	}
	s.Active(ctx, sess)
	s.Sync(ctx, sess)
	return nil
}

// List returns summaries oldest first.
func (s *Service) List(sess *Session) []Summary {
	out := make([]Summary, 0, sess.Convos.Len())
	for _, conv := range sess.Convos.All() {
		out = append(out, Summary{
			ID:           conv.ID,
			Name:         conv.Name,
			MessageCount: len(conv.History),
			CreatedAt:    conv.CreatedAt,
		})
	}
	return out
}

// FindEmpty returns the first conversation without history.
func (s *Service) FindEmpty(sess *Session) (string, bool) {
	for _, conv := range sess.Convos.All() {
		if len(conv.History) == 0 {
			return conv.ID, true
		}
	}
	return "", false
}

// Get returns a copy of a conversation.
func (s *Service) Get(sess *Session, id string) (chat.Conversation, error) {
	conv, ok := sess.Convos.Get(id)
	if !ok {
		return chat.Conversation{}, ErrConversationNotFound
	}
	return conv.Clone(), nil
}

// Activate makes id the active conversation.
func (s *Service) Activate(_ context.Context, sess *Session, id string) error {
	if _, ok := sess.Convos.Get(id); !ok {
		return ErrConversationNotFound
	}
	sess.ActiveID = id
	return nil
}

// Active returns the active conversation, repairing the active id when it
// no longer references a member.
func (s *Service) Active(ctx context.Context, sess *Session) *chat.Conversation {
	if conv, ok := sess.Convos.Get(sess.ActiveID); ok {
		return conv
	}
	if first, ok := sess.Convos.First(); ok {
		sess.ActiveID = first.ID
		return first
	}
	sess.ActiveID = s.add(sess)
	conv, _ := sess.Convos.Get(sess.ActiveID)
	return conv
}

// Append adds messages to a conversation's history.
func (s *Service) Append(sess *Session, id string, msgs ...chat.Message) error {
	conv, ok := sess.Convos.Get(id)
	if !ok {
		return ErrConversationNotFound
	}
	conv.History = append(conv.History, msgs...)
	return nil
}

// Sync writes the session's conversations to the repository. Failures are
// logged; in-memory state stays authoritative.
func (s *Service) Sync(ctx context.Context, sess *Session) {
	if !s.persistent(sess) {
		return
	}

	all := sess.Convos.All()
	convs := make([]chat.Conversation, 0, len(all))
	for _, conv := range all {
		convs = append(convs, conv.Clone())
	}
	if err := s.repo.SaveConversations(ctx, sess.User.ID, convs); err != nil {
		s.log.Error("failed to sync conversations", "user_id", sess.User.ID, "error", err)
	}
}

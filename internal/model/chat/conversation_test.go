package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationSetKeepsInsertionOrder(t *testing.T) {
	set := NewConversationSet()
	set.Add(&Conversation{ID: "b", Name: "B"})
	set.Add(&Conversation{ID: "a", Name: "A"})
	set.Add(&Conversation{ID: "c", Name: "C"})

	assert.Equal(t, []string{"b", "a", "c"}, set.IDs())

	require.True(t, set.Remove("a"))
	assert.False(t, set.Remove("a"))
	assert.Equal(t, []string{"b", "c"}, set.IDs())

	first, ok := set.First()
	require.True(t, ok)
	assert.Equal(t, "b", first.ID)
}

func TestConversationSetAddReplacesInPlace(t *testing.T) {
	set := NewConversationSet()
	set.Add(&Conversation{ID: "a", Name: "old"})
	set.Add(&Conversation{ID: "b"})
	set.Add(&Conversation{ID: "a", Name: "new"})

	assert.Equal(t, []string{"a", "b"}, set.IDs())
	got, _ := set.Get("a")
	assert.Equal(t, "new", got.Name)
}

func TestUniqueNameSkipsTakenSuffixes(t *testing.T) {
	set := NewConversationSet()
	set.Add(&Conversation{ID: "1", Name: "Phishing Basics"})
	set.Add(&Conversation{ID: "2", Name: "Phishing Basics (2)"})
	set.Add(&Conversation{ID: "3", Name: "New Chat"})

	assert.Equal(t, "Phishing Basics (3)", set.UniqueName("Phishing Basics", "3"))
	assert.Equal(t, "Wifi Safety", set.UniqueName("Wifi Safety", "3"))
	// A conversation never collides with its own name.
	assert.Equal(t, "Phishing Basics", set.UniqueName("Phishing Basics", "1"))
}

func TestIsDefaultName(t *testing.T) {
	for _, name := range []string{"New Chat", "New chat", "Chat 3", "new chat (2)"} {
		assert.True(t, IsDefaultName(name), name)
	}
	for _, name := range []string{"Phishing Basics", "Chatting", ""} {
		assert.False(t, IsDefaultName(name), name)
	}
}

func TestUserMessagesAndClone(t *testing.T) {
	conv := &Conversation{ID: "x", History: []Message{
		UserMessage("one"), AssistantMessage("reply"), UserMessage("two"),
	}}
	assert.Equal(t, []string{"one", "two"}, conv.UserMessages())

	cp := conv.Clone()
	cp.History[0].Content = "changed"
	assert.Equal(t, "one", conv.History[0].Content)
}

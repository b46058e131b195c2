package tutor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cycore-edu/cycore/backend/internal/analysis/guard"
	"github.com/cycore-edu/cycore/backend/internal/game"
	"github.com/cycore-edu/cycore/backend/internal/identity"
	"github.com/cycore-edu/cycore/backend/internal/model/chat"
	"github.com/cycore-edu/cycore/backend/internal/service/ai"
	chatservice "github.com/cycore-edu/cycore/backend/internal/service/chat"
	"github.com/cycore-edu/cycore/backend/internal/service/title"
	"github.com/cycore-edu/cycore/backend/internal/trigger"
)

type fakeGenerator struct {
	chunks  []string
	err     error
	prompts []string
}

func (f *fakeGenerator) Generate(_ context.Context, _, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return strings.Join(f.chunks, ""), nil
}

func (f *fakeGenerator) Stream(_ context.Context, _, prompt string, onDelta func(string)) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	for _, c := range f.chunks {
		onDelta(c)
	}
	return strings.Join(f.chunks, ""), nil
}

func (f *fakeGenerator) Name() string { return "fake" }

type harness struct {
	chats *chatservice.Service
	svc   *Service
	user  identity.User
}

// newHarness wires a tutor whose title service never calls the model, so
// generated names come from the deterministic fallback.
func newHarness(gen ai.Generator, opts ...Option) *harness {
	chats := chatservice.NewService(nil, nil)
	opts = append([]Option{WithCoin(trigger.Never)}, opts...)
	return &harness{
		chats: chats,
		svc:   NewService(chats, gen, title.NewService(nil, nil), nil, opts...),
		user:  identity.User{ID: "anon-test"},
	}
}

func (h *harness) turn(t *testing.T, text string) (TurnResult, []string) {
	t.Helper()
	var (
		result TurnResult
		deltas []string
	)
	err := h.chats.Do(context.Background(), h.user, func(sess *chatservice.Session) error {
		var err error
		result, err = h.svc.HandleTurn(context.Background(), sess, text, func(d string) {
			deltas = append(deltas, d)
		})
		return err
	})
	require.NoError(t, err)
	return result, deltas
}

func (h *harness) session(t *testing.T) (chat.Conversation, game.State, trigger.Counters) {
	t.Helper()
	var (
		conv     chat.Conversation
		state    game.State
		counters trigger.Counters
	)
	require.NoError(t, h.chats.Do(context.Background(), h.user, func(sess *chatservice.Session) error {
		conv = h.chats.Active(context.Background(), sess).Clone()
		state, counters = sess.Game, sess.Counters
		return nil
	}))
	return conv, state, counters
}

func TestAllowedTurnStreamsAndCommitsOnce(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"A VPN ", "encrypts ", "traffic."}}
	h := newHarness(gen)

	result, deltas := h.turn(t, "explain vpn routers")
	assert.Equal(t, guard.Allow, result.Verdict)
	assert.Equal(t, []string{"A VPN ", "encrypts ", "traffic."}, deltas)
	assert.Equal(t, []string{"A VPN encrypts traffic."}, result.Replies)
	assert.Equal(t, "Vpn Routers", result.Name)

	conv, _, _ := h.session(t)
	assert.Equal(t, []chat.Message{
		chat.UserMessage("explain vpn routers"),
		chat.AssistantMessage("A VPN encrypts traffic."),
	}, conv.History)

	// The committed user turn is part of the transcript and is repeated as
	// the closing line.
	require.Len(t, gen.prompts, 1)
	want := "System: " + h.svc.Profile().SystemInstruction + "\n" +
		"User: explain vpn routers\n" +
		"User: explain vpn routers\n" +
		"Tutor:"
	assert.Equal(t, want, gen.prompts[0])
}

func TestSecondTurnPromptCarriesHistory(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"ok"}}
	h := newHarness(gen)
	h.turn(t, "explain vpn routers")
	h.turn(t, "and wifi?")

	require.Len(t, gen.prompts, 2)
	assert.True(t, strings.HasSuffix(gen.prompts[1], "User: explain vpn routers\nTutor: ok\nUser: and wifi?\nUser: and wifi?\nTutor:"))
}

func TestPromptKeepsLastEightTurnsIncludingCurrent(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"ok"}}
	h := newHarness(gen)
	for _, text := range []string{"vpn one", "vpn two", "vpn three", "vpn four", "vpn five"} {
		h.turn(t, text)
	}

	require.Len(t, gen.prompts, 5)
	want := "System: " + h.svc.Profile().SystemInstruction + "\n" +
		"Tutor: ok\nUser: vpn two\nTutor: ok\nUser: vpn three\nTutor: ok\nUser: vpn four\nTutor: ok\n" +
		"User: vpn five\nUser: vpn five\nTutor:"
	assert.Equal(t, want, gen.prompts[4])
}

func TestMissingBackendRecordsErrorReply(t *testing.T) {
	h := newHarness(nil)
	result, _ := h.turn(t, "how does 2fa work")

	require.Len(t, result.Replies, 1)
	assert.Equal(t, "⚠️ An error occurred: generation backend not configured", result.Replies[0])
	conv, _, _ := h.session(t)
	assert.Len(t, conv.History, 2)
}

func TestBackendFailureRecordsErrorReply(t *testing.T) {
	h := newHarness(&fakeGenerator{err: errors.New("quota exceeded")})
	result, _ := h.turn(t, "how does 2fa work")
	assert.Equal(t, "⚠️ An error occurred: quota exceeded", result.Replies[0])
}

func TestNonStreamingDeliversWholeReply(t *testing.T) {
	h := newHarness(&fakeGenerator{chunks: []string{"one ", "two"}}, WithStreaming(false))
	_, deltas := h.turn(t, "how does 2fa work")
	assert.Equal(t, []string{"one two"}, deltas)
}

func TestOfftopicFirstTurnIsMarked(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"never"}}
	h := newHarness(gen)

	result, _ := h.turn(t, "best pizza topping")
	assert.Equal(t, guard.Offtopic, result.Verdict)
	assert.Equal(t, "Best Pizza Topping"+title.OfftopicSuffix, result.Name)
	assert.Empty(t, gen.prompts)

	conv, _, _ := h.session(t)
	require.Len(t, conv.History, 2)
	assert.Contains(t, conv.History[1].Content, "Cybersecurity Education Bot")
}

func TestDeniedTurnKeepsName(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"never"}}
	h := newHarness(gen)

	result, _ := h.turn(t, "how to hack my school wifi")
	assert.Equal(t, guard.Deny, result.Verdict)
	assert.Equal(t, chat.DefaultName, result.Name)
	assert.Empty(t, gen.prompts)
}

func TestThirdPasswordQuestionOffersGame(t *testing.T) {
	h := newHarness(&fakeGenerator{chunks: []string{"answer"}})

	h.turn(t, "what is a password")
	result, _ := h.turn(t, "password length?")
	assert.Len(t, result.Replies, 1)

	result, _ = h.turn(t, "another password question")
	require.Len(t, result.Replies, 2)
	assert.Equal(t, trigger.GameInvite, result.Replies[1])

	_, _, counters := h.session(t)
	assert.Equal(t, 0, counters.Password)
}

func TestExplicitRequestOffersGameImmediately(t *testing.T) {
	h := newHarness(&fakeGenerator{chunks: []string{"answer"}})
	result, _ := h.turn(t, "how do I make my password stronger")
	require.Len(t, result.Replies, 2)
	assert.Equal(t, trigger.GameInvite, result.Replies[1])
}

func TestPhishingPracticeSharesQuiz(t *testing.T) {
	h := newHarness(&fakeGenerator{chunks: []string{"answer"}})
	result, _ := h.turn(t, "can I practice spotting phishing")
	require.Len(t, result.Replies, 2)
	assert.Equal(t, trigger.QuizReferral, result.Replies[1])
}

func TestAcceptingInvitePlaysGameToCompletion(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"answer"}}
	h := newHarness(gen)
	h.turn(t, "how do I make my password stronger")

	result, _ := h.turn(t, "yes")
	assert.True(t, result.GameTurn)
	assert.Equal(t, game.StepAwaitPassphrase, result.Game.Step)
	require.Len(t, result.Replies, 1)
	assert.Contains(t, result.Replies[0], "enter a simple passphrase")

	result, _ = h.turn(t, "abc")
	assert.Equal(t, game.StepAwaitUppercase, result.Game.Step)

	result, _ = h.turn(t, "Abc1")
	assert.Len(t, result.Replies, 2)
	assert.Equal(t, game.StepAwaitSymbol, result.Game.Step)

	result, _ = h.turn(t, "Abc1!")
	assert.Contains(t, result.Replies[0], "Congratulations!")
	assert.False(t, result.Game.Active)

	conv, state, counters := h.session(t)
	assert.Equal(t, game.State{}, state)
	assert.Equal(t, 0, counters.Password)
	// Game turns never reach the model.
	assert.Len(t, gen.prompts, 1)
	// 2 messages + invite, then yes/abc/Abc1/Abc1! with 1+1+2+1 replies.
	assert.Len(t, conv.History, 3+4+5)
}

func TestYesWithoutInviteIsOrdinary(t *testing.T) {
	h := newHarness(&fakeGenerator{chunks: []string{"answer"}})
	h.turn(t, "what is a password")
	result, _ := h.turn(t, "yes")
	assert.False(t, result.GameTurn)
	assert.False(t, result.Game.Active)
}

func TestBlankMessageIsRejected(t *testing.T) {
	h := newHarness(nil)
	err := h.chats.Do(context.Background(), h.user, func(sess *chatservice.Session) error {
		_, err := h.svc.HandleTurn(context.Background(), sess, "   ", nil)
		return err
	})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestHandleTurnInUnknownConversation(t *testing.T) {
	h := newHarness(nil)
	err := h.chats.Do(context.Background(), h.user, func(sess *chatservice.Session) error {
		_, err := h.svc.HandleTurnIn(context.Background(), sess, "missing", "hi", nil)
		return err
	})
	assert.ErrorIs(t, err, chatservice.ErrConversationNotFound)
}

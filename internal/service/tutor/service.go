// Package tutor runs a single chat turn end to end.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cycore-edu/cycore/backend/internal/analysis/guard"
	"github.com/cycore-edu/cycore/backend/internal/game"
	"github.com/cycore-edu/cycore/backend/internal/logger"
	"github.com/cycore-edu/cycore/backend/internal/model/chat"
	profile "github.com/cycore-edu/cycore/backend/internal/model/tutor"
	"github.com/cycore-edu/cycore/backend/internal/service/ai"
	chatservice "github.com/cycore-edu/cycore/backend/internal/service/chat"
	"github.com/cycore-edu/cycore/backend/internal/service/title"
	"github.com/cycore-edu/cycore/backend/internal/trigger"
)

// errorReplyPrefix starts the assistant message recorded when generation fails.
const errorReplyPrefix = "⚠️ An error occurred: "

// ErrEmptyMessage is returned for blank user input.
var ErrEmptyMessage = errors.New("message is required")

// TurnResult describes everything a turn appended.
type TurnResult struct {
	ConversationID string     `json:"conversationId"`
	Name           string     `json:"name"`
	Verdict        guard.Kind `json:"verdict"`
	Replies        []string   `json:"replies"`
	Game           game.State `json:"game"`
	GameTurn       bool       `json:"gameTurn"`
}

// Service wires the guardrail, game, triggers, generator and titler.
type Service struct {
	chats   *chatservice.Service
	gen     ai.Generator
	titles  *title.Service
	profile profile.Profile
	coin    trigger.Coin
	stream  bool
	log     *logger.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithCoin replaces the random coin used by the triggers.
func WithCoin(c trigger.Coin) Option {
	return func(s *Service) { s.coin = c }
}

// WithStreaming toggles incremental delivery from the generator.
func WithStreaming(enabled bool) Option {
	return func(s *Service) { s.stream = enabled }
}

// WithProfile overrides the default tutor profile.
func WithProfile(p profile.Profile) Option {
	return func(s *Service) { s.profile = p }
}

// NewService creates the orchestrator. gen may be nil; turns then record an
// error reply instead of failing.
func NewService(chats *chatservice.Service, gen ai.Generator, titles *title.Service, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		chats:   chats,
		gen:     gen,
		titles:  titles,
		profile: profile.Default(),
		coin:    trigger.RandomCoin,
		stream:  true,
		log:     log.With("component", "tutor"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Profile returns the tutor profile in use.
func (s *Service) Profile() profile.Profile {
	return s.profile
}

// HandleTurn processes one user message against the active conversation.
// onDelta, if set, receives model output as it streams. The caller must hold
// the session via chat.Service.Do.
func (s *Service) HandleTurn(ctx context.Context, sess *chatservice.Session, text string, onDelta func(string)) (TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return TurnResult{}, ErrEmptyMessage
	}
	if onDelta == nil {
		onDelta = func(string) {}
	}

	conv := s.chats.Active(ctx, sess)
	prior := append([]chat.Message(nil), conv.History...)

	sess.Counters = trigger.Count(sess.Counters, text)

	if !sess.Game.Active && trigger.AcceptsInvite(text, lastAssistant(prior)) {
		sess.Game = game.State{Step: game.StepStart, Active: true}
	}
	if sess.Game.Active {
		return s.gameTurn(ctx, sess, conv, text)
	}

	result := TurnResult{ConversationID: conv.ID}
	verdict := guard.Classify(text, prior)
	result.Verdict = verdict.Kind

	if verdict.Blocked() {
		s.commit(sess, conv, chat.UserMessage(text), chat.AssistantMessage(verdict.Message))
		result.Replies = []string{verdict.Message}
		if verdict.Kind == guard.Offtopic {
			s.titles.MarkOfftopic(ctx, sess.Convos, conv.ID)
		}
		s.log.Debug("turn blocked", "conversation_id", conv.ID, "verdict", result.Verdict)
		return s.finish(ctx, sess, conv, result), nil
	}

	s.commit(sess, conv, chat.UserMessage(text))
	// The transcript sent to the model already ends with this user turn;
	// BuildPrompt then repeats it as the closing "User:" line.
	reply := s.generate(ctx, text, append([]chat.Message(nil), conv.History...), onDelta)
	s.commit(sess, conv, chat.AssistantMessage(reply))
	result.Replies = append(result.Replies, reply)

	if !sess.Game.Active && trigger.PasswordGame(text, sess.Counters.Password, s.coin) {
		s.commit(sess, conv, chat.AssistantMessage(trigger.GameInvite))
		result.Replies = append(result.Replies, trigger.GameInvite)
		sess.Counters.Password = 0
	}
	if trigger.PhishingQuiz(text, sess.Counters.Phishing, s.coin) {
		s.commit(sess, conv, chat.AssistantMessage(trigger.QuizReferral))
		result.Replies = append(result.Replies, trigger.QuizReferral)
		sess.Counters.Phishing = 0
	}

	if userMsgs := conv.UserMessages(); len(userMsgs) == 1 || len(userMsgs) == 2 {
		s.titles.MaybeTitle(ctx, sess.Convos, conv.ID, userMsgs)
	}

	return s.finish(ctx, sess, conv, result), nil
}

// HandleTurnIn activates conversationID before running the turn.
func (s *Service) HandleTurnIn(ctx context.Context, sess *chatservice.Session, conversationID, text string, onDelta func(string)) (TurnResult, error) {
	if err := s.chats.Activate(ctx, sess, conversationID); err != nil {
		return TurnResult{}, err
	}
	return s.HandleTurn(ctx, sess, text, onDelta)
}

func (s *Service) gameTurn(ctx context.Context, sess *chatservice.Session, conv *chat.Conversation, text string) (TurnResult, error) {
	s.commit(sess, conv, chat.UserMessage(text))

	next, outcome := game.Advance(sess.Game, text)
	sess.Game = next
	for _, reply := range outcome.Replies {
		s.commit(sess, conv, chat.AssistantMessage(reply))
	}
	if outcome.Completed {
		sess.Counters.Password = 0
		s.log.Info("password game completed", "conversation_id", conv.ID)
	}

	result := TurnResult{
		ConversationID: conv.ID,
		Verdict:        guard.Allow,
		Replies:        outcome.Replies,
		GameTurn:       true,
	}
	return s.finish(ctx, sess, conv, result), nil
}

func (s *Service) generate(ctx context.Context, text string, history []chat.Message, onDelta func(string)) string {
	if s.gen == nil {
		return errorReplyPrefix + ai.ErrBackendUnavailable.Error()
	}

	prompt := ai.BuildPrompt(s.profile.SystemInstruction, text, history)

	var (
		reply string
		err   error
	)
	if s.stream {
		reply, err = s.gen.Stream(ctx, "", prompt, onDelta)
	} else {
		reply, err = s.gen.Generate(ctx, "", prompt)
		if err == nil && reply != "" {
			onDelta(reply)
		}
	}
	if err != nil {
		s.log.Warn("generation failed", "backend", s.gen.Name(), "error", err)
		return fmt.Sprintf("%s%v", errorReplyPrefix, err)
	}
	return reply
}

// commit appends to the conversation the turn is bound to.
func (s *Service) commit(sess *chatservice.Session, conv *chat.Conversation, msgs ...chat.Message) {
	if err := s.chats.Append(sess, conv.ID, msgs...); err != nil {
		s.log.Error("failed to append messages", "conversation_id", conv.ID, "error", err)
	}
}

func (s *Service) finish(ctx context.Context, sess *chatservice.Session, conv *chat.Conversation, result TurnResult) TurnResult {
	s.chats.Sync(ctx, sess)
	result.Name = conv.Name
	result.Game = sess.Game
	return result
}

func lastAssistant(history []chat.Message) string {
	if n := len(history); n > 0 && history[n-1].Role == chat.RoleAssistant {
		return history[n-1].Content
	}
	return ""
}

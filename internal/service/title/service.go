// Package title names conversations from their opening user turns.
package title

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cycore-edu/cycore/backend/internal/logger"
	"github.com/cycore-edu/cycore/backend/internal/model/chat"
	"github.com/cycore-edu/cycore/backend/internal/service/ai"
)

// OfftopicSuffix marks conversations whose first turn was off topic.
const OfftopicSuffix = " (Not Cybersecurity Related)"

const (
	fallbackTitle = "Chat"
	maxTitleRunes = 40
	maxTitleWords = 6
	maxSources    = 2
)

var (
	nonWordPattern  = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	artifactPattern = regexp.MustCompile(`["“”'‘’.!?:]`)

	stopWords = map[string]struct{}{
		"what": {}, "how": {}, "why": {}, "is": {}, "are": {}, "the": {}, "a": {}, "an": {},
		"of": {}, "in": {}, "to": {}, "for": {}, "on": {}, "with": {}, "and": {}, "or": {},
		"my": {}, "your": {}, "our": {}, "their": {}, "this": {}, "that": {}, "it": {},
		"do": {}, "does": {}, "can": {}, "should": {}, "could": {}, "about": {},
		"please": {}, "tell": {}, "me": {}, "explain": {},
	}
)

// Service derives titles with an optional model and a deterministic fallback.
type Service struct {
	gen ai.Generator
	log *logger.Logger
}

// NewService creates a title service. gen may be nil.
func NewService(gen ai.Generator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{gen: gen, log: log.With("component", "title")}
}

// MaybeTitle renames conversation id from userMsgs while it still carries a
// placeholder name. It reports whether the name changed.
func (s *Service) MaybeTitle(ctx context.Context, set *chat.ConversationSet, id string, userMsgs []string) bool {
	conv, ok := set.Get(id)
	if !ok || len(userMsgs) == 0 || !chat.IsDefaultName(conv.Name) {
		return false
	}
	if len(userMsgs) > maxSources {
		userMsgs = userMsgs[:maxSources]
	}

	candidate := s.fromModel(ctx, userMsgs)
	if candidate == "" {
		candidate = Fallback(userMsgs)
	}
	candidate = truncate(candidate)
	if candidate == "" {
		candidate = fallbackTitle
	}

	name := set.UniqueName(candidate, id)
	if name == conv.Name {
		return false
	}
	conv.Name = name
	return true
}

// MarkOfftopic retitles a placeholder-named conversation from its last two
// user turns, then appends OfftopicSuffix once.
func (s *Service) MarkOfftopic(ctx context.Context, set *chat.ConversationSet, id string) bool {
	conv, ok := set.Get(id)
	if !ok {
		return false
	}

	changed := false
	if chat.IsDefaultName(conv.Name) {
		msgs := conv.UserMessages()
		if len(msgs) > maxSources {
			msgs = msgs[len(msgs)-maxSources:]
		}
		changed = s.MaybeTitle(ctx, set, id, msgs)
	}

	if strings.HasSuffix(conv.Name, OfftopicSuffix) {
		return changed
	}
	conv.Name = set.UniqueName(conv.Name+OfftopicSuffix, id)
	return true
}

func (s *Service) fromModel(ctx context.Context, userMsgs []string) string {
	if s.gen == nil || len(userMsgs) < maxSources {
		return ""
	}

	out, err := s.gen.Generate(ctx, "", modelPrompt(userMsgs))
	if err != nil {
		s.log.Warn("title generation failed, using fallback", "error", err)
		return ""
	}

	out = strings.ReplaceAll(strings.TrimSpace(out), "\n", " ")
	out = artifactPattern.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

func modelPrompt(userMsgs []string) string {
	return "Create a concise 4–6 word title for this conversation topic. " +
		"No punctuation, quotes, emojis, or IDs. Return title only.\n\n" +
		"User messages:\n- " + strings.Join(userMsgs, "\n- ")
}

// Fallback builds a title from the messages without a model: punctuation and
// stop-words are dropped and the first six words are title-cased.
func Fallback(userMsgs []string) string {
	text := nonWordPattern.ReplaceAllString(strings.ToLower(strings.Join(userMsgs, " ")), "")

	words := make([]string, 0, maxTitleWords)
	for _, w := range strings.Fields(text) {
		if _, stop := stopWords[w]; stop {
			continue
		}
		words = append(words, w)
		if len(words) == maxTitleWords {
			break
		}
	}
	if len(words) == 0 {
		return fallbackTitle
	}
	return cases.Title(language.English).String(strings.Join(words, " "))
}

func truncate(title string) string {
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = string([]rune(title)[:maxTitleRunes])
	}
	return strings.TrimSpace(title)
}

// Package trigger decides when to surface the password game or the phishing quiz.
package trigger

import (
	"math/rand/v2"
	"strings"
	"sync"
)

// Counters track how often the session asked about each topic.
type Counters struct {
	Password int `json:"passwordQuestions"`
	Phishing int `json:"phishingQuestions"`
}

// Coin is a fair coin used for the early-trigger gamble.
type Coin func() bool

// NewCoin returns a coin backed by a seeded PCG source. It is safe for
// concurrent use.
func NewCoin(seed1, seed2 uint64) Coin {
	var mu sync.Mutex
	r := rand.New(rand.NewPCG(seed1, seed2))
	return func() bool {
		mu.Lock()
		defer mu.Unlock()
		return r.IntN(2) == 0
	}
}

// seedStream is the PCG stream selector paired with configured seeds.
const seedStream = 0x9e3779b97f4a7c15

// CoinFromSeed returns a seeded coin, or RandomCoin when seed is nil.
func CoinFromSeed(seed *uint64) Coin {
	if seed == nil {
		return RandomCoin
	}
	return NewCoin(*seed, seedStream)
}

// RandomCoin uses the global random source.
func RandomCoin() bool {
	return rand.IntN(2) == 0
}

// Always and Never are fixed coins for deterministic callers.
func Always() bool { return true }
func Never() bool  { return false }

const (
	// GameInvite is appended when the password game trigger fires.
	GameInvite = "\n\nWould you like to play a game to better understand what makes a strong password?"

	// QuizReferral is appended when the phishing quiz trigger fires.
	QuizReferral = "\n\n**(⚠️ Safety Reminder)**: As a general rule, **please do not click on random links** you receive online.\n\n" +
		"However, for this exercise, I am sharing a **genuine, verified link from Google** specifically designed to test your phishing skills:\n" +
		"👉 https://phishingquiz.withgoogle.com/"

	invitePhrase = "would you like to play a game"
)

var (
	improveKeywords   = []string{"improve", "better", "secure", "strong", "safe", "strengthen"}
	quizIntentKeyword = []string{"test", "quiz", "check", "practice", "game", "spot", "identify"}
)

// Count bumps the counters for keywords present in text.
func Count(c Counters, text string) Counters {
	normalized := strings.ToLower(text)
	if strings.Contains(normalized, "password") {
		c.Password++
	}
	if strings.Contains(normalized, "phishing") {
		c.Phishing++
	}
	return c
}

// PasswordGame reports whether the game invite should be offered.
func PasswordGame(text string, count int, coin Coin) bool {
	return fires(text, "password", improveKeywords, count, coin)
}

// PhishingQuiz reports whether the quiz link should be shared.
func PhishingQuiz(text string, count int, coin Coin) bool {
	return fires(text, "phishing", quizIntentKeyword, count, coin)
}

func fires(text, topic string, intents []string, count int, coin Coin) bool {
	normalized := strings.ToLower(text)
	if strings.Contains(normalized, topic) && containsAny(normalized, intents) {
		return true
	}
	if count >= 3 {
		return true
	}
	return count == 2 && coin != nil && coin()
}

// AcceptsInvite reports whether text is a plain "yes" and previous, the most
// recent assistant message, carried the game invite.
func AcceptsInvite(text, previous string) bool {
	if !strings.EqualFold(strings.TrimSpace(text), "yes") {
		return false
	}
	return strings.Contains(strings.ToLower(previous), invitePhrase)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

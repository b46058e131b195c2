package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountIsCaseInsensitiveAndIndependent(t *testing.T) {
	c := Count(Counters{}, "My PASSWORD got caught by a Phishing mail")
	assert.Equal(t, Counters{Password: 1, Phishing: 1}, c)

	c = Count(c, "what about passwords?")
	assert.Equal(t, Counters{Password: 2, Phishing: 1}, c)

	c = Count(c, "nothing relevant")
	assert.Equal(t, Counters{Password: 2, Phishing: 1}, c)
}

func TestPasswordGameExplicitRequest(t *testing.T) {
	assert.True(t, PasswordGame("How can I make my password stronger?", 0, Never))
	assert.True(t, PasswordGame("is my password safe", 1, Never))
	assert.False(t, PasswordGame("make my account stronger", 0, Always))
	assert.False(t, PasswordGame("what is a password", 1, Always))
}

func TestPasswordGameCounterThresholds(t *testing.T) {
	assert.True(t, PasswordGame("what is a password", 3, Never))
	assert.True(t, PasswordGame("what is a password", 5, Never))
	assert.True(t, PasswordGame("what is a password", 2, Always))
	assert.False(t, PasswordGame("what is a password", 2, Never))
	assert.False(t, PasswordGame("what is a password", 2, nil))
}

func TestPhishingQuizTriggers(t *testing.T) {
	assert.True(t, PhishingQuiz("can I practice spotting phishing", 0, Never))
	assert.False(t, PhishingQuiz("what is phishing", 1, Always))
	assert.True(t, PhishingQuiz("what is phishing", 3, Never))
	assert.True(t, PhishingQuiz("what is phishing", 2, Always))
	assert.False(t, PhishingQuiz("what is phishing", 2, Never))
}

func TestSeededCoinIsDeterministic(t *testing.T) {
	a := NewCoin(1, 2)
	b := NewCoin(1, 2)
	for i := 0; i < 32; i++ {
		assert.Equal(t, a(), b())
	}
}

func TestSeededCoinProducesBothSides(t *testing.T) {
	coin := NewCoin(7, 11)
	seen := map[bool]bool{}
	for i := 0; i < 256; i++ {
		seen[coin()] = true
	}
	assert.True(t, seen[true])
	assert.True(t, seen[false])
}

func TestCoinFromSeed(t *testing.T) {
	seed := uint64(99)
	a, b := CoinFromSeed(&seed), CoinFromSeed(&seed)
	for i := 0; i < 32; i++ {
		assert.Equal(t, a(), b())
	}
	assert.NotNil(t, CoinFromSeed(nil))
}

func TestAcceptsInvite(t *testing.T) {
	assert.True(t, AcceptsInvite("yes", GameInvite))
	assert.True(t, AcceptsInvite(" YES ", GameInvite))
	assert.False(t, AcceptsInvite("yes please", GameInvite))
	assert.False(t, AcceptsInvite("yes", "Here is some advice."))
}

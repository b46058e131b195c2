package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func active(step Step, last string) State {
	return State{Step: step, LastAttempt: last, Active: true}
}

func TestAdvanceStartIgnoresContent(t *testing.T) {
	next, out := Advance(active(StepStart, ""), "yes")
	assert.Equal(t, StepAwaitPassphrase, next.Step)
	assert.True(t, next.Active)
	assert.Empty(t, next.LastAttempt)
	require.Len(t, out.Replies, 1)
	assert.Contains(t, out.Replies[0], "enter a simple passphrase")
	assert.False(t, out.Completed)
}

func TestAdvanceLowercaseAsksForUppercase(t *testing.T) {
	next, out := Advance(active(StepAwaitPassphrase, ""), "abc")
	assert.Equal(t, StepAwaitUppercase, next.Step)
	assert.Equal(t, "abc", next.LastAttempt)
	require.Len(t, out.Replies, 1)
	assert.Contains(t, out.Replies[0], "**uppercase letter**")
	assert.Contains(t, out.Replies[0], "You entered: `abc`")
}

func TestAdvanceSkipsAheadOnceWhenDigitPresent(t *testing.T) {
	next, out := Advance(active(StepAwaitPassphrase, ""), "Abc1")
	require.Len(t, out.Replies, 2)
	assert.Contains(t, out.Replies[0], "already has an uppercase letter")
	assert.Contains(t, out.Replies[1], "Numbers add another layer")
	// The skipped-to digit step accepted the text, so the dialogue now waits for a symbol.
	assert.Equal(t, StepAwaitSymbol, next.Step)
	assert.Equal(t, "Abc1", next.LastAttempt)
}

func TestAdvanceUppercaseWithoutDigitWaitsForDigit(t *testing.T) {
	next, out := Advance(active(StepAwaitPassphrase, ""), "Abc")
	require.Len(t, out.Replies, 1)
	assert.Equal(t, StepAwaitDigit, next.Step)
}

func TestAdvanceCapsSkipAheadAtOneLevel(t *testing.T) {
	// "Abc1!" satisfies every requirement but only one extra evaluation runs.
	next, out := Advance(active(StepAwaitPassphrase, ""), "Abc1!")
	require.Len(t, out.Replies, 2)
	assert.Equal(t, StepAwaitSymbol, next.Step)
	assert.False(t, out.Completed)
	assert.True(t, next.Active)
}

func TestAdvanceUppercaseRetryStays(t *testing.T) {
	next, out := Advance(active(StepAwaitUppercase, "abc"), "abcd")
	assert.Equal(t, StepAwaitUppercase, next.Step)
	assert.Equal(t, "abcd", next.LastAttempt)
	require.Len(t, out.Replies, 1)
	assert.Contains(t, out.Replies[0], "Not quite")
}

func TestAdvanceUppercaseAddedSkipsWithDigit(t *testing.T) {
	next, out := Advance(active(StepAwaitUppercase, "abc"), "Abc7")
	require.Len(t, out.Replies, 2)
	assert.Contains(t, out.Replies[0], "Great job!")
	assert.Equal(t, StepAwaitSymbol, next.Step)
}

func TestAdvanceDigitStepRegressionKeepsStep(t *testing.T) {
	next, out := Advance(active(StepAwaitDigit, "Abc"), "abc1")
	assert.Equal(t, StepAwaitDigit, next.Step)
	assert.Equal(t, "abc1", next.LastAttempt)
	require.Len(t, out.Replies, 1)
	assert.Contains(t, out.Replies[0], "lost the **uppercase letter**")
}

func TestAdvanceDigitStepStillMissingDigit(t *testing.T) {
	next, out := Advance(active(StepAwaitDigit, "Abc"), "Abcd")
	assert.Equal(t, StepAwaitDigit, next.Step)
	require.Len(t, out.Replies, 1)
	assert.Contains(t, out.Replies[0], "don't forget to add a **number**")
}

func TestAdvanceSymbolStepNamesMissingRequirements(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"abc1!", "removed the **uppercase letter**!"},
		{"Abc!", "removed the **number**!"},
		{"abc!", "removed the **uppercase letter and number**!"},
	}
	for _, tt := range tests {
		next, out := Advance(active(StepAwaitSymbol, "Abc1"), tt.text)
		assert.Equal(t, StepAwaitSymbol, next.Step, tt.text)
		require.Len(t, out.Replies, 1)
		assert.Contains(t, out.Replies[0], tt.want, tt.text)
		assert.False(t, out.Completed)
	}
}

func TestAdvanceSymbolStepJustNeedsSymbol(t *testing.T) {
	next, out := Advance(active(StepAwaitSymbol, "Abc1"), "Abc12")
	assert.Equal(t, StepAwaitSymbol, next.Step)
	assert.Contains(t, out.Replies[0], "just add a **special symbol**")
}

func TestAdvanceVictoryResetsState(t *testing.T) {
	next, out := Advance(active(StepAwaitSymbol, "Abc1"), "Abc1!")
	assert.True(t, out.Completed)
	assert.Equal(t, State{}, next)
	require.Len(t, out.Replies, 1)
	assert.Contains(t, out.Replies[0], "Congratulations!")
	assert.Contains(t, out.Replies[0], "`Abc1!`")
}

func TestAdvanceDigitSkipAheadCanComplete(t *testing.T) {
	next, out := Advance(active(StepAwaitDigit, "Abc"), "Abc1#")
	require.Len(t, out.Replies, 2)
	assert.True(t, out.Completed)
	assert.False(t, next.Active)
	assert.Equal(t, StepStart, next.Step)
}

func TestSymbolSetIsExplicit(t *testing.T) {
	assert.True(t, HasSymbol("a|b"))
	assert.True(t, HasSymbol("x?"))
	assert.False(t, HasSymbol("under_score"))
	assert.False(t, HasSymbol("dash-dash"))
	assert.False(t, HasSymbol("tilde~"))
}

func TestUnknownStepRestarts(t *testing.T) {
	next, out := Advance(State{Step: Step(9), Active: true}, "anything")
	assert.Equal(t, StepAwaitPassphrase, next.Step)
	assert.True(t, next.Active)
	require.Len(t, out.Replies, 1)
	assert.Equal(t, "step(9)", Step(9).String())
}

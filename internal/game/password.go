// Package game implements the scripted password-strengthening dialogue.
package game

import (
	"fmt"
	"strings"
	"unicode"
)

// Step is a position in the password dialogue.
type Step int

const (
	StepStart Step = iota
	StepAwaitPassphrase
	StepAwaitUppercase
	StepAwaitDigit
	StepAwaitSymbol
)

func (s Step) String() string {
	switch s {
	case StepStart:
		return "start"
	case StepAwaitPassphrase:
		return "await_passphrase"
	case StepAwaitUppercase:
		return "await_uppercase"
	case StepAwaitDigit:
		return "await_digit"
	case StepAwaitSymbol:
		return "await_symbol"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// State is the per-session game position.
type State struct {
	Step        Step   `json:"step"`
	LastAttempt string `json:"lastAttempt,omitempty"`
	Active      bool   `json:"active"`
}

// Outcome describes what a single Advance call produced.
type Outcome struct {
	Replies   []string
	Completed bool
}

// maxSkipAhead bounds how many extra evaluations of the same text a call may run.
const maxSkipAhead = 1

const symbols = "!@#$%^&*(),.?:{}|<>"

// HasUppercase reports whether s contains an upper-case letter.
func HasUppercase(s string) bool {
	return strings.IndexFunc(s, unicode.IsUpper) >= 0
}

// HasDigit reports whether s contains a decimal digit.
func HasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

// HasSymbol reports whether s contains one of the accepted symbols.
func HasSymbol(s string) bool {
	return strings.ContainsAny(s, symbols)
}

// Advance feeds one user text into the dialogue. A transition whose text
// already satisfies the next requirement is re-evaluated once against the
// next step within the same call.
func Advance(state State, text string) (State, Outcome) {
	var out Outcome
	for evals := 0; evals <= maxSkipAhead; evals++ {
		res := step(state, text)
		state = res.state
		out.Replies = append(out.Replies, res.reply)
		if res.completed {
			out.Completed = true
			break
		}
		if !res.skipAhead {
			break
		}
	}
	return state, out
}

type stepResult struct {
	state     State
	reply     string
	skipAhead bool
	completed bool
}

// step evaluates text against a single state.
func step(state State, text string) stepResult {
	echo := echoText(text)
	switch state.Step {
	case StepStart:
		state.Step = StepAwaitPassphrase
		return stepResult{state: state, reply: "Great! Let's start. Please enter a simple passphrase to begin."}

	case StepAwaitPassphrase:
		state.LastAttempt = text
		if !HasUppercase(text) {
			state.Step = StepAwaitUppercase
			return stepResult{state: state, reply: echo + " Good start! Now, try adding at least one **uppercase letter** to make it stronger."}
		}
		state.Step = StepAwaitDigit
		return stepResult{state: state, reply: echo + " Excellent! Your password already has an uppercase letter. Let's move to the next step.", skipAhead: HasDigit(text)}

	case StepAwaitUppercase:
		state.LastAttempt = text
		if !HasUppercase(text) {
			return stepResult{state: state, reply: echo + " Not quite. Remember to add at least one **uppercase letter**. Give it another try!"}
		}
		state.Step = StepAwaitDigit
		return stepResult{state: state, reply: echo + " Great job! The uppercase letter makes your password much harder to guess. Now, let's add a **number**.", skipAhead: HasDigit(text)}

	case StepAwaitDigit:
		state.LastAttempt = text
		if !HasUppercase(text) {
			return stepResult{state: state, reply: echo + " Oops! You added a number, but it looks like you lost the **uppercase letter**. Please make sure your password has BOTH an uppercase letter and a number."}
		}
		if !HasDigit(text) {
			return stepResult{state: state, reply: echo + " Almost there! You still have the uppercase letter, but don't forget to add a **number**."}
		}
		state.Step = StepAwaitSymbol
		return stepResult{state: state, reply: echo + " Awesome! Numbers add another layer of complexity. Finally, let's add a **special symbol** like !, @, #, etc.", skipAhead: HasSymbol(text)}

	case StepAwaitSymbol:
		state.LastAttempt = text
		var missing []string
		if !HasUppercase(text) {
			missing = append(missing, "uppercase letter")
		}
		if !HasDigit(text) {
			missing = append(missing, "number")
		}
		if len(missing) > 0 {
			return stepResult{state: state, reply: fmt.Sprintf("%s You're adding a symbol, but it looks like you removed the **%s**! A strong password needs all three elements together.", echo, strings.Join(missing, " and "))}
		}
		if !HasSymbol(text) {
			return stepResult{state: state, reply: echo + " You're so close! You have the uppercase letter and number... just add a **special symbol** (e.g., !, @, #, $) to finish!"}
		}
		return stepResult{state: State{}, reply: congratulations(text), completed: true}
	}

	// Unknown steps restart the dialogue rather than failing.
	return stepResult{state: State{Step: StepAwaitPassphrase, Active: state.Active}, reply: "Let's start over. Please enter a simple passphrase to begin."}
}

func echoText(text string) string {
	return fmt.Sprintf("You entered: `%s`.\n"+
		"*(⚠️ **Safety Reminder**: This is a simulation using a fake practice password. "+
		"Never enter your real passwords here.)*\n\n", text)
}

const congratsPrefix = "🎉 **Congratulations!**"

func congratulations(text string) string {
	return fmt.Sprintf("%s You've created a strong password: `%s`.\n\n"+
		"It has:\n"+
		"✅ Uppercase letters\n"+
		"✅ Numbers\n"+
		"✅ Special symbols\n\n"+
		"*(⚠️ **Final Note**: Because you typed this password into a chat interface, you should consider it 'burned'. "+
		"Do not use this exact password for your real accounts. Use the structure you learned here to create a new one!)*\n\n"+
		"**Great job! The game is now over. You can continue asking questions about cybersecurity now.**", congratsPrefix, text)
}

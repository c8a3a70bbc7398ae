// Package exam implements the timed mock-exam session: question sampling,
// answer/flag/important tracking, a countdown that forces submission,
// navigation and filtering helpers, and scoring into a result record.
//
// The package does no I/O. Callers drive the countdown (see Countdown) and
// receive the scored result through Submit or the submit hook.
package exam

import "errors"

// Defaults for the ITIL 4 Foundation mock exam.
const (
	DefaultQuestionCount        = 40
	DefaultTimeBudgetSeconds    = 3600
	DefaultPassThresholdPercent = 65
)

// Config holds the per-attempt constants.
type Config struct {
	QuestionCount        int
	TimeBudgetSeconds    int
	PassThresholdPercent int
}

// DefaultConfig returns the 40 question, 60 minute, 65% configuration.
func DefaultConfig() Config {
	return Config{
		QuestionCount:        DefaultQuestionCount,
		TimeBudgetSeconds:    DefaultTimeBudgetSeconds,
		PassThresholdPercent: DefaultPassThresholdPercent,
	}
}

// Validate rejects configurations the state machine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.QuestionCount <= 0:
		return errors.New("exam: question count must be positive")
	case c.TimeBudgetSeconds <= 0:
		return errors.New("exam: time budget must be positive")
	case c.PassThresholdPercent < 0 || c.PassThresholdPercent > 100:
		return errors.New("exam: pass threshold must be between 0 and 100")
	}
	return nil
}

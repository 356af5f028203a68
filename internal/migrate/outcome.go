package migrate

import (
	"errors"
	"fmt"
)

// Outcome classifies the result of a single Apply call.
type Outcome int

const (
	Success Outcome = iota
	ConfigurationMissing
	ScriptUnreadable
	// ConnectionFailed is an ExecutionFailed-class outcome split out so
	// operators can tell a bad descriptor from a bad script.
	ConnectionFailed
	ExecutionFailed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case ConfigurationMissing:
		return "configuration_missing"
	case ScriptUnreadable:
		return "script_unreadable"
	case ConnectionFailed:
		return "connection_failed"
	case ExecutionFailed:
		return "execution_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ExitCode maps the outcome onto a process exit status.
func (o Outcome) ExitCode() int {
	switch o {
	case Success:
		return 0
	case ConfigurationMissing:
		return 2
	case ScriptUnreadable:
		return 3
	case ConnectionFailed:
		return 4
	default:
		return 5
	}
}

// State tracks progress through a single Apply call. Committed and Failed
// are terminal.
type State int

const (
	NotStarted State = iota
	Connected
	Committed
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Connected:
		return "connected"
	case Committed:
		return "committed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrConfigurationMissing = errors.New("connection descriptor is not set")
	ErrScriptUnreadable     = errors.New("script unreadable")
	ErrConnectionFailed     = errors.New("connection failed")
	ErrExecutionFailed      = errors.New("execution failed")
)

// Error is returned by Apply for every non-success outcome. Err carries the
// underlying filesystem or engine error when there is one.
type Error struct {
	Outcome Outcome
	Path    string
	Err     error
}

func (e *Error) Error() string {
	msg := e.sentinel().Error()
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the outcome sentinels. A connection failure also matches
// ErrExecutionFailed.
func (e *Error) Is(target error) bool {
	if target == e.sentinel() {
		return true
	}
	return e.Outcome == ConnectionFailed && target == ErrExecutionFailed
}

func (e *Error) sentinel() error {
	switch e.Outcome {
	case ConfigurationMissing:
		return ErrConfigurationMissing
	case ScriptUnreadable:
		return ErrScriptUnreadable
	case ConnectionFailed:
		return ErrConnectionFailed
	default:
		return ErrExecutionFailed
	}
}

// OutcomeOf classifies any error returned by Apply. Errors from elsewhere are
// treated as execution failures.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Outcome
	}
	return ExecutionFailed
}

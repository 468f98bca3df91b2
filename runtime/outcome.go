package runtime

import (
	"fmt"

	"github.com/pithecene-io/scriptrun/envelope"
	"github.com/pithecene-io/scriptrun/types"
)

// OutcomeStatus classifies how an execution ended.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates the snippet returned normally.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeSnippetError indicates a fault inside the snippet.
	OutcomeSnippetError OutcomeStatus = "snippet_error"
	// OutcomeExecutorCrash indicates the driver died without a usable record.
	OutcomeExecutorCrash OutcomeStatus = "executor_crash"
	// OutcomeTimeout indicates the execution was killed at its deadline.
	OutcomeTimeout OutcomeStatus = "timeout"
	// OutcomeInvalidInput indicates the driver rejected its invocation.
	OutcomeInvalidInput OutcomeStatus = "invalid_input"
)

// Outcome is the classified end state of one execution.
type Outcome struct {
	Status  OutcomeStatus `json:"status"`
	Message string        `json:"message"`
}

// Exit codes per driver contract (shared with the envelope subcommand,
// the deno driver and the python driver).
const (
	ExitCodeCompleted    = envelope.ExitSuccess
	ExitCodeError        = envelope.ExitSnippetError
	ExitCodeCrash        = envelope.ExitCrash
	ExitCodeInvalidInput = envelope.ExitInvalidInvocation
)

// DetermineOutcome classifies an execution from the driver exit code and
// the result record, if one was found.
//
// Exit code mapping:
//   - 0: success (record expected with error == null)
//   - 1: snippet error (record expected with error set)
//   - 2: crash
//   - 3: invalid input
//
// The exit code decides the category; the record supplies the message.
func DetermineOutcome(exitCode int, record *types.ExecutionResult) *Outcome {
	switch exitCode {
	case ExitCodeCompleted:
		if record == nil {
			return &Outcome{Status: OutcomeExecutorCrash, Message: "driver exited cleanly without a result record"}
		}
		if !record.OK() {
			return &Outcome{Status: OutcomeSnippetError, Message: *record.Error}
		}
		return &Outcome{Status: OutcomeSuccess, Message: "execution completed successfully"}

	case ExitCodeError:
		if record == nil {
			return &Outcome{Status: OutcomeExecutorCrash, Message: "driver exited with error without a result record"}
		}
		msg := "snippet error"
		if record.Error != nil {
			msg = *record.Error
		}
		return &Outcome{Status: OutcomeSnippetError, Message: msg}

	case ExitCodeCrash:
		return &Outcome{Status: OutcomeExecutorCrash, Message: "driver crashed"}

	case ExitCodeInvalidInput:
		return &Outcome{Status: OutcomeInvalidInput, Message: "driver rejected invalid invocation"}

	default:
		return &Outcome{Status: OutcomeExecutorCrash, Message: fmt.Sprintf("driver exited with unexpected code %d", exitCode)}
	}
}

// ExitCodeForOutcome maps an outcome back to a CLI exit code.
func ExitCodeForOutcome(status OutcomeStatus) int {
	switch status {
	case OutcomeSuccess:
		return ExitCodeCompleted
	case OutcomeSnippetError:
		return ExitCodeError
	case OutcomeInvalidInput:
		return ExitCodeInvalidInput
	default:
		return ExitCodeCrash
	}
}

package envelope

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pithecene-io/scriptrun/types"
)

// Exit codes of a driver process.
const (
	ExitSuccess           = 0 // result emitted, no error
	ExitSnippetError      = 1 // result emitted, error set
	ExitCrash             = 2 // driver failed before emitting
	ExitInvalidInvocation = 3 // bad arguments or unreadable snippet
)

// Emit writes res as a single JSON line. It must be the last thing written
// to w.
func Emit(w io.Writer, res types.ExecutionResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// ExitCodeFor maps an emitted result to the driver exit code.
func ExitCodeFor(res types.ExecutionResult) int {
	if res.OK() {
		return ExitSuccess
	}
	return ExitSnippetError
}

// Main runs the snippet at path with input taken from the environment,
// emits the result to stdout and returns the process exit code.
// A path of "-" reads the snippet from stdin.
func Main(ctx context.Context, path string, stdin io.Reader, stdout io.Writer) int {
	var body []byte
	var err error
	if path == "-" {
		body, err = io.ReadAll(stdin)
	} else {
		body, err = os.ReadFile(path)
	}
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "envelope: cannot read snippet: %v\n", err)
		return ExitInvalidInvocation
	}

	res := Run(ctx, string(body), Options{
		Input:    os.Getenv(InputEnv),
		ShowLogs: ShowLogsEnabled(os.Getenv(ShowLogsEnv)),
		Filename: path,
	})
	if err := Emit(stdout, res); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "envelope: %v\n", err)
		return ExitCrash
	}
	return ExitCodeFor(res)
}

// ShowLogsEnabled parses the show-logs environment value.
func ShowLogsEnabled(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

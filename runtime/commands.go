package runtime

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/pithecene-io/scriptrun/executor"
	"github.com/pithecene-io/scriptrun/types"
)

// Driver names reported in results and logs.
const (
	DriverBuiltin = "builtin"
	DriverDeno    = "deno"
	DriverPython  = "python"
)

// JavaScript driver selection for snippets that are not module-style.
const (
	JSDriverAuto    = "auto"
	JSDriverDeno    = "deno"
	JSDriverBuiltin = "builtin"
)

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// DefaultPythonVersion is the interpreter version requested from uv.
const DefaultPythonVersion = "3.13"

// DefaultDenoArgs are the permissions and limits passed to deno run.
var DefaultDenoArgs = []string{
	"run",
	"--allow-net",
	"--allow-env",
	"--allow-read",
	"--allow-write",
	"--no-check",
	"--v8-flags=--max-heap-size=512",
}

// RuntimeCommands locates the interpreters used for each driver.
type RuntimeCommands struct {
	// Self is the command that runs the builtin envelope (binary + subcommand).
	Self []string
	// Deno is the deno binary.
	Deno string
	// DenoArgs precede the driver path.
	DenoArgs []string
	// UV is the uv binary.
	UV string
	// PythonVersion is passed to uv run -p.
	PythonVersion string
	// JavaScriptDriver picks where plain JavaScript runs. Empty or "auto"
	// uses deno when it is on PATH and the builtin driver otherwise.
	JavaScriptDriver string
}

// DefaultRuntimeCommands resolves interpreters from PATH and re-executes the
// current binary for the builtin driver.
func DefaultRuntimeCommands() RuntimeCommands {
	self, err := os.Executable()
	if err != nil {
		self = os.Args[0]
	}
	return RuntimeCommands{
		Self:          []string{self, "envelope"},
		Deno:          "deno",
		DenoArgs:      DefaultDenoArgs,
		UV:            "uv",
		PythonVersion: DefaultPythonVersion,
	}
}

// ErrNoSelfCommand is returned when the builtin driver has no command.
var ErrNoSelfCommand = errors.New("builtin driver command not configured")

// Build returns the executor configuration for a snippet stored at path,
// plus the driver name it selected.
func (c RuntimeCommands) Build(snippet types.Snippet, path string, deps []string) (*ExecutorConfig, string, error) {
	useDeno := snippet.Language == types.LanguageJavaScript &&
		(IsModuleStyle(snippet.Body) || c.denoForPlainJS())
	driverFile := executor.DriverFor(snippet.Language, useDeno)

	if driverFile == "" {
		if len(c.Self) == 0 {
			return nil, "", ErrNoSelfCommand
		}
		args := append(append([]string{}, c.Self[1:]...), path)
		return &ExecutorConfig{Command: c.Self[0], Args: args}, DriverBuiltin, nil
	}

	driverPath, err := executor.DriverPath(driverFile)
	if err != nil {
		return nil, "", err
	}

	switch snippet.Language {
	case types.LanguagePython:
		version := c.PythonVersion
		if version == "" {
			version = DefaultPythonVersion
		}
		args := []string{"run", "-s", "-p", version}
		for _, d := range deps {
			args = append(args, "--with", d)
		}
		args = append(args, driverPath, path)
		return &ExecutorConfig{Command: c.UV, Args: args}, DriverPython, nil

	case types.LanguageJavaScript, types.LanguageTypeScript:
		denoArgs := c.DenoArgs
		if len(denoArgs) == 0 {
			denoArgs = DefaultDenoArgs
		}
		args := append(append([]string{}, denoArgs...), driverPath, path)
		return &ExecutorConfig{Command: c.Deno, Args: args}, DriverDeno, nil

	default:
		return nil, "", fmt.Errorf("no driver for language %q", snippet.Language)
	}
}

// denoForPlainJS reports whether plain JavaScript should run under deno.
func (c RuntimeCommands) denoForPlainJS() bool {
	switch c.JavaScriptDriver {
	case JSDriverDeno:
		return true
	case JSDriverBuiltin:
		return false
	}
	if c.Deno == "" {
		return false
	}
	_, err := lookPath(c.Deno)
	return err == nil
}

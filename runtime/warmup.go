package runtime

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/pithecene-io/scriptrun/executor"
	"github.com/pithecene-io/scriptrun/log"
)

// WarmupStep reports one preparation step.
type WarmupStep struct {
	Name     string        `json:"name"`
	Command  string        `json:"command"`
	OK       bool          `json:"ok"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Warmup extracts the embedded drivers and asks each interpreter to get
// ready, so the first real execution does not pay for downloads.
// A failing step does not stop the remaining ones.
func Warmup(ctx context.Context, cmds RuntimeCommands, logger *log.Logger) []WarmupStep {
	if logger == nil {
		logger = log.Nop()
	}
	version := cmds.PythonVersion
	if version == "" {
		version = DefaultPythonVersion
	}

	steps := []WarmupStep{extractDrivers()}
	steps = append(steps,
		runStep(ctx, "deno", cmds.Deno, "--version"),
		runStep(ctx, "python", cmds.UV, "python", "install", version),
	)
	for _, s := range steps {
		fields := map[string]any{"step": s.Name, "duration": s.Duration.String()}
		if s.OK {
			logger.Info("warmup step completed", fields)
		} else {
			fields["error"] = s.Error
			logger.Warn("warmup step failed", fields)
		}
	}
	return steps
}

func extractDrivers() WarmupStep {
	start := time.Now()
	step := WarmupStep{Name: "drivers", Command: "extract"}
	for _, name := range executor.Drivers() {
		path, err := executor.DriverPath(name)
		if err != nil {
			step.Error = err.Error()
			step.Duration = time.Since(start)
			return step
		}
		step.Output = path
	}
	step.OK = true
	step.Duration = time.Since(start)
	return step
}

func runStep(ctx context.Context, name, command string, args ...string) WarmupStep {
	start := time.Now()
	step := WarmupStep{Name: name, Command: strings.Join(append([]string{command}, args...), " ")}
	if command == "" {
		step.Error = "command not configured"
		return step
	}
	out, err := exec.CommandContext(ctx, command, args...).CombinedOutput()
	step.Duration = time.Since(start)
	step.Output = strings.TrimSpace(string(out))
	if err != nil {
		step.Error = fmt.Sprintf("%s: %v", command, err)
		return step
	}
	step.OK = true
	return step
}

//go:build !windows

package runtime

import (
	"os/exec"
	"syscall"
)

// configureProcess places the driver in its own process group so that
// cancellation also reaches interpreters it spawned (uv -> python).
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

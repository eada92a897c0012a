//go:build unix

package analyzer

import (
	"os/exec"
	"syscall"
)

// killProcessGroup starts the analyzer in its own process group so that a timeout also
// stops whatever the analyzer spawned.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

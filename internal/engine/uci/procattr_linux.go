//go:build linux

package uci

import (
	"os/exec"
	"syscall"
)

// The kernel kills the engine if the host process dies.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
}

//go:build !unix

package executor

import "os/exec"

func setProcGroup(cmd *exec.Cmd) {}

// killProcessGroup falls back to killing the direct child; detached
// descendants may survive.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

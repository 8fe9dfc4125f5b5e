// SPDX-License-Identifier: MIT

//go:build !unix

package procgroup

import (
	"errors"
	"os"
	"os/exec"
)

func set(_ *exec.Cmd) {}

// Without process groups there is no graceful group signal; the shutdown
// ladder degrades to the final kill of the leader.
func terminate(_ int) error {
	return nil
}

func kill(pid int) error {
	if pid <= 0 {
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// SPDX-License-Identifier: MIT

// Package procgroup signals whole process trees. The companion wraps
// downloader and ffmpeg children; signaling only the leader on shutdown
// would orphan them mid-write.
package procgroup

import "os/exec"

// Set configures cmd to start as the leader of a new process group.
// Terminate and Kill reach the children only when the command was started
// after Set.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Terminate asks the process group led by pid to shut down. A process that
// is already gone is not an error.
func Terminate(pid int) error {
	return terminate(pid)
}

// Kill forcibly ends the process group led by pid.
func Kill(pid int) error {
	return kill(pid)
}

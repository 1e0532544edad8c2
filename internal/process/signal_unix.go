//go:build !windows

package process

import (
	"errors"

	"golang.org/x/sys/unix"
)

// terminate asks the process group to shut down.
func terminate(pid int) error {
	return ignoreGone(unix.Kill(-pid, unix.SIGTERM))
}

// kill forcibly ends the process group.
func kill(pid int) error {
	return ignoreGone(unix.Kill(-pid, unix.SIGKILL))
}

func ignoreGone(err error) error {
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

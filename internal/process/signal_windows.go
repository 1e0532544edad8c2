//go:build windows

package process

import (
	"os"

	"golang.org/x/sys/windows"
)

// terminate delivers CTRL_BREAK to the child's process group, which uvicorn
// treats as a graceful shutdown request.
func terminate(pid int) error {
	return windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(pid))
}

func kill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := p.Kill(); err != nil && err != os.ErrProcessDone {
		return err
	}
	return nil
}

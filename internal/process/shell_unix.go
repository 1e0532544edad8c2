//go:build !windows

package process

var (
	shellArgv = []string{"/bin/sh", "-c"}
	noopArgv  = []string{"/bin/true"}
)

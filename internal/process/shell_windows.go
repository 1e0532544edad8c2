//go:build windows

package process

var (
	shellArgv = []string{"cmd", "/c"}
	noopArgv  = []string{"cmd", "/c", "rem"}
)

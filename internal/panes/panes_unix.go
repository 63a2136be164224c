//go:build !windows

package panes

import "syscall"

// signalGroup signals pid's process group so pipeline children go down
// with it. Falls back to the process itself when the group is gone.
func signalGroup(pid int, kill bool) error {
	if pid <= 0 {
		return nil
	}
	sig := syscall.SIGTERM
	if kill {
		sig = syscall.SIGKILL
	}
	if err := syscall.Kill(-pid, sig); err != nil {
		return syscall.Kill(pid, sig)
	}
	return nil
}

//go:build windows

package panes

// signalGroup is a no-op on Windows; tmux workflows are not supported
// there and context cancellation handles direct children.
func signalGroup(pid int, kill bool) error {
	return nil
}

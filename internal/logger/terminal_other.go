//go:build !linux && !darwin

package logger

// isTerminal always reports false on platforms without termios support;
// log output falls back to plain text.
func isTerminal(fd uintptr) bool {
	return false
}

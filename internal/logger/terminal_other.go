//go:build !darwin && !freebsd && !linux

package logger

import (
	"os"

	"github.com/mattn/go-isatty"
)

func GetTerminalInfo(file *os.File) (info TerminalInfo) {
	fd := file.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		info.IsTTY = true
		info.UseColorEscapes = !hasNoColorEnvironmentVariable()
	}
	return
}

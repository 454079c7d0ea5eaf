package test

import (
	"fmt"
	"strings"

	"github.com/hoistjs/hoist/internal/logger"
	"github.com/kylelemons/godebug/diff"
)

// Diff renders a line diff from old to new, optionally with color escapes.
func Diff(old string, new string, color bool) string {
	var result []string

	// No chunks are produced for identical input
	if old == new {
		for _, line := range strings.Split(old, "\n") {
			result = append(result, colored(color, logger.TerminalColors.Dim, " "+line))
		}
		return strings.Join(result, "\n")
	}

	chunks := diff.DiffChunks(strings.Split(old, "\n"), strings.Split(new, "\n"))
	for _, chunk := range chunks {
		for _, line := range chunk.Deleted {
			result = append(result, colored(color, logger.TerminalColors.Red, "-"+line))
		}
		for _, line := range chunk.Added {
			result = append(result, colored(color, logger.TerminalColors.Green, "+"+line))
		}
		for _, line := range chunk.Equal {
			result = append(result, colored(color, logger.TerminalColors.Dim, " "+line))
		}
	}
	return strings.Join(result, "\n")
}

func colored(color bool, escape string, line string) string {
	if !color {
		return line
	}
	return fmt.Sprintf("%s%s%s", escape, line, logger.TerminalColors.Reset)
}

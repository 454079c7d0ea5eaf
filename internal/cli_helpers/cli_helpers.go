// This package contains the parsers for option values that the command line
// and config files share.

package cli_helpers

import (
	"fmt"
	"strings"

	"github.com/hoistjs/hoist/pkg/api"
)

type ErrorWithNote struct {
	Text string
	Note string
}

func MakeErrorWithNote(text string, note string) *ErrorWithNote {
	return &ErrorWithNote{
		Text: text,
		Note: note,
	}
}

func (e *ErrorWithNote) Error() string {
	if e.Note == "" {
		return e.Text
	}
	return e.Text + "\n" + e.Note
}

func ParseFormat(text string) (api.Format, *ErrorWithNote) {
	switch text {
	case "esm", "":
		return api.FormatESModule, nil
	case "iife":
		return api.FormatIIFE, nil
	case "cjs":
		return api.FormatCommonJS, nil
	case "app":
		return api.FormatApp, nil
	default:
		return api.FormatESModule, MakeErrorWithNote(
			fmt.Sprintf("Invalid format: %q", text),
			"Valid values are \"esm\", \"iife\", \"cjs\", or \"app\".",
		)
	}
}

func ParseSourceMap(text string) (api.SourceMap, *ErrorWithNote) {
	switch text {
	case "none", "false", "":
		return api.SourceMapNone, nil
	case "linked", "true":
		return api.SourceMapLinked, nil
	case "inline":
		return api.SourceMapInline, nil
	case "external", "hidden":
		return api.SourceMapExternal, nil
	default:
		return api.SourceMapNone, MakeErrorWithNote(
			fmt.Sprintf("Invalid source map: %q", text),
			"Valid values are \"none\", \"linked\", \"inline\", or \"external\".",
		)
	}
}

func ParseLogLevel(text string) (api.LogLevel, *ErrorWithNote) {
	switch text {
	case "debug":
		return api.LogLevelDebug, nil
	case "info", "":
		return api.LogLevelInfo, nil
	case "warning":
		return api.LogLevelWarning, nil
	case "error":
		return api.LogLevelError, nil
	case "silent":
		return api.LogLevelSilent, nil
	default:
		return api.LogLevelInfo, MakeErrorWithNote(
			fmt.Sprintf("Invalid log level: %q", text),
			"Valid values are \"debug\", \"info\", \"warning\", \"error\", or \"silent\".",
		)
	}
}

func ParseColor(text string) (api.StderrColor, *ErrorWithNote) {
	switch strings.ToLower(text) {
	case "auto", "":
		return api.ColorIfTerminal, nil
	case "true", "always":
		return api.ColorAlways, nil
	case "false", "never":
		return api.ColorNever, nil
	default:
		return api.ColorIfTerminal, MakeErrorWithNote(
			fmt.Sprintf("Invalid color setting: %q", text),
			"Valid values are \"auto\", \"true\", or \"false\".",
		)
	}
}

// An empty value leaves the decision to the build: modules have side effects
// unless their package says otherwise
func ParseModuleSideEffects(text string) (api.ModuleSideEffects, *ErrorWithNote) {
	switch text {
	case "":
		return api.ModuleSideEffectsDefault, nil
	case "true":
		return api.ModuleSideEffectsTrue, nil
	case "false":
		return api.ModuleSideEffectsFalse, nil
	default:
		return api.ModuleSideEffectsDefault, MakeErrorWithNote(
			fmt.Sprintf("Invalid module side effects: %q", text),
			"Valid values are \"true\" or \"false\".",
		)
	}
}

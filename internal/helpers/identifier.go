package helpers

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// NonUniqueNameFromPath derives a readable identifier from a module path.
// For "src/util.js" this is "util" and for "lib/index.js" it is "lib".
func NonUniqueNameFromPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	dir, base := "", path
	if slash := strings.LastIndexByte(path, '/'); slash != -1 {
		dir, base = path[:slash], path[slash+1:]
	}
	if dot := strings.IndexByte(base, '.'); dot > 0 {
		base = base[:dot]
	}

	// Many packages use "index.js" so that importing the directory works, so
	// the directory name says more about the module than "index" does
	if base == "index" && dir != "" {
		if slash := strings.LastIndexByte(dir, '/'); slash != -1 {
			dir = dir[slash+1:]
		}
		if dir != "" {
			base = dir
		}
	}
	return LegitimizeIdentifier(base)
}

// LegitimizeIdentifier turns arbitrary text such as a package name into an
// ASCII identifier. Runs of invalid characters collapse into one underscore.
func LegitimizeIdentifier(text string) string {
	bytes := []byte{}
	needsGap := false
	for _, c := range text {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '$' || c == '_' || (len(bytes) > 0 && c >= '0' && c <= '9') {
			if needsGap {
				bytes = append(bytes, '_')
				needsGap = false
			}
			bytes = append(bytes, byte(c))
		} else if len(bytes) > 0 {
			needsGap = true
		}
	}

	// Make sure the name isn't empty
	if len(bytes) == 0 {
		return "_"
	}
	return string(bytes)
}

func IsIdentifier(text string) bool {
	if text == "" {
		return false
	}
	for i, c := range text {
		if i == 0 {
			if !isIdentifierStart(c) {
				return false
			}
		} else if !isIdentifierContinue(c) {
			return false
		}
	}
	return !Keywords[text]
}

func isIdentifierStart(c rune) bool {
	return c == '$' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
		(c >= utf8.RuneSelf && unicode.IsLetter(c))
}

func isIdentifierContinue(c rune) bool {
	return isIdentifierStart(c) || (c >= '0' && c <= '9') ||
		(c >= utf8.RuneSelf && (unicode.IsDigit(c) || unicode.Is(unicode.Mn, c) || unicode.Is(unicode.Mc, c)))
}

// Keywords and strict mode reserved words. None of these may ever be chosen
// as a generated name.
var Keywords = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true, "const": true,
	"continue": true, "debugger": true, "default": true, "delete": true,
	"do": true, "else": true, "enum": true, "export": true, "extends": true,
	"false": true, "finally": true, "for": true, "function": true, "if": true,
	"import": true, "in": true, "instanceof": true, "new": true, "null": true,
	"return": true, "super": true, "switch": true, "this": true, "throw": true,
	"true": true, "try": true, "typeof": true, "var": true, "void": true,
	"while": true, "with": true,

	"implements": true, "interface": true, "let": true, "package": true,
	"private": true, "protected": true, "public": true, "static": true,
	"yield": true, "await": true,

	// These are not keywords but assigning to them is an error in strict mode
	"arguments": true, "eval": true,
}

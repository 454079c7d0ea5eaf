package helpers

import (
	"unicode/utf8"
)

const hexChars = "0123456789ABCDEF"

func canPrintWithoutEscape(c rune) bool {
	if c < utf8.RuneSelf {
		return c >= 0x20 && c != '\\' && c != '"' && c != 0x7F
	}
	return c != '\uFEFF' && c != '\u2028' && c != '\u2029'
}

// QuoteForJS returns a double-quoted string literal that is valid both as
// JavaScript and as JSON
func QuoteForJS(text string) string {
	// Estimate the required length
	lenEstimate := 2
	for _, c := range text {
		if canPrintWithoutEscape(c) {
			lenEstimate += utf8.RuneLen(c)
		} else {
			lenEstimate += 6
		}
	}

	bytes := make([]byte, 0, lenEstimate)
	bytes = append(bytes, '"')

	for i := 0; i < len(text); {
		c, width := utf8.DecodeRuneInString(text[i:])

		// Fast path: a run of characters that don't need escaping
		if canPrintWithoutEscape(c) && c != utf8.RuneError {
			start := i
			i += width
			for i < len(text) {
				c, width = utf8.DecodeRuneInString(text[i:])
				if !canPrintWithoutEscape(c) || c == utf8.RuneError {
					break
				}
				i += width
			}
			bytes = append(bytes, text[start:i]...)
			continue
		}
		i += width

		switch c {
		case '\b':
			bytes = append(bytes, "\\b"...)
		case '\f':
			bytes = append(bytes, "\\f"...)
		case '\n':
			bytes = append(bytes, "\\n"...)
		case '\r':
			bytes = append(bytes, "\\r"...)
		case '\t':
			bytes = append(bytes, "\\t"...)
		case '\\':
			bytes = append(bytes, "\\\\"...)
		case '"':
			bytes = append(bytes, "\\\""...)
		default:
			if c == utf8.RuneError && width == 1 {
				c = 0xFFFD
			}
			if c <= 0xFFFF {
				bytes = append(bytes, '\\', 'u', hexChars[c>>12], hexChars[(c>>8)&15], hexChars[(c>>4)&15], hexChars[c&15])
			} else {
				c -= 0x10000
				lo := 0xD800 + ((c >> 10) & 0x3FF)
				hi := 0xDC00 + (c & 0x3FF)
				bytes = append(bytes,
					'\\', 'u', hexChars[lo>>12], hexChars[(lo>>8)&15], hexChars[(lo>>4)&15], hexChars[lo&15],
					'\\', 'u', hexChars[hi>>12], hexChars[(hi>>8)&15], hexChars[(hi>>4)&15], hexChars[hi&15],
				)
			}
		}
	}

	return string(append(bytes, '"'))
}

// IsIdentifierName is like IsIdentifier but allows keywords, which are valid
// after a "." and as object keys
func IsIdentifierName(text string) bool {
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
	return true
}

// PropertyAccess returns ".name" or "[\"name\"]" for reading "name" off an
// object
func PropertyAccess(name string) string {
	if IsIdentifierName(name) {
		return "." + name
	}
	return "[" + QuoteForJS(name) + "]"
}

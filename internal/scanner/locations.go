package scanner

import (
	"sort"
	"strings"

	"github.com/hoistjs/hoist/internal/logger"
	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"
)

// The tree has no positions, so diagnostics find their names in the source
// text. Only identifier and string tokens are indexed, which keeps a name in
// a comment, a template or a regular expression from being reported.
type tokenIndex struct {
	names   map[string][]int32
	strings map[string][]int32
}

func indexTokens(contents string) tokenIndex {
	index := tokenIndex{
		names:   make(map[string][]int32),
		strings: make(map[string][]int32),
	}

	// The lexer doesn't know about hashbangs. Blanking the line keeps the
	// offsets of everything after it.
	if strings.HasPrefix(contents, "#!") {
		end := strings.IndexByte(contents, '\n')
		if end == -1 {
			end = len(contents)
		}
		contents = strings.Repeat(" ", end) + contents[end:]
	}

	input := parse.NewInputString(contents)
	lexer := js.NewLexer(input)
	prev := js.ErrorToken

	for {
		tt, data := lexer.Next()
		switch tt {
		case js.ErrorToken:
			return index
		case js.WhitespaceToken, js.LineTerminatorToken, js.CommentToken, js.CommentLineTerminatorToken:
			continue
		case js.DivToken, js.DivEqToken:
			if !endsOperand(prev) {
				if tt, data = lexer.RegExp(); tt == js.ErrorToken {
					return index
				}
			}
		}

		start := int32(input.Offset() - len(data))
		switch {
		case tt == js.StringToken && len(data) >= 2:
			text := string(data[1 : len(data)-1])
			index.strings[text] = append(index.strings[text], start+1)
		case js.IsIdentifierName(tt):
			name := string(data)
			index.names[name] = append(index.names[name], start)
		}
		prev = tt
	}
}

// A slash after one of these is division, anywhere else it starts a
// regular expression
func endsOperand(tt js.TokenType) bool {
	switch tt {
	case js.CloseParenToken, js.CloseBracketToken, js.CloseBraceToken, js.StringToken,
		js.TemplateToken, js.TemplateEndToken, js.RegExpToken, js.PrivateIdentifierToken,
		js.ThisToken, js.SuperToken, js.IncrToken, js.DecrToken:
		return true
	}
	return js.IsNumeric(tt) || js.IsIdentifier(tt)
}

func (s *scanner) tokens() *tokenIndex {
	if s.tokenOffsets == nil {
		index := indexTokens(s.source.Contents)
		s.tokenOffsets = &index
	}
	return s.tokenOffsets
}

// Names that can be written as identifiers are looked up as identifiers.
// Others, such as "a-b" in 'export { a as "a-b" }', only exist as strings.
func (s *scanner) offsetsOf(name string) []int32 {
	index := s.tokens()
	first, second := index.names, index.strings
	if !js.AsIdentifierName([]byte(name)) {
		first, second = second, first
	}
	if offsets := first[name]; len(offsets) > 0 {
		return offsets
	}
	return second[name]
}

// Identifier and string occurrences merged in source order
func (s *scanner) allOffsetsOf(name string) []int32 {
	index := s.tokens()
	offsets := append(append([]int32(nil), index.names[name]...), index.strings[name]...)
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	return offsets
}

// Returns the first offset at or after "from". If there is none the first
// one in the file is used.
func (s *scanner) rangeAtOrAfter(offsets []int32, name string, from int32) logger.Range {
	i := sort.Search(len(offsets), func(i int) bool { return offsets[i] >= from })
	if i < len(offsets) {
		return logger.Range{Loc: logger.Loc{Start: offsets[i]}, Len: int32(len(name))}
	}
	if len(offsets) > 0 {
		return logger.Range{Loc: logger.Loc{Start: offsets[0]}, Len: int32(len(name))}
	}
	return s.source.RangeOfQuoted(from, name)
}

func (s *scanner) rangeOfName(name string, from int32) logger.Range {
	return s.rangeAtOrAfter(s.offsetsOf(name), name, from)
}

// Returns the last occurrence of "name" in [from, end). Bindings of an import
// statement are written before its path.
func (s *scanner) rangeOfNameBefore(name string, from int32, end int32) logger.Range {
	if r, ok := s.lastNameBetween(name, from, end); ok {
		return r
	}
	return s.rangeOfName(name, from)
}

func (s *scanner) lastNameBetween(name string, from int32, end int32) (logger.Range, bool) {
	offsets := s.offsetsOf(name)
	i := sort.Search(len(offsets), func(i int) bool { return offsets[i] >= end })
	if i > 0 && offsets[i-1] >= from {
		return logger.Range{Loc: logger.Loc{Start: offsets[i-1]}, Len: int32(len(name))}, true
	}
	return logger.Range{}, false
}

// Moves a cursor past the next occurrence of "name" and returns it
func (s *scanner) advanceToName(cursor *int32, name string) logger.Range {
	return advance(cursor, s.rangeOfName(name, *cursor))
}

// Like advanceToName but also matches string literals, as in
// 'Object.defineProperty(exports, "__esModule", ...)'
func (s *scanner) advanceToAnyOccurrence(cursor *int32, name string) logger.Range {
	return advance(cursor, s.rangeAtOrAfter(s.allOffsetsOf(name), name, *cursor))
}

func advance(cursor *int32, r logger.Range) logger.Range {
	if r.Len > 0 && r.End() > *cursor {
		*cursor = r.End()
	}
	return r
}

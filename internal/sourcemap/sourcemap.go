package sourcemap

// Output is reprinted from the syntax tree, so original columns are not
// known. Mappings are line-granular: every generated line of a module maps
// to the start of that module's source file.

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/hoistjs/hoist/internal/helpers"
)

type Mapping struct {
	GeneratedLine   int32 // 0-based
	GeneratedColumn int32 // 0-based count of UTF-16 code units

	SourceIndex    int32 // 0-based
	OriginalLine   int32 // 0-based
	OriginalColumn int32 // 0-based count of UTF-16 code units
}

type SourceMap struct {
	Sources        []string
	SourcesContent []string
	Mappings       []Mapping
}

func (sm *SourceMap) Find(line int32, column int32) *Mapping {
	mappings := sm.Mappings

	// Binary search
	count := len(mappings)
	index := 0
	for count > 0 {
		step := count / 2
		i := index + step
		mapping := mappings[i]
		if mapping.GeneratedLine < line || (mapping.GeneratedLine == line && mapping.GeneratedColumn <= column) {
			index = i + 1
			count -= step + 1
		} else {
			count = step
		}
	}

	// Handle search failure
	if index > 0 {
		mapping := &mappings[index-1]

		// Match the behavior of the popular "source-map" library from Mozilla
		if mapping.GeneratedLine == line {
			return mapping
		}
	}
	return nil
}

var base64 = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/")

// A single base 64 digit can contain 6 bits of data. For the base 64 variable
// length quantities we use in the source map spec, the first bit is the sign,
// the next four bits are the actual value, and the 6th bit is the continuation
// bit. The continuation bit tells us whether there are more digits in this
// value following this digit.
//
//	Continuation
//	|    Sign
//	|    |
//	V    V
//	101011
func encodeVLQ(encoded []byte, value int) []byte {
	var vlq int
	if value < 0 {
		vlq = ((-value) << 1) | 1
	} else {
		vlq = value << 1
	}

	// Handle the common case
	if (vlq >> 5) == 0 {
		digit := vlq & 31
		encoded = append(encoded, base64[digit])
		return encoded
	}

	for {
		digit := vlq & 31
		vlq >>= 5

		// If there are still more digits in this value, we must make sure the
		// continuation bit is marked
		if vlq != 0 {
			digit |= 32
		}

		encoded = append(encoded, base64[digit])

		if vlq == 0 {
			break
		}
	}

	return encoded
}

var ErrInvalidVLQ = errors.New("invalid VLQ")

// Returns the decoded value and the offset after it
func DecodeVLQ(encoded []byte, start int) (int, int, error) {
	shift := 0
	vlq := 0

	for {
		if start >= len(encoded) {
			return 0, start, ErrInvalidVLQ
		}
		index := bytes.IndexByte(base64, encoded[start])
		if index < 0 {
			return 0, start, ErrInvalidVLQ
		}

		// Decode a single byte
		vlq |= (index & 31) << shift
		start++
		shift += 5

		// Stop if there's no continuation bit
		if (index & 32) == 0 {
			break
		}
	}

	// Recover the value
	value := vlq >> 1
	if (vlq & 1) != 0 {
		value = -value
	}
	return value, start, nil
}

// Coordinates in source maps are stored using relative offsets for size
// reasons, so the builder remembers the previous mapping
type state struct {
	sourceIndex    int
	originalLine   int
	originalColumn int
}

type Builder struct {
	sources  []string
	contents []string
	mappings []byte

	prev state

	// Every line of the output seen so far, mapped or not
	lineCount int
}

// AddSource registers a source file and returns its index
func (b *Builder) AddSource(path string, contents string) int {
	b.sources = append(b.sources, path)
	b.contents = append(b.contents, contents)
	return len(b.sources) - 1
}

// SkipLines adds generated lines that map to nothing, such as the output
// format wrapper and section comments
func (b *Builder) SkipLines(count int) {
	for i := 0; i < count; i++ {
		b.nextLine()
	}
}

// MapLines maps each of the next "count" generated lines to the start of the
// source with the given index
func (b *Builder) MapLines(count int, sourceIndex int) {
	for i := 0; i < count; i++ {
		b.nextLine()
		current := state{sourceIndex: sourceIndex}

		// Each line starts over at generated column 0
		b.mappings = encodeVLQ(b.mappings, 0)
		b.mappings = encodeVLQ(b.mappings, current.sourceIndex-b.prev.sourceIndex)
		b.mappings = encodeVLQ(b.mappings, current.originalLine-b.prev.originalLine)
		b.mappings = encodeVLQ(b.mappings, current.originalColumn-b.prev.originalColumn)
		b.prev = current
	}
}

func (b *Builder) nextLine() {
	if b.lineCount > 0 {
		b.mappings = append(b.mappings, ';')
	}
	b.lineCount++
}

// JSON returns the version 3 source map for the generated file "file"
func (b *Builder) JSON(file string) []byte {
	j := helpers.Joiner{}
	j.AddString("{\n  \"version\": 3,\n  \"file\": ")
	j.AddString(helpers.QuoteForJS(file))
	j.AddString(",\n  \"sources\": [")
	for i, source := range b.sources {
		if i > 0 {
			j.AddString(", ")
		}
		j.AddString(helpers.QuoteForJS(source))
	}
	j.AddString("],\n  \"sourcesContent\": [")
	for i, contents := range b.contents {
		if i > 0 {
			j.AddString(",")
		}
		j.AddString("\n    ")
		j.AddString(helpers.QuoteForJS(contents))
	}
	j.AddString("\n  ],\n  \"mappings\": \"")
	j.AddBytes(b.mappings)
	j.AddString("\",\n  \"names\": []\n}\n")
	return j.Done()
}

// ParseMappings decodes the "mappings" field of a source map. Only segments
// with a source are supported since that is all the builder writes.
func ParseMappings(mappings []byte) ([]Mapping, error) {
	var result []Mapping
	var line, column, sourceIndex, originalLine, originalColumn int
	for i := 0; i < len(mappings); {
		switch mappings[i] {
		case ';':
			line++
			column = 0
			i++
			continue
		case ',':
			i++
			continue
		}

		var deltas [4]int
		for k := range deltas {
			value, next, err := DecodeVLQ(mappings, i)
			if err != nil {
				return nil, fmt.Errorf("mapping %d on line %d: %w", len(result), line, err)
			}
			deltas[k] = value
			i = next
		}
		column += deltas[0]
		sourceIndex += deltas[1]
		originalLine += deltas[2]
		originalColumn += deltas[3]
		result = append(result, Mapping{
			GeneratedLine:   int32(line),
			GeneratedColumn: int32(column),
			SourceIndex:     int32(sourceIndex),
			OriginalLine:    int32(originalLine),
			OriginalColumn:  int32(originalColumn),
		})
	}
	return result, nil
}

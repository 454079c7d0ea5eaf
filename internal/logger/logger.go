package logger

// Diagnostics are designed to look like clang's error format. Each message
// carries the line it refers to, and the stderr log streams messages as they
// arrive while the deferred log collects them for the caller.

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

type Log struct {
	AddMsg    func(Msg)
	HasErrors func() bool
	Done      func() []Msg

	Level LogLevel
}

type LogLevel int8

const (
	LevelNone LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarning
	LevelError
	LevelSilent
)

type MsgKind uint8

const (
	Error MsgKind = iota
	Warning
	Info
	Debug
)

func (kind MsgKind) String() string {
	switch kind {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	case Debug:
		return "debug"
	default:
		panic("Internal error")
	}
}

// MsgClass says which stage produced a diagnostic. Only infrastructure and
// plugin errors abort a build in progress; everything else is collected and
// reported once the stage finishes.
type MsgClass uint8

const (
	ClassNone MsgClass = iota
	ClassResolution
	ClassParse
	ClassLink
	ClassInterop
	ClassInfrastructure
	ClassPlugin
)

func (class MsgClass) String() string {
	switch class {
	case ClassResolution:
		return "resolution"
	case ClassParse:
		return "parse"
	case ClassLink:
		return "link"
	case ClassInterop:
		return "interop"
	case ClassInfrastructure:
		return "infrastructure"
	case ClassPlugin:
		return "plugin"
	default:
		return ""
	}
}

type Msg struct {
	Kind     MsgKind
	Class    MsgClass
	Text     string
	Location *MsgLocation
	Notes    []MsgData
}

type MsgData struct {
	Text     string
	Location *MsgLocation
}

// IsFatal reports whether this message must stop the module loader
// immediately instead of being collected with its siblings.
func (msg Msg) IsFatal() bool {
	return msg.Kind == Error && (msg.Class == ClassInfrastructure || msg.Class == ClassPlugin)
}

type MsgLocation struct {
	File     string
	Line     int // 1-based
	Column   int // 0-based, in bytes
	Length   int // in bytes
	LineText string
}

type Loc struct {
	// This is the 0-based index of this location from the start of the file, in bytes
	Start int32
}

type Range struct {
	Loc Loc
	Len int32
}

func (r Range) End() int32 {
	return r.Loc.Start + r.Len
}

// This type is just so we can use Go's native sort function
type msgsArray []Msg

func (a msgsArray) Len() int          { return len(a) }
func (a msgsArray) Swap(i int, j int) { a[i], a[j] = a[j], a[i] }

func (a msgsArray) Less(i int, j int) bool {
	ai := a[i]
	aj := a[j]

	li := ai.Location
	lj := aj.Location

	// Location
	if li == nil && lj != nil {
		return true
	}
	if li != nil && lj == nil {
		return false
	}

	if li != nil && lj != nil {
		if li.File != lj.File {
			return li.File < lj.File
		}
		if li.Line != lj.Line {
			return li.Line < lj.Line
		}
		if li.Column != lj.Column {
			return li.Column < lj.Column
		}
		if li.Length != lj.Length {
			return li.Length < lj.Length
		}
	}

	if ai.Kind != aj.Kind {
		return ai.Kind < aj.Kind
	}
	return ai.Text < aj.Text
}

// Path identifies a module. Namespace "file" is a file system path; other
// namespaces are virtual modules produced by plugins or by the bundler itself
// (the runtime module uses the "runtime" namespace).
type Path struct {
	Text      string
	Namespace string
}

func (a Path) String() string {
	if a.Namespace == "file" || a.Namespace == "" {
		return a.Text
	}
	return a.Namespace + ":" + a.Text
}

type Source struct {
	Index uint32

	// The unique key for this module. Never shown to the user.
	KeyPath Path

	// Relative to the working directory with forward slashes. Used in error
	// messages, in "// path" comments and as the stable id for hot patches.
	PrettyPath string

	// Mixed into generated symbol names. For "util.js" this is "util", so the
	// namespace object becomes "util_exports".
	IdentifierName string

	Contents string
}

// RangeOfQuoted finds the first occurrence of the quoted specifier text
// starting at "from". The parser does not keep node offsets so import record
// ranges are recovered from the source text.
func (s *Source) RangeOfQuoted(from int32, quoted string) Range {
	if from < 0 || int(from) > len(s.Contents) {
		from = 0
	}
	if i := strings.Index(s.Contents[from:], quoted); i != -1 {
		return Range{Loc: Loc{Start: from + int32(i)}, Len: int32(len(quoted))}
	}
	if i := strings.Index(s.Contents, quoted); i != -1 {
		return Range{Loc: Loc{Start: int32(i)}, Len: int32(len(quoted))}
	}
	return Range{}
}

// LocOfLineColumn converts a 1-based line and 1-based column into an offset.
func (s *Source) LocOfLineColumn(line int, column int) Loc {
	offset := 0
	for i := 1; i < line; i++ {
		next := strings.IndexByte(s.Contents[offset:], '\n')
		if next == -1 {
			return Loc{Start: int32(len(s.Contents))}
		}
		offset += next + 1
	}
	offset += column - 1
	if offset < 0 {
		offset = 0
	}
	if offset > len(s.Contents) {
		offset = len(s.Contents)
	}
	return Loc{Start: int32(offset)}
}

func plural(prefix string, count int) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, prefix)
	}
	return fmt.Sprintf("%d %ss", count, prefix)
}

func errorAndWarningSummary(errors int, warnings int) string {
	switch {
	case errors == 0:
		return plural("warning", warnings)
	case warnings == 0:
		return plural("error", errors)
	default:
		return fmt.Sprintf("%s and %s",
			plural("warning", warnings),
			plural("error", errors))
	}
}

type TerminalInfo struct {
	IsTTY           bool
	UseColorEscapes bool
	Width           int
	Height          int
}

type StderrColor uint8

const (
	ColorIfTerminal StderrColor = iota
	ColorNever
	ColorAlways
)

type StderrOptions struct {
	IncludeSource bool
	ErrorLimit    int
	Color         StderrColor
	LogLevel      LogLevel
}

func NewStderrLog(options StderrOptions) Log {
	var mutex sync.Mutex
	var msgs msgsArray
	terminalInfo := GetTerminalInfo(os.Stderr)
	errors := 0
	warnings := 0
	errorLimitWasHit := false

	switch options.Color {
	case ColorNever:
		terminalInfo.UseColorEscapes = false
	case ColorAlways:
		terminalInfo.UseColorEscapes = true
	}

	return Log{
		Level: options.LogLevel,
		AddMsg: func(msg Msg) {
			mutex.Lock()
			defer mutex.Unlock()
			msgs = append(msgs, msg)

			// Be silent if we're past the limit so we don't flood the terminal
			if errorLimitWasHit {
				return
			}

			switch msg.Kind {
			case Error:
				errors++
				if options.LogLevel <= LevelError {
					os.Stderr.WriteString(msg.String(options, terminalInfo))
				}
			case Warning:
				warnings++
				if options.LogLevel <= LevelWarning {
					os.Stderr.WriteString(msg.String(options, terminalInfo))
				}
			case Info:
				if options.LogLevel <= LevelInfo {
					os.Stderr.WriteString(msg.String(options, terminalInfo))
				}
			case Debug:
				if options.LogLevel <= LevelDebug {
					os.Stderr.WriteString(msg.String(options, terminalInfo))
				}
			}

			// Silence further output if we reached the error limit
			if options.ErrorLimit != 0 && errors >= options.ErrorLimit {
				errorLimitWasHit = true
				if options.LogLevel <= LevelError {
					os.Stderr.WriteString(fmt.Sprintf(
						"%s reached (disable error limit with --error-limit=0)\n", errorAndWarningSummary(errors, warnings)))
				}
			}
		},
		HasErrors: func() bool {
			mutex.Lock()
			defer mutex.Unlock()
			return errors > 0
		},
		Done: func() []Msg {
			mutex.Lock()
			defer mutex.Unlock()

			// Print out a summary if the error limit wasn't hit
			if !errorLimitWasHit && options.LogLevel <= LevelInfo && (warnings != 0 || errors != 0) {
				os.Stderr.WriteString(fmt.Sprintf("%s\n", errorAndWarningSummary(errors, warnings)))
			}

			sort.Stable(msgs)
			return msgs
		},
	}
}

func PrintErrorToStderr(text string) {
	log := NewStderrLog(StderrOptions{IncludeSource: true})
	log.AddMsg(Msg{Kind: Error, Text: text})
	log.Done()
}

func NewDeferLog() Log {
	var msgs msgsArray
	var mutex sync.Mutex
	var hasErrors bool

	return Log{
		Level: LevelInfo,
		AddMsg: func(msg Msg) {
			mutex.Lock()
			defer mutex.Unlock()
			if msg.Kind == Error {
				hasErrors = true
			}
			msgs = append(msgs, msg)
		},
		HasErrors: func() bool {
			mutex.Lock()
			defer mutex.Unlock()
			return hasErrors
		},
		Done: func() []Msg {
			mutex.Lock()
			defer mutex.Unlock()
			sort.Stable(msgs)
			return msgs
		},
	}
}

// HasFatal reports whether any message in the batch is fatal.
func HasFatal(msgs []Msg) bool {
	for _, msg := range msgs {
		if msg.IsFatal() {
			return true
		}
	}
	return false
}

func HasErrors(msgs []Msg) bool {
	for _, msg := range msgs {
		if msg.Kind == Error {
			return true
		}
	}
	return false
}

const colorReset = "\033[0m"
const colorRed = "\033[31m"
const colorGreen = "\033[32m"
const colorBlue = "\033[34m"
const colorMagenta = "\033[35m"
const colorDim = "\033[37m"
const colorBold = "\033[1m"
const colorResetBold = "\033[0;1m"

type Colors struct {
	Reset string
	Red   string
	Green string
	Dim   string
}

var TerminalColors = Colors{
	Reset: colorReset,
	Red:   colorRed,
	Green: colorGreen,
	Dim:   colorDim,
}

func kindColor(kind MsgKind) string {
	switch kind {
	case Error:
		return colorRed
	case Warning:
		return colorMagenta
	default:
		return colorBlue
	}
}

func (msg Msg) String(options StderrOptions, terminalInfo TerminalInfo) string {
	kind := msg.Kind.String()
	color := kindColor(msg.Kind)
	text := msg.Text
	if msg.Class != ClassNone && msg.Kind == Error {
		kind = msg.Class.String() + " " + kind
	}

	var sb strings.Builder
	switch {
	case msg.Location == nil:
		if terminalInfo.UseColorEscapes {
			sb.WriteString(fmt.Sprintf("%s%s%s: %s%s%s\n",
				colorBold, color, kind,
				colorResetBold, text,
				colorReset))
		} else {
			sb.WriteString(fmt.Sprintf("%s: %s\n", kind, text))
		}

	case !options.IncludeSource:
		if terminalInfo.UseColorEscapes {
			sb.WriteString(fmt.Sprintf("%s%s: %s%s: %s%s%s\n",
				colorBold, msg.Location.File,
				color, kind,
				colorResetBold, text,
				colorReset))
		} else {
			sb.WriteString(fmt.Sprintf("%s: %s: %s\n", msg.Location.File, kind, text))
		}

	default:
		d := detailStruct(msg.Location, terminalInfo)
		if terminalInfo.UseColorEscapes {
			sb.WriteString(fmt.Sprintf("%s%s:%d:%d: %s%s: %s%s\n%s%s%s%s%s%s\n%s%s%s%s\n",
				colorBold, d.Path, d.Line, d.Column,
				color, kind,
				colorResetBold, text,
				colorReset, d.SourceBefore, colorGreen, d.SourceMarked, colorReset, d.SourceAfter,
				colorGreen, d.Indent, d.Marker,
				colorReset))
		} else {
			sb.WriteString(fmt.Sprintf("%s:%d:%d: %s: %s\n%s\n%s%s\n",
				d.Path, d.Line, d.Column, kind, text, d.Source, d.Indent, d.Marker))
		}
	}

	for _, note := range msg.Notes {
		if note.Location == nil {
			sb.WriteString(fmt.Sprintf("  note: %s\n", note.Text))
		} else {
			sb.WriteString(fmt.Sprintf("  %s:%d:%d: note: %s\n",
				note.Location.File, note.Location.Line, note.Location.Column, note.Text))
		}
	}
	return sb.String()
}

type MsgDetail struct {
	Path   string
	Line   int
	Column int

	// Source == SourceBefore + SourceMarked + SourceAfter
	Source       string
	SourceBefore string
	SourceMarked string
	SourceAfter  string

	Indent string
	Marker string
}

func computeLineAndColumn(contents string, offset int) (lineCount int, columnCount int, lineStart int, lineEnd int) {
	var prevCodePoint rune
	if offset > len(contents) {
		offset = len(contents)
	}

	// Scan up to the offset and count lines
	for i, codePoint := range contents[:offset] {
		switch codePoint {
		case '\n':
			lineStart = i + 1
			if prevCodePoint != '\r' {
				lineCount++
			}
		case '\r':
			lineStart = i + 1
			lineCount++
		case '\u2028', '\u2029':
			lineStart = i + 3 // These take three bytes to encode in UTF-8
			lineCount++
		}
		prevCodePoint = codePoint
	}

	// Scan to the end of the line (or end of file if this is the last line)
	lineEnd = len(contents)
loop:
	for i, codePoint := range contents[offset:] {
		switch codePoint {
		case '\r', '\n', '\u2028', '\u2029':
			lineEnd = offset + i
			break loop
		}
	}

	columnCount = offset - lineStart
	return
}

func LocationOrNil(source *Source, r Range) *MsgLocation {
	if source == nil {
		return nil
	}

	// Convert the index into a line and column number
	lineCount, columnCount, lineStart, lineEnd := computeLineAndColumn(source.Contents, int(r.Loc.Start))

	return &MsgLocation{
		File:     source.PrettyPath,
		Line:     lineCount + 1, // 0-based to 1-based
		Column:   columnCount,
		Length:   int(r.Len),
		LineText: source.Contents[lineStart:lineEnd],
	}
}

func detailStruct(location *MsgLocation, terminalInfo TerminalInfo) MsgDetail {
	loc := *location
	lineText := renderTabStops(loc.LineText, 2)

	// Clamp values in range
	if loc.Column < 0 {
		loc.Column = 0
	}
	if loc.Column > len(loc.LineText) {
		loc.Column = len(loc.LineText)
	}
	if loc.Length < 0 {
		loc.Length = 0
	}
	if loc.Length > len(loc.LineText)-loc.Column {
		loc.Length = len(loc.LineText) - loc.Column
	}

	markerStart := len(renderTabStops(loc.LineText[:loc.Column], 2))
	markerEnd := markerStart
	if loc.Length > 0 {
		markerEnd = len(renderTabStops(loc.LineText[:loc.Column+loc.Length], 2))
	}

	// Trim the line to fit the terminal width
	width := terminalInfo.Width
	if width < 1 {
		width = 80
	}
	if len(lineText) > width {
		sliceStart := markerStart - width/5
		if sliceStart < 0 {
			sliceStart = 0
		}
		if sliceStart > len(lineText)-width {
			sliceStart = len(lineText) - width
		}
		lineText = lineText[sliceStart : sliceStart+width]
		markerStart -= sliceStart
		markerEnd -= sliceStart
		if markerEnd > len(lineText) {
			markerEnd = len(lineText)
		}
	}

	marker := "^"
	if markerEnd-markerStart > 1 {
		marker = strings.Repeat("~", markerEnd-markerStart)
	}

	return MsgDetail{
		Path:   loc.File,
		Line:   loc.Line,
		Column: loc.Column,

		Source:       lineText,
		SourceBefore: lineText[:markerStart],
		SourceMarked: lineText[markerStart:markerEnd],
		SourceAfter:  lineText[markerEnd:],

		Indent: strings.Repeat(" ", markerStart),
		Marker: marker,
	}
}

func renderTabStops(withTabs string, spacesPerTab int) string {
	if !strings.ContainsRune(withTabs, '\t') {
		return withTabs
	}

	withoutTabs := strings.Builder{}
	count := 0

	for _, c := range withTabs {
		if c == '\t' {
			spaces := spacesPerTab - count%spacesPerTab
			for i := 0; i < spaces; i++ {
				withoutTabs.WriteRune(' ')
				count++
			}
		} else {
			withoutTabs.WriteRune(c)
			count++
		}
	}

	return withoutTabs.String()
}

func (log Log) AddError(source *Source, class MsgClass, loc Loc, text string) {
	log.AddMsg(Msg{
		Kind:     Error,
		Class:    class,
		Text:     text,
		Location: LocationOrNil(source, Range{Loc: loc}),
	})
}

func (log Log) AddWarning(source *Source, class MsgClass, loc Loc, text string) {
	log.AddMsg(Msg{
		Kind:     Warning,
		Class:    class,
		Text:     text,
		Location: LocationOrNil(source, Range{Loc: loc}),
	})
}

func (log Log) AddRangeError(source *Source, class MsgClass, r Range, text string) {
	log.AddMsg(Msg{
		Kind:     Error,
		Class:    class,
		Text:     text,
		Location: LocationOrNil(source, r),
	})
}

package fs

import (
	"errors"
	"strings"
	"sync"
)

type EntryKind uint8

const (
	DirEntry  EntryKind = 1
	FileEntry EntryKind = 2
)

type Entry struct {
	Kind EntryKind

	// Set when the entry is a symbolic link, to the resolved target path
	Symlink string
}

type FS interface {
	// The returned map is immutable and is cached across invocations. Do not
	// mutate it.
	ReadDirectory(path string) (map[string]Entry, error)
	ReadFile(path string) (string, error)
	WriteFile(path string, contents []byte) error

	// A cheap way to tell whether a file has changed since it was last read.
	// Returns an error if no key can be computed reliably.
	ModKey(path string) (ModKey, error)

	// These are part of the interface so the mock file system used in tests
	// does not depend on the host's path conventions.
	IsAbs(path string) bool
	Abs(path string) (string, bool)
	Dir(path string) string
	Base(path string) string
	Ext(path string) string
	Join(parts ...string) string
	Cwd() string
	Rel(base string, target string) (string, bool)
}

// ModKey is a file identity taken from a "stat" call. Two equal keys mean the
// file very likely has the same contents.
type ModKey struct {
	// What gets filled in here is OS-dependent
	inode      uint64
	size       int64
	mtime_sec  int64
	mtime_nsec int64
	mode       uint32
	uid        uint32
}

// Some file systems have a time resolution of only a few seconds. If a mtime
// value is too new, we won't be able to tell if it has been recently modified
// or not. So we only use mtimes for comparison if they are sufficiently old.
// Apparently the FAT file system has a resolution of two seconds according to
// this article: https://en.wikipedia.org/wiki/Stat_(system_call).
const modKeySafetyGap = 3 // In seconds
var modKeyUnusable = errors.New("The modification key is unusable")

var ErrNotFound = errors.New("file not found")

// PrettyPath turns an absolute path into the stable, forward-slash path used
// in diagnostics, section comments and hot-patch module ids.
func PrettyPath(fs FS, absPath string) string {
	if rel, ok := fs.Rel(fs.Cwd(), absPath); ok && !strings.HasPrefix(rel, "..") {
		absPath = rel
	}
	return strings.ReplaceAll(absPath, "\\", "/")
}

// Limit the number of files open simultaneously to avoid ulimit issues
var fileOpenLimit = make(chan bool, 32)

func BeforeFileOpen() {
	fileOpenLimit <- false
}

func AfterFileClose() {
	<-fileOpenLimit
}

type dirCache struct {
	mutex   sync.Mutex
	entries map[string]entriesOrErr
}

type entriesOrErr struct {
	entries map[string]Entry
	err     error
}

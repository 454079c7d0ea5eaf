package fs

// This is a mock implementation of the "fs" module for use with tests. It does
// not actually read from the file system. Instead, it reads from a pre-specified
// map of file paths to files.

import (
	"errors"
	"path"
	"strings"
	"sync"
)

type mockFS struct {
	mutex   sync.Mutex
	dirs    map[string]map[string]Entry
	files   map[string]string
	version map[string]int64
}

// MockFS also implements the Writer interface so tests can simulate edits
// between builds.
type MockWriter interface {
	FS
	SetFile(path string, contents string)
	Files() map[string]string
}

func MockFS(input map[string]string) MockWriter {
	fs := &mockFS{
		dirs:    make(map[string]map[string]Entry),
		files:   make(map[string]string),
		version: make(map[string]int64),
	}
	for k, v := range input {
		fs.addFile(k, v)
	}
	return fs
}

func (fs *mockFS) addFile(k string, v string) {
	fs.files[k] = v
	fs.version[k]++
	original := k

	// Build the directory map
	for {
		kDir := path.Dir(k)
		dir, ok := fs.dirs[kDir]
		if !ok {
			dir = make(map[string]Entry)
			fs.dirs[kDir] = dir
		}
		if kDir == k {
			break
		}
		if k == original {
			dir[path.Base(k)] = Entry{Kind: FileEntry}
		} else {
			dir[path.Base(k)] = Entry{Kind: DirEntry}
		}
		k = kDir
	}
}

func (fs *mockFS) SetFile(path string, contents string) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	fs.addFile(path, contents)
}

func (fs *mockFS) Files() map[string]string {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	files := make(map[string]string, len(fs.files))
	for k, v := range fs.files {
		files[k] = v
	}
	return files
}

func (fs *mockFS) ReadDirectory(path string) (map[string]Entry, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	if dir, ok := fs.dirs[path]; ok {
		return dir, nil
	}
	return nil, ErrNotFound
}

func (fs *mockFS) ReadFile(path string) (string, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	if contents, ok := fs.files[path]; ok {
		return contents, nil
	}
	return "", ErrNotFound
}

func (fs *mockFS) WriteFile(path string, contents []byte) error {
	fs.SetFile(path, string(contents))
	return nil
}

// The mock key only changes when a file is written through SetFile, which is
// enough for tests of the content cache.
func (fs *mockFS) ModKey(path string) (ModKey, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	version, ok := fs.version[path]
	if !ok {
		return ModKey{}, errors.New("This is not available during tests")
	}
	return ModKey{size: int64(len(fs.files[path])), mtime_sec: version}, nil
}

func (*mockFS) IsAbs(p string) bool {
	return strings.HasPrefix(p, "/")
}

func (*mockFS) Abs(p string) (string, bool) {
	return path.Clean(path.Join("/", p)), true
}

func (*mockFS) Dir(p string) string {
	return path.Dir(p)
}

func (*mockFS) Base(p string) string {
	return path.Base(p)
}

func (*mockFS) Ext(p string) string {
	return path.Ext(p)
}

func (*mockFS) Join(parts ...string) string {
	return path.Clean(path.Join(parts...))
}

func (*mockFS) Cwd() string {
	return "/"
}

func splitOnSlash(path string) (string, string) {
	if slash := strings.IndexByte(path, '/'); slash != -1 {
		return path[:slash], path[slash+1:]
	}
	return path, ""
}

func (*mockFS) Rel(base string, target string) (string, bool) {
	base = path.Clean(base)
	target = path.Clean(target)

	// Base cases
	if base == "" || base == "." {
		return target, true
	}
	if base == target {
		return ".", true
	}

	// Find the common parent directory
	for {
		bHead, bTail := splitOnSlash(base)
		tHead, tTail := splitOnSlash(target)
		if bHead != tHead {
			break
		}
		base = bTail
		target = tTail
	}

	// Stop now if base is a subpath of target
	if base == "" {
		return target, true
	}

	// Traverse up to the common parent
	commonParent := strings.Repeat("../", strings.Count(base, "/")+1)

	// Stop now if target is a subpath of base
	if target == "" {
		return commonParent[:len(commonParent)-1], true
	}

	// Otherwise, down to the parent
	return commonParent + target, true
}

package fs

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
)

type realFS struct {
	// Stores the file entries for directories we've listed before
	cache dirCache
	cwd   string
}

func RealFS() FS {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	} else if path, err := filepath.EvalSymlinks(cwd); err == nil {
		// Input paths are made absolute with symlinks resolved, so the working
		// directory has to be resolved the same way for relative paths to line up
		cwd = path
	}
	return &realFS{
		cache: dirCache{entries: make(map[string]entriesOrErr)},
		cwd:   cwd,
	}
}

func (fs *realFS) ReadDirectory(dir string) (map[string]Entry, error) {
	fs.cache.mutex.Lock()
	cached, ok := fs.cache.entries[dir]
	fs.cache.mutex.Unlock()
	if ok {
		return cached.entries, cached.err
	}

	names, err := readdir(dir)
	var entries map[string]Entry
	if err == nil {
		entries = make(map[string]Entry, len(names))
		for _, name := range names {
			if symlink, kind := fs.kind(dir, name); kind != 0 {
				entries[name] = Entry{Kind: kind, Symlink: symlink}
			}
		}
	}

	// Update the cache unconditionally. Even if the read failed, we don't want to
	// retry again later. The directory is inaccessible so trying again is wasted.
	fs.cache.mutex.Lock()
	fs.cache.entries[dir] = entriesOrErr{entries: entries, err: err}
	fs.cache.mutex.Unlock()
	return entries, err
}

func (fs *realFS) ReadFile(path string) (string, error) {
	BeforeFileOpen()
	defer AfterFileClose()
	buffer, err := os.ReadFile(path)

	// Unwrap to get the underlying error
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		err = pathErr.Unwrap()
	}
	if err == syscall.ENOENT || err == syscall.ENOTDIR {
		return "", ErrNotFound
	}
	return string(buffer), err
}

func (fs *realFS) WriteFile(path string, contents []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	BeforeFileOpen()
	defer AfterFileClose()
	return os.WriteFile(path, contents, 0o644)
}

func (fs *realFS) ModKey(path string) (ModKey, error) {
	BeforeFileOpen()
	defer AfterFileClose()
	return modKey(path)
}

func (fs *realFS) IsAbs(p string) bool {
	return filepath.IsAbs(p)
}

func (fs *realFS) Abs(p string) (string, bool) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(fs.cwd, p)
	}
	return filepath.Clean(p), true
}

func (fs *realFS) Dir(p string) string {
	return filepath.Dir(p)
}

func (fs *realFS) Base(p string) string {
	return filepath.Base(p)
}

func (fs *realFS) Ext(p string) string {
	return filepath.Ext(p)
}

func (fs *realFS) Join(parts ...string) string {
	return filepath.Clean(filepath.Join(parts...))
}

func (fs *realFS) Cwd() string {
	return fs.cwd
}

func (fs *realFS) Rel(base string, target string) (string, bool) {
	if rel, err := filepath.Rel(base, target); err == nil {
		return rel, true
	}
	return "", false
}

func readdir(dirname string) ([]string, error) {
	BeforeFileOpen()
	defer AfterFileClose()
	f, err := os.Open(dirname)

	// Unwrap to get the underlying error
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		err = pathErr.Unwrap()
	}
	if err == syscall.ENOTDIR {
		return nil, syscall.ENOENT
	}
	if err != nil {
		return nil, err
	}

	defer f.Close()
	return f.Readdirnames(-1)
}

func (fs *realFS) kind(dir string, base string) (symlink string, kind EntryKind) {
	entryPath := filepath.Join(dir, base)

	// Use "lstat" since we want information about symbolic links
	stat, err := os.Lstat(entryPath)
	if err != nil {
		return
	}
	mode := stat.Mode()

	// Follow symlinks now so the cache contains the translation
	if (mode & os.ModeSymlink) != 0 {
		link, err := filepath.EvalSymlinks(entryPath)
		if err != nil {
			return // Skip over this entry
		}
		symlink = link
		stat2, err2 := os.Stat(link)
		if err2 != nil {
			return
		}
		mode = stat2.Mode()
	}

	// We consider the entry either a directory or a file
	if (mode & os.ModeDir) != 0 {
		kind = DirEntry
	} else {
		kind = FileEntry
	}
	return
}

package cache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/hoistjs/hoist/internal/fs"
)

// This cache uses information from the "stat" syscall to try to avoid re-
// reading files from the file system during subsequent builds if the file
// hasn't changed. The assumption is reading the file metadata is faster than
// reading the file contents.

type FSCache struct {
	entries map[string]*fsEntry
	mutex   sync.Mutex
	hits    int
	misses  int
}

type fsEntry struct {
	contents       string
	hash           uint64
	modKey         fs.ModKey
	isModKeyUsable bool
}

// ReadFile returns the contents of the file along with an xxhash of the
// contents. The hash is what incremental rebuilds compare to decide whether
// a re-scanned module actually changed.
func (c *FSCache) ReadFile(fsys fs.FS, path string) (contents string, hash uint64, err error) {
	entry := func() *fsEntry {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		return c.entries[path]
	}()

	// If the file's modification key hasn't changed since it was cached, assume
	// the contents of the file are also the same and skip reading the file.
	modKey, modKeyErr := fsys.ModKey(path)
	if entry != nil && entry.isModKeyUsable && modKeyErr == nil && entry.modKey == modKey {
		c.mutex.Lock()
		c.hits++
		c.mutex.Unlock()
		return entry.contents, entry.hash, nil
	}

	contents, err = fsys.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	hash = xxhash.Sum64String(contents)

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.misses++
	c.entries[path] = &fsEntry{
		contents:       contents,
		hash:           hash,
		modKey:         modKey,
		isModKeyUsable: modKeyErr == nil,
	}
	return contents, hash, nil
}

// Invalidate drops a cached entry so the next read goes to the file system.
// Watch mode calls this for every changed path because some file systems
// report changes faster than their mtime resolution.
func (c *FSCache) Invalidate(path string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.entries, path)
}

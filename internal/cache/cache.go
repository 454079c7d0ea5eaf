package cache

// This is a cache of file contents shared between builds of the same bundler.
// Entries are only trusted while the file's modification key is unchanged,
// so a long-lived bundler (watch mode, hot patches) avoids re-reading files
// that have not been touched. The cache never holds anything derived from
// more than one file.
type CacheSet struct {
	FSCache FSCache
}

func MakeCacheSet() *CacheSet {
	return &CacheSet{
		FSCache: FSCache{
			entries: make(map[string]*fsEntry),
		},
	}
}

// Stats is reported in debug logs after each build.
type Stats struct {
	Hits   int
	Misses int
}

func (c *CacheSet) Stats() Stats {
	c.FSCache.mutex.Lock()
	defer c.FSCache.mutex.Unlock()
	return Stats{Hits: c.FSCache.hits, Misses: c.FSCache.misses}
}

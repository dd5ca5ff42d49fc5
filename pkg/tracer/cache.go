package tracer

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// cwdCacheSize bounds the number of distinct PIDs whose CWD is cached at
// once; a tree of a few thousand short-lived tracees is the expected
// upper bound for a single run.
const cwdCacheSize = 4096

// cwdCache memoizes the CWD symlink read for each tracee PID so a process
// that issues many relative-path syscalls between chdir calls doesn't
// re-read /proc/<pid>/cwd on every single one. Entries are invalidated
// whenever the owning process observably changes its working directory.
type cwdCache struct {
	cache *lru.Cache[int, string]
}

func newCWDCache() *cwdCache {
	c, err := lru.New[int, string](cwdCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which cwdCacheSize
		// never is.
		panic(err)
	}
	return &cwdCache{cache: c}
}

func (c *cwdCache) get(pid int) (string, bool) {
	return c.cache.Get(pid)
}

func (c *cwdCache) set(pid int, cwd string) {
	c.cache.Add(pid, cwd)
}

func (c *cwdCache) invalidate(pid int) {
	c.cache.Remove(pid)
}

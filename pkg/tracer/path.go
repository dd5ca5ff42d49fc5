package tracer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolvePath converts a possibly-relative path observed in a tracee's
// syscall arguments into an absolute path, using that tracee's current
// working directory. This ignores *at-family dirfd semantics beyond
// AT_FDCWD: it is a best-effort resolution, not a faithful
// re-implementation of path lookup.
func (c *cwdCache) resolvePath(pid int, path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}

	cwd, ok := c.get(pid)
	if !ok {
		link, err := os.Readlink(fmt.Sprintf("/proc/%d/cwd", pid))
		if err != nil {
			return path
		}
		cwd = link
		c.set(pid, cwd)
	}

	joined := filepath.Join(cwd, path)
	if canon, err := filepath.EvalSymlinks(joined); err == nil {
		return canon
	}
	return joined
}

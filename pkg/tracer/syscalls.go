package tracer

import "strconv"

// x86_64 syscall numbers for every syscall this engine gives semantics to.
// Numbers are taken from the Linux x86_64 syscall table; this tracer is
// x86_64-only by design.
const (
	sysRead           = 0
	sysWrite          = 1
	sysOpen           = 2
	sysClose          = 3
	sysMmap           = 9
	sysPread64        = 17
	sysPwrite64       = 18
	sysReadv          = 19
	sysWritev         = 20
	sysSendfile       = 40
	sysClone          = 56
	sysFork           = 57
	sysVfork          = 58
	sysExecve         = 59
	sysChdir          = 80
	sysFchdir         = 81
	sysRename         = 82
	sysOpenat         = 257
	sysRenameat       = 264
	sysPreadv         = 295
	sysPwritev        = 296
	sysRenameat2      = 316
	sysExecveat       = 322
	sysCopyFileRange  = 326
	sysPreadv2        = 327
	sysPwritev2       = 328
	sysClone3         = 435
)

// syscallNames backs the optional --verbose trace log; it is not consulted
// for report classification.
var syscallNames = map[uint64]string{
	sysRead:          "read",
	sysWrite:         "write",
	sysOpen:          "open",
	sysClose:         "close",
	sysMmap:          "mmap",
	sysPread64:       "pread64",
	sysPwrite64:      "pwrite64",
	sysReadv:         "readv",
	sysWritev:        "writev",
	sysSendfile:      "sendfile",
	sysClone:         "clone",
	sysFork:          "fork",
	sysVfork:         "vfork",
	sysExecve:        "execve",
	sysChdir:         "chdir",
	sysFchdir:        "fchdir",
	sysRename:        "rename",
	sysOpenat:        "openat",
	sysRenameat:      "renameat",
	sysPreadv:        "preadv",
	sysPwritev:       "pwritev",
	sysRenameat2:     "renameat2",
	sysExecveat:      "execveat",
	sysCopyFileRange: "copy_file_range",
	sysPreadv2:       "preadv2",
	sysPwritev2:      "pwritev2",
}

// syscallName returns a human name for nr, or its number if unknown.
func syscallName(nr uint64) string {
	if name, ok := syscallNames[nr]; ok {
		return name
	}
	return strconv.FormatUint(nr, 10)
}

const (
	protRead  = 1 << 0
	protWrite = 1 << 1
	mapShared = 1 << 0

	cloneFiles = 0x00000400
)

// pendingOpen bridges a syscall entry (where the path is readable) to its
// exit (where the returned fd is known). At most one per PID at a time,
// which ptrace's strict per-tracee entry/exit alternation guarantees.
type pendingOpen struct {
	path  string
	flags uint64
}

// onSyscallEntry applies the entry-time half of the syscall classification
// table. It both records pending state (open/openat/clone flags) and, for
// everything whose effect is fully determined at entry, mutates the
// accumulated opened/read/written sets directly.
func (t *Tracer) onSyscallEntry(ev *syscallEvent) {
	pid := ev.pid
	switch ev.Syscall() {
	case sysOpen:
		if path, ok := ev.ReadString(ev.Arg(0)); ok {
			resolved := t.cwd.resolvePath(pid, path)
			t.pendingOpens[pid] = pendingOpen{path: resolved, flags: ev.Arg(1)}
		} else {
			delete(t.pendingOpens, pid)
		}

	case sysOpenat:
		if path, ok := ev.ReadString(ev.Arg(1)); ok {
			resolved := t.cwd.resolvePath(pid, path)
			t.pendingOpens[pid] = pendingOpen{path: resolved, flags: ev.Arg(2)}
		} else {
			delete(t.pendingOpens, pid)
		}

	case sysRead, sysPread64, sysReadv, sysPreadv, sysPreadv2:
		if path, ok := t.fdTable.lookup(pid, int(int32(ev.Arg(0)))); ok {
			t.addRead(path)
		}

	case sysWrite, sysPwrite64, sysWritev, sysPwritev, sysPwritev2:
		if path, ok := t.fdTable.lookup(pid, int(int32(ev.Arg(0)))); ok {
			t.addWritten(path)
		}

	case sysSendfile:
		outFd := int(int32(ev.Arg(0)))
		inFd := int(int32(ev.Arg(1)))
		if path, ok := t.fdTable.lookup(pid, inFd); ok {
			t.addRead(path)
		}
		if path, ok := t.fdTable.lookup(pid, outFd); ok {
			t.addWritten(path)
		}

	case sysCopyFileRange:
		fdIn := int(int32(ev.Arg(0)))
		fdOut := int(int32(ev.Arg(4)))
		if path, ok := t.fdTable.lookup(pid, fdIn); ok {
			t.addRead(path)
		}
		if path, ok := t.fdTable.lookup(pid, fdOut); ok {
			t.addWritten(path)
		}

	case sysMmap:
		prot := ev.Arg(2)
		flags := ev.Arg(3)
		fd := int32(ev.Arg(4))
		if fd < 0 {
			break
		}
		if path, ok := t.fdTable.lookup(pid, int(fd)); ok {
			if prot&protRead != 0 {
				t.addRead(path)
			}
			if prot&protWrite != 0 && flags&mapShared != 0 {
				t.addWritten(path)
			}
		}

	case sysRename:
		if newpath, ok := ev.ReadString(ev.Arg(1)); ok {
			t.addWritten(t.cwd.resolvePath(pid, newpath))
		}

	case sysRenameat, sysRenameat2:
		if newpath, ok := ev.ReadString(ev.Arg(3)); ok {
			t.addWritten(t.cwd.resolvePath(pid, newpath))
		}

	case sysClose:
		t.pendingCloses[pid] = int(int32(ev.Arg(0)))

	case sysClone:
		t.pendingClones[pid] = ev.Arg(0)

	case sysClone3:
		// struct clone_args' first field is a u64 flags.
		if data, ok := readWord(pid, ev.Arg(0)); ok {
			t.pendingClones[pid] = data
		}

	case sysFork, sysVfork:
		delete(t.pendingClones, pid)

	case sysChdir, sysFchdir:
		t.cwd.invalidate(pid)
	}
}

// onSyscallExit applies the exit-time half of the table: only open/openat
// (whose effect depends on the returned fd) and close (fd-table cleanup on
// a successful close) do anything here.
func (t *Tracer) onSyscallExit(ev *syscallEvent) {
	pid := ev.pid
	switch ev.Syscall() {
	case sysOpen, sysOpenat:
		pending, ok := t.pendingOpens[pid]
		delete(t.pendingOpens, pid)
		if !ok {
			return
		}
		ret := ev.Return()
		if ret >= 0 {
			t.fdTable.insert(pid, int(ret), pending.path)
			t.addOpened(pending.path)
		}

	case sysClose:
		fd, ok := t.pendingCloses[pid]
		delete(t.pendingCloses, pid)
		if !ok {
			return
		}
		if ev.Return() >= 0 {
			t.fdTable.remove(pid, fd)
		}
	}
}

func (t *Tracer) addOpened(path string)  { t.opened[path] = struct{}{} }
func (t *Tracer) addRead(path string)    { t.read[path] = struct{}{} }
func (t *Tracer) addWritten(path string) { t.written[path] = struct{}{} }

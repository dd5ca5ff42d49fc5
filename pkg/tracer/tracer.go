// Package tracer implements a process-tree syscall tracer: it forks and
// execs a command under ptrace, follows every descendant spawned via
// fork/vfork/clone/exec, and reconstructs the set of filesystem paths each
// one opened, read, or wrote.
package tracer

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ptraceOptions configures tracing to distinguish syscall-stops from
// signal-delivery-stops, and to follow every way a tracee can spawn a
// descendant or replace its image.
const ptraceOptions = syscall.PTRACE_O_TRACESYSGOOD |
	syscall.PTRACE_O_TRACEFORK |
	syscall.PTRACE_O_TRACEVFORK |
	syscall.PTRACE_O_TRACECLONE |
	syscall.PTRACE_O_TRACEEXEC

// syscallStopSignal is the SIGTRAP|0x80 a PTRACE_O_TRACESYSGOOD tracee
// stops with at every syscall entry/exit, distinguishing it from a
// ptrace-event stop (plain SIGTRAP) or a real signal-delivery stop.
const syscallStopSignal = syscall.SIGTRAP | 0x80

// Logger receives a line of syscall-trace output when verbose logging is
// enabled; it never influences report content.
type Logger interface {
	Logf(format string, args ...any)
}

// Snapshot is the tracer's complete, immutable view of one traced run,
// handed back once the active-PID set drains to empty.
type Snapshot struct {
	Processes       []ProcessInfo
	Opened          []string
	Read            []string
	Written         []string
	EnvAccessed     map[string]string
	StartTime       float64
	EndTime         float64
	RootExitCode    int
	Interrupted     bool
	InterruptSignal int
}

// Tracer owns all mutable state for a single traced run. It is a
// single-threaded event loop: every field below is touched only from the
// dispatch loop's goroutine, with no locking, except active, which the
// SIGINT/SIGTERM watcher goroutine also reads and is therefore guarded by
// activeMu, and interrupted/interruptSignal, which that goroutine writes
// and which are therefore atomics.
type Tracer struct {
	Logger Logger

	cwd           *cwdCache
	fdTable       *fdTable
	pendingOpens  map[int]pendingOpen
	pendingCloses map[int]int
	pendingClones map[int]uint64
	inSyscall     map[int]bool
	active        map[int]struct{}
	activeMu      sync.Mutex // guards active against watchForInterrupt's goroutine
	processes     map[int]*ProcessInfo

	opened  map[string]struct{}
	read    map[string]struct{}
	written map[string]struct{}

	rootPID         int
	rootExitCode    int
	interrupted     atomic.Bool
	interruptSignal atomic.Int32
}

// New returns a Tracer ready to trace one run.
func New() *Tracer {
	return &Tracer{
		cwd:           newCWDCache(),
		fdTable:       newFdTable(),
		pendingOpens:  make(map[int]pendingOpen),
		pendingCloses: make(map[int]int),
		pendingClones: make(map[int]uint64),
		inSyscall:     make(map[int]bool),
		active:        make(map[int]struct{}),
		processes:     make(map[int]*ProcessInfo),
		opened:        make(map[string]struct{}),
		read:          make(map[string]struct{}),
		written:       make(map[string]struct{}),
	}
}

// Run forks and execs command, traces it and every descendant to
// completion, and returns the assembled Snapshot. A fork failure or an
// unworkable initial handshake is fatal; everything past that point is
// best-effort.
func (t *Tracer) Run(command []string) (*Snapshot, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("tracer: empty command")
	}

	start := time.Now()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("tracer: failed to start command: %w", err)
	}

	pid := cmd.Process.Pid
	t.rootPID = pid
	t.addActive(pid)

	var ws syscall.WaitStatus
	if _, err := syscall.Wait4(pid, &ws, 0, nil); err != nil {
		return nil, fmt.Errorf("tracer: initial wait4 failed: %w", err)
	}
	if !ws.Stopped() {
		return nil, fmt.Errorf("tracer: unexpected initial wait status: %v", ws)
	}

	if err := syscall.PtraceSetOptions(pid, ptraceOptions); err != nil {
		fmt.Fprintf(os.Stderr, "tracer: failed to set ptrace options: %v\n", err)
	}

	t.fdTable.seed(pid)
	info := captureProcessInfo(pid, nil)
	t.processes[pid] = &info

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go t.watchForInterrupt(sigCh)

	if err := syscall.PtraceSyscall(pid, 0); err != nil {
		return nil, fmt.Errorf("tracer: failed to resume traced child: %w", err)
	}

	t.dispatchLoop()

	end := time.Now()
	return t.assemble(start, end), nil
}

// watchForInterrupt detaches every live tracee on the first SIGINT/SIGTERM
// so they run free instead of being left group-stopped; it does not itself
// terminate the dispatch loop, which notices the tracees are gone via
// ECHILD/no-active-PIDs on its own.
func (t *Tracer) watchForInterrupt(sigCh <-chan os.Signal) {
	sig := <-sigCh
	// A second SIGINT/SIGTERM gets the default action and ends the tracer.
	signal.Reset(syscall.SIGINT, syscall.SIGTERM)
	t.interrupted.Store(true)
	if s, ok := sig.(syscall.Signal); ok {
		t.interruptSignal.Store(int32(s))
	}
	t.activeMu.Lock()
	pids := make([]int, 0, len(t.active))
	for pid := range t.active {
		pids = append(pids, pid)
	}
	t.activeMu.Unlock()
	for _, pid := range pids {
		syscall.PtraceDetach(pid)
	}
}

func (t *Tracer) addActive(pid int) {
	t.activeMu.Lock()
	t.active[pid] = struct{}{}
	t.activeMu.Unlock()
}

func (t *Tracer) removeActive(pid int) {
	t.activeMu.Lock()
	delete(t.active, pid)
	t.activeMu.Unlock()
}

func (t *Tracer) activeCount() int {
	t.activeMu.Lock()
	defer t.activeMu.Unlock()
	return len(t.active)
}

// dispatchLoop is the Tracer Event Loop (component E): it drains wait4(-1)
// until no tracees remain, routing each stop to the syscall engine, the
// ptrace-event handler, or straight back to the kernel as a re-injected
// signal.
func (t *Tracer) dispatchLoop() {
	for t.activeCount() > 0 {
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &ws, 0, nil)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			// ECHILD or anything else: nothing left to wait for.
			return
		}

		switch {
		case ws.Exited():
			t.onTerminal(pid, ws.ExitStatus())

		case ws.Signaled():
			t.onTerminal(pid, 128+int(ws.Signal()))

		case ws.Stopped():
			t.onStopped(pid, ws)
		}
	}
}

func (t *Tracer) onTerminal(pid int, exitCode int) {
	t.removeActive(pid)
	if pid == t.rootPID {
		t.rootExitCode = exitCode
	}
}

func (t *Tracer) onStopped(pid int, ws syscall.WaitStatus) {
	sig := ws.StopSignal()

	switch {
	case sig == syscallStopSignal:
		t.onSyscallStop(pid)
		syscall.PtraceSyscall(pid, 0)

	case sig == syscall.SIGTRAP && ws.TrapCause() != 0:
		t.onPtraceEvent(pid, ws.TrapCause())
		syscall.PtraceSyscall(pid, 0)

	default:
		// A normal signal-delivery stop: re-inject the signal and resume.
		syscall.PtraceSyscall(pid, int(sig))
	}
}

// onSyscallStop handles a trace-sysgood stop: the per-PID InSyscall flag
// flips false->true on entry, true->false on exit.
func (t *Tracer) onSyscallStop(pid int) {
	var regs syscall.PtraceRegs
	if err := syscall.PtraceGetRegs(pid, &regs); err != nil {
		// The tracee is probably already gone; the next wait4 will report it.
		return
	}
	ev := &syscallEvent{pid: pid, regs: regs}

	entry := !t.inSyscall[pid]
	t.inSyscall[pid] = entry

	if t.Logger != nil {
		t.logSyscall(ev, entry)
	}

	if entry {
		t.onSyscallEntry(ev)
	} else {
		t.onSyscallExit(ev)
	}
}

func (t *Tracer) logSyscall(ev *syscallEvent, entry bool) {
	dir := "exit "
	if entry {
		dir = "entry"
	}
	t.Logger.Logf("[%d] %s %s(%#x, %#x, %#x, %#x, %#x, %#x) = %d",
		ev.pid, dir, syscallName(ev.Syscall()),
		ev.Arg(0), ev.Arg(1), ev.Arg(2), ev.Arg(3), ev.Arg(4), ev.Arg(5), ev.Return())
}

// onPtraceEvent handles a fork/vfork/clone/exec meta-notification. These
// never flip InSyscall; only trace-sysgood stops do that.
func (t *Tracer) onPtraceEvent(pid int, cause int) {
	switch cause {
	case syscall.PTRACE_EVENT_FORK, syscall.PTRACE_EVENT_VFORK, syscall.PTRACE_EVENT_CLONE:
		msg, err := syscall.PtraceGetEventMsg(pid)
		if err != nil {
			return
		}
		child := int(msg)

		t.addActive(child)

		flags, hasFlags := t.pendingClones[pid]
		delete(t.pendingClones, pid)
		if hasFlags && flags&cloneFiles != 0 {
			t.fdTable.inheritShared(pid, child)
		} else {
			t.fdTable.inheritCopy(pid, child)
		}

		parent := pid
		info := captureProcessInfo(child, &parent)
		t.processes[child] = &info

	case syscall.PTRACE_EVENT_EXEC:
		existing := t.processes[pid]
		var parent *int
		if existing != nil {
			parent = existing.ParentPID
		}
		info := captureProcessInfo(pid, parent)
		t.processes[pid] = &info
		t.cwd.invalidate(pid)

		// execve's own exit stop never arrives as a trace-sysgood stop; this
		// event replaces it, so the entry/exit flag must be reset here or
		// the next syscall this PID makes would be misread as an exit.
		delete(t.inSyscall, pid)
	}
}

// assemble converts the tracer's accumulated state into the final,
// immutable Snapshot.
func (t *Tracer) assemble(start, end time.Time) *Snapshot {
	snap := &Snapshot{
		Opened:          setToSlice(t.opened),
		Read:            setToSlice(t.read),
		Written:         setToSlice(t.written),
		StartTime:       float64(start.UnixNano()) / 1e9,
		EndTime:         float64(end.UnixNano()) / 1e9,
		RootExitCode:    t.rootExitCode,
		Interrupted:     t.interrupted.Load(),
		InterruptSignal: int(t.interruptSignal.Load()),
	}

	for _, info := range t.processes {
		snap.Processes = append(snap.Processes, *info)
	}

	if root, ok := t.processes[t.rootPID]; ok {
		snap.EnvAccessed = root.Env
	} else {
		snap.EnvAccessed = map[string]string{}
	}

	return snap
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	return out
}

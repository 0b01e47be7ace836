// Package writer implements the single-threaded consumer that drains
// EventIngest's queue and renders each message into the jitdump file: the
// WriterTask of spec.md §4.5.
package writer

import (
	"time"

	"github.com/jitprobe/rvmti-agent/internal/demangle"
	"github.com/jitprobe/rvmti-agent/internal/jitdump"
	"github.com/jitprobe/rvmti-agent/internal/log"
	"github.com/jitprobe/rvmti-agent/internal/model"
	"github.com/jitprobe/rvmti-agent/internal/queue"
)

var logger = log.New("writer")

// nameCacheBytes bounds the memoized combined-display-name cache. Sized for
// a few hundred thousand distinct (class, method) descriptor pairs, well
// past what any single JVM process compiles.
const nameCacheBytes = 16 << 20

// Task owns the DumpFile and CodeIndex for the lifetime of one agent attach.
// It is not safe for concurrent use — exactly one goroutine, spawned by
// agent.Lifecycle.Attach, calls Run.
type Task struct {
	q        *queue.Queue
	file     *jitdump.DumpFile
	names    *demangle.Cache
	failures *demangleFailureLog
	pid      uint32
	index    uint64
	closed   chan struct{}
}

// New constructs a Task bound to an already-created DumpFile. Run has not
// been started yet.
func New(q *queue.Queue, file *jitdump.DumpFile, pid uint32) *Task {
	return &Task{
		q:        q,
		file:     file,
		names:    demangle.NewCache(nameCacheBytes),
		failures: newDemangleFailureLog(),
		pid:      pid,
		closed:   make(chan struct{}),
	}
}

// Run drains the queue until a Shutdown message arrives or the queue is
// closed and drained, then writes the trailing CODE_CLOSE record and closes
// the underlying DumpFile. Intended to run on its own goroutine; callers
// wait for completion by receiving from Done.
func (t *Task) Run() {
	defer close(t.closed)
	defer t.finish()

	for {
		v, ok := t.q.Recv()
		if !ok {
			return
		}
		msg := v.(model.EventMessage)
		if msg.Kind == model.EventShutdown {
			return
		}
		t.handle(msg)
	}
}

// Done is closed once Run has written CODE_CLOSE and released the DumpFile.
func (t *Task) Done() <-chan struct{} { return t.closed }

func (t *Task) finish() {
	now := uint64(time.Now().UnixNano())
	if err := t.file.Write(jitdump.CodeClose{}.Encode(now)); err != nil {
		logger.Error("failed writing trailing CODE_CLOSE", "err", err)
	}
	if err := t.file.Close(); err != nil {
		logger.Error("failed closing dump file", "err", err)
	}
}

func (t *Task) handle(msg model.EventMessage) {
	switch msg.Kind {
	case model.EventDynamicCode:
		t.handleDynamicCode(msg)
	case model.EventCompiledMethod:
		t.handleCompiledMethod(msg)
	}
}

func (t *Task) handleDynamicCode(msg model.EventMessage) {
	if msg.Name == "" || msg.Address == 0 || msg.Length == 0 {
		return
	}
	rec := jitdump.CodeLoad{
		Pid:       t.pid,
		Tid:       t.pid,
		VMA:       msg.Address,
		CodeAddr:  msg.Address,
		CodeSize:  msg.Length,
		CodeIndex: t.index,
		Name:      msg.Name,
		Code:      msg.Code,
	}
	if err := t.file.Write(rec.Encode(uint64(msg.Timestamp))); err != nil {
		logger.Error("failed writing dynamic code record", "name", msg.Name, "err", err)
		return
	}
	t.index++
}

func (t *Task) handleCompiledMethod(msg model.EventMessage) {
	if msg.Address == 0 || msg.Length == 0 {
		return
	}

	name, demangled := t.names.CombinedNameStatus(msg.Method.Class.Signature, msg.Method.Name, msg.Method.Signature)
	if !demangled {
		t.failures.warnOnce(msg.Method.Class.Signature, msg.Method.Name, msg.Method.Signature)
	}

	if debugInfo, ok := t.selectDebugInfo(msg); ok {
		if err := t.file.Write(debugInfo.Encode(uint64(msg.Timestamp))); err != nil {
			logger.Error("failed writing debug info record", "method", name, "err", err)
			return
		}
	}

	rec := jitdump.CodeLoad{
		Pid:       t.pid,
		Tid:       t.pid,
		VMA:       msg.Address,
		CodeAddr:  msg.Address,
		CodeSize:  msg.Length,
		CodeIndex: t.index,
		Name:      name,
		Code:      msg.Code,
	}
	if err := t.file.Write(rec.Encode(uint64(msg.Timestamp))); err != nil {
		logger.Error("failed writing compiled method record", "method", name, "err", err)
		return
	}
	t.index++
}

// selectDebugInfo implements spec.md §4.5's selection policy: prefer
// inlining-aware StackInfo entries; fall back to the flat address-location
// map; otherwise emit nothing.
func (t *Task) selectDebugInfo(msg model.EventMessage) (jitdump.DebugInfo, bool) {
	if msg.HasStacks && len(msg.Stacks) > 0 {
		return t.debugInfoFromStacks(msg.Address, msg.Stacks)
	}
	if msg.HasAddressLocs && len(msg.AddressLocations) > 0 {
		return t.debugInfoFromAddressLocations(msg.Address, msg.Method, msg.AddressLocations)
	}
	return jitdump.DebugInfo{}, false
}

func (t *Task) debugInfoFromStacks(codeAddr uint64, stacks []model.StackInfo) (jitdump.DebugInfo, bool) {
	var entries []jitdump.DebugEntry
	for _, stack := range stacks {
		frame, ok := selectFrame(stack)
		if !ok {
			continue
		}
		line, ok := frame.Method.LineTable.LookupLine(frame.BytecodeIndex)
		if !ok {
			continue
		}
		class, err := demangle.ParseClassType(frame.Method.Class.Signature)
		var path string
		if err == nil {
			path = class.Name.Path(frame.Method.Class.SourceFile)
		} else {
			path = frame.Method.Class.SourceFile
		}
		entries = append(entries, jitdump.DebugEntry{
			Addr:   stack.PCAddress,
			Lineno: line.LineNumber,
			Path:   path,
		})
	}
	if len(entries) == 0 {
		return jitdump.DebugInfo{}, false
	}
	return jitdump.DebugInfo{CodeAddr: codeAddr, Entries: entries}, true
}

// selectFrame returns the first frame in a StackInfo that is resolvable:
// non-native, has a line table, has a source file, and whose bytecode index
// resolves to a line.
func selectFrame(stack model.StackInfo) (model.StackFrame, bool) {
	for _, f := range stack.Frames {
		if f.Method.Native {
			continue
		}
		if len(f.Method.LineTable) == 0 {
			continue
		}
		if f.Method.Class.SourceFile == "" {
			continue
		}
		if _, ok := f.Method.LineTable.LookupLine(f.BytecodeIndex); !ok {
			continue
		}
		return f, true
	}
	return model.StackFrame{}, false
}

func (t *Task) debugInfoFromAddressLocations(codeAddr uint64, method model.MethodInfo, locs []model.AddressLocationEntry) (jitdump.DebugInfo, bool) {
	if len(method.LineTable) == 0 || method.Class.SourceFile == "" {
		return jitdump.DebugInfo{}, false
	}
	class, err := demangle.ParseClassType(method.Class.Signature)
	var path string
	if err == nil {
		path = class.Name.Path(method.Class.SourceFile)
	} else {
		path = method.Class.SourceFile
	}

	var entries []jitdump.DebugEntry
	for _, loc := range locs {
		line, ok := method.LineTable.LookupLine(loc.BytecodeLocation)
		if !ok {
			continue
		}
		entries = append(entries, jitdump.DebugEntry{
			Addr:   loc.StartAddress,
			Lineno: line.LineNumber,
			Path:   path,
		})
	}
	if len(entries) == 0 {
		return jitdump.DebugInfo{}, false
	}
	return jitdump.DebugInfo{CodeAddr: codeAddr, Entries: entries}, true
}

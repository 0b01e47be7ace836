// Package agent implements AgentLifecycle (spec.md §4.6): attach/detach of
// the single per-process agent state, wiring VmHandle, EventIngest, the
// queue, and WriterTask together.
package agent

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jitprobe/rvmti-agent/internal/ingest"
	"github.com/jitprobe/rvmti-agent/internal/jitdump"
	"github.com/jitprobe/rvmti-agent/internal/log"
	"github.com/jitprobe/rvmti-agent/internal/model"
	"github.com/jitprobe/rvmti-agent/internal/queue"
	"github.com/jitprobe/rvmti-agent/internal/writer"
	"github.com/jitprobe/rvmti-agent/jvmti"
)

var logger = log.New("agent")

// classCacheSize bounds CachingHandle's per-class-id LRU (spec.md §4.3
// AMBIENT ADDITION). Sized generously for a large application server's
// loaded-class count.
const classCacheSize = 65536

// state holds everything Attach installs and Detach tears down. It is the
// "single agent-state slot" spec.md §9 describes: written exactly twice
// (Attach, Detach) over the agent's lifetime.
type state struct {
	vm         jvmti.VmHandle
	q          *queue.Queue
	writerTask *writer.Task
}

// Lifecycle owns the single global agent-state slot. The VM's callback
// registration has no user-data pointer, so exactly one Lifecycle exists per
// process; Global returns it.
type Lifecycle struct {
	mu       sync.Mutex
	st       *state
	poisoned bool
}

var global = &Lifecycle{}

// Global returns the process-wide Lifecycle. The VM's tool interface gives
// callbacks no user-data slot, so a single shared instance is the only
// option (spec.md §9 "Global mutable state").
func Global() *Lifecycle { return global }

// Attach implements spec.md §4.6's on-load sequence. handle is assumed
// already opened at the tool-interface version the agent was built against.
func (l *Lifecycle) Attach(handle jvmti.VmHandle) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.recoverPanic(&err)

	if l.st != nil {
		logger.Warn("attach called while already attached, ignoring")
		return nil
	}

	caps := jvmti.RequiredCapabilities().ToSlice()
	capNames := make([]string, 0, len(caps))
	for _, c := range caps {
		capNames = append(capNames, c.(string))
	}
	if err := handle.AddCapabilities(capNames); err != nil {
		return fmt.Errorf("agent: requesting capabilities: %w", err)
	}

	cached, err := jvmti.NewCachingHandle(handle, classCacheSize)
	if err != nil {
		handle.DisposeEnvironment()
		return fmt.Errorf("%w: constructing class cache: %v", ErrResourceExhausted, err)
	}

	q := queue.New()
	ing := ingest.New(cached, q)
	if err := cached.SetEventCallbacks(ing.Callbacks()); err != nil {
		cached.DisposeEnvironment()
		return fmt.Errorf("agent: registering event callbacks: %w", err)
	}
	if err := cached.SetEventNotificationMode(jvmti.NotificationEnable, jvmti.EventCompiledMethodLoad); err != nil {
		cached.DisposeEnvironment()
		return fmt.Errorf("agent: enabling CompiledMethodLoad: %w", err)
	}
	if err := cached.SetEventNotificationMode(jvmti.NotificationEnable, jvmti.EventDynamicCodeGenerated); err != nil {
		cached.DisposeEnvironment()
		return fmt.Errorf("agent: enabling DynamicCodeGenerated: %w", err)
	}

	dir, err := createDumpDir(time.Now())
	if err != nil {
		cached.DisposeEnvironment()
		return err
	}

	pid := uint32(os.Getpid())
	dumpPath := fmt.Sprintf("%s/jit-%d.dump", dir, pid)
	file, err := jitdump.Create(dumpPath, pid)
	if err != nil {
		cached.DisposeEnvironment()
		return fmt.Errorf("agent: creating dump file: %w", err)
	}

	task := writer.New(q, file, pid)
	go task.Run()

	l.st = &state{vm: cached, q: q, writerTask: task}
	l.poisoned = false
	logger.Info("agent attached", "dump_file", dumpPath)
	return nil
}

// Detach implements spec.md §4.6's on-unload sequence: send Shutdown, join
// WriterTask, dispose the VmHandle. If a prior panic left the lock in a
// poisoned state, Detach logs and proceeds best-effort rather than hanging.
func (l *Lifecycle) Detach() (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.recoverPanic(&err)

	if l.poisoned {
		logger.Warn("detaching with poisoned agent state, proceeding best-effort")
	}

	if l.st == nil {
		return nil
	}
	st := l.st
	l.st = nil

	st.q.Send(model.EventMessage{Kind: model.EventShutdown})
	st.q.Close()
	<-st.writerTask.Done()

	if err := st.vm.DisposeEnvironment(); err != nil {
		logger.Warn("failed disposing VM environment during detach", "err", err)
	}
	logger.Info("agent detached")
	return nil
}

// recoverPanic converts a panic inside Attach/Detach into a returned error
// and marks the Lifecycle poisoned, per spec.md §5's panic/exception policy:
// unwinding into the VM is undefined behavior and must never occur.
func (l *Lifecycle) recoverPanic(errp *error) {
	if r := recover(); r != nil {
		l.poisoned = true
		logger.Error("recovered panic in agent lifecycle", "panic", r)
		*errp = fmt.Errorf("%w: %v", ErrPoisoned, r)
	}
}

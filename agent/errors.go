package agent

import "errors"

// ErrResourceExhausted covers allocation/mapping failures (spec.md §7): fatal
// at attach, a skip-record condition at steady state. Attach returns it
// directly; WriterTask logs it per-record rather than propagating it.
var ErrResourceExhausted = errors.New("agent: resource exhausted")

// ErrPoisoned marks the agent-state lock as held by a goroutine that panicked
// mid-update. Go's sync.Mutex has no built-in poisoning, so Lifecycle tracks
// this itself (see Lifecycle.poisoned) and Detach proceeds best-effort when
// it is set, matching spec.md §9's inherited design choice.
var ErrPoisoned = errors.New("agent: internal state lock poisoned by a prior panic")

// ErrNotInitialized means an event arrived before Attach completed or after
// Detach began; the event is dropped.
var ErrNotInitialized = errors.New("agent: not initialized")

package jvmti

import (
	"sync"

	"github.com/jitprobe/rvmti-agent/internal/model"
)

// FakeMethod and FakeClass describe a synthetic method/class known to a
// Fake VmHandle. They exist so EventIngest and WriterTask can be exercised
// end to end without a live JVM.
type FakeMethod struct {
	Name      string
	Signature string
	Generic   string
	Class     ClassID
	Native    bool
	Lines     model.LineTable
}

type FakeClass struct {
	Signature  string
	Generic    string
	SourceFile string
	HasSource  bool
}

// Fake is an in-memory VmHandle used by tests. It never touches cgo or a
// real VM.
type Fake struct {
	mu      sync.Mutex
	methods map[MethodID]FakeMethod
	classes map[ClassID]FakeClass
	cb      EventCallbacks
	caps    []string
	modes   map[EventKind]NotificationMode
}

// NewFake returns an empty Fake handle.
func NewFake() *Fake {
	return &Fake{
		methods: make(map[MethodID]FakeMethod),
		classes: make(map[ClassID]FakeClass),
		modes:   make(map[EventKind]NotificationMode),
	}
}

// AddMethod registers a synthetic method under id.
func (f *Fake) AddMethod(id MethodID, m FakeMethod) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods[id] = m
}

// AddClass registers a synthetic class under id.
func (f *Fake) AddClass(id ClassID, c FakeClass) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classes[id] = c
}

// Callbacks returns the callbacks most recently installed by
// SetEventCallbacks, letting a test drive the fake as if it were the VM.
func (f *Fake) Callbacks() EventCallbacks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

// FireCompiledMethodLoad drives the installed CompiledMethodLoad callback as
// if the VM had compiled id, synthesizing a code copy of the requested
// length so ingest sees the same shape a real cgo callback would produce.
func (f *Fake) FireCompiledMethodLoad(id MethodID, codeAddr uint64, codeLen int, locs []model.AddressLocationEntry, compileInfo []model.CompileRecord) {
	cb := f.Callbacks().CompiledMethodLoad
	if cb == nil {
		return
	}
	code := make([]byte, codeLen)
	for i := range code {
		code[i] = byte(i)
	}
	cb(id, codeAddr, code, locs, compileInfo)
}

// FireDynamicCodeGenerated drives the installed DynamicCodeGenerated
// callback as if the VM had generated a non-Java code stub.
func (f *Fake) FireDynamicCodeGenerated(name string, address uint64, codeLen int) {
	cb := f.Callbacks().DynamicCodeGenerated
	if cb == nil {
		return
	}
	code := make([]byte, codeLen)
	for i := range code {
		code[i] = byte(i)
	}
	cb(name, address, code)
}

func (f *Fake) GetMethodName(id MethodID) (string, string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.methods[id]
	if !ok {
		return "", "", "", &Error{Code: CodeInvalidMethodID, Call: "GetMethodName"}
	}
	return m.Name, m.Signature, m.Generic, nil
}

func (f *Fake) GetMethodDeclaringClass(id MethodID) (ClassID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.methods[id]
	if !ok {
		return 0, &Error{Code: CodeInvalidMethodID, Call: "GetMethodDeclaringClass"}
	}
	return m.Class, nil
}

func (f *Fake) GetClassSignature(id ClassID) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.classes[id]
	if !ok {
		return "", "", &Error{Code: CodeInvalidClass, Call: "GetClassSignature"}
	}
	return c.Signature, c.Generic, nil
}

func (f *Fake) GetSourceFileName(id ClassID) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.classes[id]
	if !ok {
		return "", false, &Error{Code: CodeInvalidClass, Call: "GetSourceFileName"}
	}
	if !c.HasSource {
		return "", false, nil
	}
	return c.SourceFile, true, nil
}

func (f *Fake) GetLineNumberTable(id MethodID) (model.LineTable, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.methods[id]
	if !ok {
		return nil, false, &Error{Code: CodeInvalidMethodID, Call: "GetLineNumberTable"}
	}
	if m.Native || len(m.Lines) == 0 {
		return nil, false, nil
	}
	return m.Lines, true, nil
}

func (f *Fake) IsNativeMethod(id MethodID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.methods[id]
	if !ok {
		return false, &Error{Code: CodeInvalidMethodID, Call: "IsNativeMethod"}
	}
	return m.Native, nil
}

func (f *Fake) AddCapabilities(capabilities []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.caps = append(f.caps, capabilities...)
	return nil
}

func (f *Fake) SetEventCallbacks(cb EventCallbacks) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = cb
	return nil
}

func (f *Fake) SetEventNotificationMode(mode NotificationMode, kind EventKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes[kind] = mode
	return nil
}

func (f *Fake) DisposeEnvironment() error { return nil }

var _ VmHandle = (*Fake)(nil)

package jvmti

import "github.com/jitprobe/rvmti-agent/internal/model"

// MethodID and ClassID are opaque VM-minted identifiers. Re-exported here so
// callers of VmHandle do not need to import internal/model directly.
type MethodID = model.MethodID
type ClassID = model.ClassID

// EventKind selects which VM event a notification-mode call applies to.
type EventKind int

const (
	EventCompiledMethodLoad EventKind = iota
	EventDynamicCodeGenerated
)

// NotificationMode enables or disables delivery of an EventKind.
type NotificationMode int

const (
	NotificationDisable NotificationMode = iota
	NotificationEnable
)

// EventCallbacks holds the function pointers the VM invokes on its own
// threads. code is always an owned copy taken while the VM still held the
// region alive (spec §4.4 "Rationale for copying bytes") — neither callback
// receives a pointer into VM memory.
type EventCallbacks struct {
	CompiledMethodLoad func(methodID MethodID, codeAddr uint64, code []byte,
		addressLocations []model.AddressLocationEntry, compileInfo []model.CompileRecord)
	DynamicCodeGenerated func(name string, address uint64, code []byte)
}

// VmHandle is the contract this agent requires of the host JVM's tool
// interface (§4.3). Every method is synchronous and blocking and may fail
// with an *Error. get_source_file_name and get_line_number_table distinguish
// "absent information" from other errors; callers receive that as a
// success-with-none (ok == false, err == nil), never as an error.
//
// VmHandle is shared across threads once attach completes — the VM
// guarantees tool-interface calls are safe from any event callback — and is
// never mutated except at attach/detach (§3 Ownership summary).
type VmHandle interface {
	GetMethodName(id MethodID) (name, signature, generic string, err error)
	GetMethodDeclaringClass(id MethodID) (ClassID, error)
	GetClassSignature(id ClassID) (signature, generic string, err error)
	GetSourceFileName(id ClassID) (sourceFile string, ok bool, err error)
	GetLineNumberTable(id MethodID) (table model.LineTable, ok bool, err error)
	IsNativeMethod(id MethodID) (bool, error)

	AddCapabilities(capabilities []string) error
	SetEventCallbacks(cb EventCallbacks) error
	SetEventNotificationMode(mode NotificationMode, kind EventKind) error

	DisposeEnvironment() error
}

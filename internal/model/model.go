// Package model holds the data shapes that flow from VM event callbacks,
// through EventIngest, across the queue, to WriterTask. These are the
// "Data Model" types of the agent: immutable snapshots taken at event time,
// never retaining VM-owned pointers beyond the callback that produced them.
package model

// MethodID and ClassID are opaque identifiers minted by the VM. They cross
// the FFI boundary unmodified and are only ever used as cache/lookup keys
// or as arguments back into the VM tool interface.
type MethodID uintptr
type ClassID uintptr

// LineNumberEntry maps a bytecode index to a source line. The table is
// sorted by StartLocation ascending; LookupLine depends on that order.
type LineNumberEntry struct {
	StartLocation int64
	LineNumber    int32
}

// LineTable is a LineNumberEntry slice sorted ascending by StartLocation.
type LineTable []LineNumberEntry

// LookupLine returns the last entry whose StartLocation <= bci (the line
// "currently in effect" at that bytecode index), or false if the table is
// empty or every entry starts after bci.
func (t LineTable) LookupLine(bci int64) (LineNumberEntry, bool) {
	var best LineNumberEntry
	found := false
	for _, e := range t {
		if e.StartLocation <= bci {
			best = e
			found = true
		} else {
			break
		}
	}
	return best, found
}

// AddressLocationEntry maps a machine address inside JIT-generated code to a
// bytecode index.
type AddressLocationEntry struct {
	StartAddress    uint64
	BytecodeLocation int64
}

// ClassInfo is an immutable snapshot of a class's identity as of the moment
// it was resolved.
type ClassInfo struct {
	Signature        string
	GenericSignature string // empty when absent
	SourceFile       string // empty when absent
}

// MethodInfo is an immutable snapshot captured at event time. Native is true
// iff the method has no bytecode; LineTable is always empty for native
// methods (native_method == true implies line_numbers absent).
type MethodInfo struct {
	Name             string
	Signature        string
	GenericSignature string
	Class            ClassInfo
	Native           bool
	LineTable        LineTable // empty/nil when absent or native
}

// StackFrame is one frame of an inlining-aware sample point. Frames are
// ordered innermost (index 0) outward.
type StackFrame struct {
	Method        MethodInfo
	BytecodeIndex int64
}

// StackInfo represents one inlining-aware sample point inside compiled code.
type StackInfo struct {
	PCAddress uint64
	Frames    []StackFrame
}

// CompileRecordKind tags the CompileRecord variant.
type CompileRecordKind int

const (
	CompileRecordDummy CompileRecordKind = iota
	CompileRecordInline
)

// CompileRecord is a tagged variant from the VM's compile-info linked list.
// Only Inline records carry observable information; Dummy records are
// stream delimiters and are ignored downstream.
type CompileRecord struct {
	Kind   CompileRecordKind
	Stacks []StackInfo // valid only when Kind == CompileRecordInline
}

// EventMessageKind tags the EventMessage variant carried across the queue.
type EventMessageKind int

const (
	EventDynamicCode EventMessageKind = iota
	EventCompiledMethod
	EventShutdown
)

// EventMessage is the single queue element type. Exactly one of the
// variant-specific field groups is populated, selected by Kind.
// code_bytes.length == length is an invariant for both code-bearing
// variants; code bytes are always a copy taken while the VM thread still
// held the code alive.
type EventMessage struct {
	Kind EventMessageKind

	// DynamicCode / CompiledMethod common fields.
	Name      string // DynamicCode only
	Address   uint64
	Length    uint64
	Timestamp int64
	Code      []byte

	// CompiledMethod-only fields.
	Method           MethodInfo
	ClassSourceFile  string
	AddressLocations []AddressLocationEntry
	Stacks           []StackInfo
	HasAddressLocs   bool
	HasStacks        bool
}

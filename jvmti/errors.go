// Package jvmti specifies the contract this agent requires of a host Java
// Virtual Machine's tool interface (§4.3, §6.1). VmHandle is a Go interface;
// this package does not itself implement the VM side of the boundary beyond
// a thin cgo binding (cgo_linux.go, build-tag gated) and a fake used by
// tests. Opaque pointers (method ids, class ids) cross the boundary
// unmodified, per §6.2.
package jvmti

import "fmt"

// Error is the tagged VM-call failure variant. A dedicated Code is assigned
// per documented JVMTI error; codes this package does not recognize become
// Unsupported.
type Error struct {
	Code Code
	Call string // the tool-interface function that failed, for logging
}

func (e *Error) Error() string {
	return fmt.Sprintf("jvmti: %s failed: %s", e.Call, e.Code)
}

// Code enumerates the JVMTI error codes this agent distinguishes. Values
// match the JVMTI specification's jvmtiError enum.
type Code int32

const (
	CodeNone                  Code = 0
	CodeInvalidThread         Code = 10
	CodeInvalidObject         Code = 20
	CodeInvalidClass          Code = 21
	CodeInvalidMethodID       Code = 23
	CodeInvalidFieldID        Code = 25
	CodeAbsentInformation     Code = 101
	CodeNativeMethod          Code = 104
	CodeOutOfMemory           Code = 110
	CodeAccessDenied          Code = 111
	CodeWrongPhase            Code = 112
	CodeVMDead                Code = 113
	CodeUnsupportedVersion    Code = 68
	CodeMustPossessCapability Code = 99
)

var codeNames = map[Code]string{
	CodeNone:                  "JVMTI_ERROR_NONE",
	CodeInvalidThread:         "JVMTI_ERROR_INVALID_THREAD",
	CodeInvalidFieldID:        "JVMTI_ERROR_INVALID_FIELDID",
	CodeInvalidMethodID:       "JVMTI_ERROR_INVALID_METHODID",
	CodeInvalidClass:          "JVMTI_ERROR_INVALID_CLASS",
	CodeInvalidObject:         "JVMTI_ERROR_INVALID_OBJECT",
	CodeWrongPhase:            "JVMTI_ERROR_WRONG_PHASE",
	CodeVMDead:                "JVMTI_ERROR_VM_DEAD",
	CodeOutOfMemory:           "JVMTI_ERROR_OUT_OF_MEMORY",
	CodeAccessDenied:          "JVMTI_ERROR_ACCESS_DENIED",
	CodeAbsentInformation:     "JVMTI_ERROR_ABSENT_INFORMATION",
	CodeNativeMethod:          "JVMTI_ERROR_NATIVE_METHOD",
	CodeUnsupportedVersion:    "JVMTI_ERROR_UNSUPPORTED_VERSION",
	CodeMustPossessCapability: "JVMTI_ERROR_MUST_POSSESS_CAPABILITY",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("JVMTI_ERROR_UNKNOWN(%d)", int32(c))
}

// FromRaw converts a raw JVMTI error code returned across the FFI boundary
// into an *Error. A code this agent was not built against is kept verbatim
// in Code, and Code.String renders it as JVMTI_ERROR_UNKNOWN(<code>).
func FromRaw(call string, raw int32) error {
	if raw == int32(CodeNone) {
		return nil
	}
	code := Code(raw)
	if _, ok := codeNames[code]; !ok {
		code = Code(raw) // retained verbatim; String() renders it as JVMTI_ERROR_UNKNOWN(n)
	}
	return &Error{Code: code, Call: call}
}

//go:build cgo && linux

package jvmti

/*
#cgo CFLAGS: -I${SRCDIR}/include
#include <stdlib.h>
#include <string.h>
#include "jvmti_shim.h"

extern void goCompiledMethodLoad(jmethodID method, jint code_size, const void *code_addr,
                                  jint map_length, const jvmtiAddrLocationMap *map,
                                  const void *compile_info);
extern void goDynamicCodeGenerated(const char *name, const void *address, jint length);
*/
import "C"

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/jitprobe/rvmti-agent/internal/log"
	"github.com/jitprobe/rvmti-agent/internal/model"
	"github.com/jitprobe/rvmti-agent/internal/mutf8"
)

var cgoLogger = log.New("jvmti.cgo")

// logHostArch logs the kernel-reported machine type once at attach. Compare
// against internal/jitdump's e_machine value (read from /proc/self/exe's ELF
// header) when diagnosing a jitdump file perf refuses to load.
func logHostArch() {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		cgoLogger.Warn("uname failed, skipping host arch sanity check", "err", err)
		return
	}
	cgoLogger.Debug("host machine", "uname_machine", unix.ByteSliceToString(uts.Machine[:]))
}

// CgoHandle is the real binding to a live JVM's tool interface, built only
// when cgo is enabled on Linux and linked against a JDK's jvmti.h. Every
// method here is the one authorized place VM-owned memory is deallocated;
// deallocString below and the deferred Deallocate in GetLineNumberTable are
// the scoped-handle pattern §4.3 and §9 require — they run on every exit
// path, including the error path, via defer.
type CgoHandle struct {
	env *C.jvmtiEnv
}

// NewCgoHandle wraps a jvmtiEnv* obtained by the cmd/jitprobeagent entry
// point's own Agent_OnLoad (via JavaVM.GetEnv). The pointer crosses the
// package boundary as unsafe.Pointer because cgo's generated C.jvmtiEnv type
// is scoped per importing package — jitprobeagent's own cgo preamble cannot
// produce this package's C.jvmtiEnv directly.
func NewCgoHandle(env unsafe.Pointer) *CgoHandle {
	logHostArch()
	return &CgoHandle{env: (*C.jvmtiEnv)(env)}
}

// deallocString wraps a VM-owned C string: it is read into a Go string
// immediately and the VM's Deallocate is invoked before returning, on every
// path, via a defer inside this function. It never retains the C pointer past
// this call.
func (h *CgoHandle) deallocString(p *C.char) string {
	if p == nil {
		return ""
	}
	defer C.jvmtiDeallocate(h.env, unsafe.Pointer(p))
	return decodeMUTF8(C.GoString(p))
}

func decodeMUTF8(s string) string {
	out, err := mutf8.DecodeString([]byte(s))
	if err != nil {
		// The VM is contractually obligated to hand back well-formed
		// modified UTF-8; a decode failure here means a JVMTI/agent
		// version mismatch. Surface the raw bytes rather than losing
		// the record entirely.
		cgoLogger.Warn("modified-UTF-8 decode failed, using raw bytes", "err", err)
		return s
	}
	return out
}

func (h *CgoHandle) GetMethodName(id MethodID) (name, signature, generic string, err error) {
	var cName, cSig, cGeneric *C.char
	rc := C.jvmtiGetMethodName(h.env, C.jmethodID(unsafe.Pointer(uintptr(id))), &cName, &cSig, &cGeneric)
	if e := FromRaw("GetMethodName", int32(rc)); e != nil {
		return "", "", "", e
	}
	return h.deallocString(cName), h.deallocString(cSig), h.deallocString(cGeneric), nil
}

func (h *CgoHandle) GetMethodDeclaringClass(id MethodID) (ClassID, error) {
	var cls C.jclass
	rc := C.jvmtiGetMethodDeclaringClass(h.env, C.jmethodID(unsafe.Pointer(uintptr(id))), &cls)
	if e := FromRaw("GetMethodDeclaringClass", int32(rc)); e != nil {
		return 0, e
	}
	return ClassID(uintptr(unsafe.Pointer(cls))), nil
}

func (h *CgoHandle) GetClassSignature(id ClassID) (signature, generic string, err error) {
	var cSig, cGeneric *C.char
	rc := C.jvmtiGetClassSignature(h.env, C.jclass(unsafe.Pointer(uintptr(id))), &cSig, &cGeneric)
	if e := FromRaw("GetClassSignature", int32(rc)); e != nil {
		return "", "", e
	}
	return h.deallocString(cSig), h.deallocString(cGeneric), nil
}

func (h *CgoHandle) GetSourceFileName(id ClassID) (sourceFile string, ok bool, err error) {
	var cName *C.char
	rc := C.jvmtiGetSourceFileName(h.env, C.jclass(unsafe.Pointer(uintptr(id))), &cName)
	if rc == C.JVMTI_ERROR_ABSENT_INFORMATION {
		return "", false, nil
	}
	if e := FromRaw("GetSourceFileName", int32(rc)); e != nil {
		return "", false, e
	}
	return h.deallocString(cName), true, nil
}

func (h *CgoHandle) GetLineNumberTable(id MethodID) (model.LineTable, bool, error) {
	var count C.jint
	var entries *C.jvmtiLineNumberEntry
	rc := C.jvmtiGetLineNumberTable(h.env, C.jmethodID(unsafe.Pointer(uintptr(id))), &count, &entries)
	if rc == C.JVMTI_ERROR_ABSENT_INFORMATION || rc == C.JVMTI_ERROR_NATIVE_METHOD {
		return nil, false, nil
	}
	if e := FromRaw("GetLineNumberTable", int32(rc)); e != nil {
		return nil, false, e
	}
	defer C.jvmtiDeallocate(h.env, unsafe.Pointer(entries))

	n := int(count)
	table := make(model.LineTable, n)
	raw := unsafe.Slice(entries, n)
	for i := 0; i < n; i++ {
		table[i] = model.LineNumberEntry{
			StartLocation: int64(raw[i].start_location),
			LineNumber:    int32(raw[i].line_number),
		}
	}
	return table, true, nil
}

func (h *CgoHandle) IsNativeMethod(id MethodID) (bool, error) {
	var isNative C.jboolean
	rc := C.jvmtiIsMethodNative(h.env, C.jmethodID(unsafe.Pointer(uintptr(id))), &isNative)
	if e := FromRaw("IsMethodNative", int32(rc)); e != nil {
		return false, e
	}
	return isNative != 0, nil
}

func (h *CgoHandle) AddCapabilities(capabilities []string) error {
	var caps C.jvmtiCapabilities
	for _, c := range capabilities {
		setCapabilityBit(&caps, c)
	}
	rc := C.jvmtiAddCapabilities(h.env, &caps)
	return FromRaw("AddCapabilities", int32(rc))
}

// registeredCallbacks holds the most recently installed Go callbacks; JVMTI
// invokes a single C trampoline per event kind (goCompiledMethodLoad,
// goDynamicCodeGenerated, exported via cgo above) which looks here to find
// the Go function to run. There is exactly one live agent per process, so a
// package-level slot (guarded by a mutex, mirroring the agent-state slot in
// agent.Lifecycle) is sufficient.
var (
	callbacksMu sync.Mutex
	callbacks   EventCallbacks
)

func (h *CgoHandle) SetEventCallbacks(cb EventCallbacks) error {
	callbacksMu.Lock()
	callbacks = cb
	liveHandle = h
	callbacksMu.Unlock()

	rc := C.jvmtiSetEventCallbacks(h.env)
	return FromRaw("SetEventCallbacks", int32(rc))
}

func (h *CgoHandle) SetEventNotificationMode(mode NotificationMode, kind EventKind) error {
	var cMode C.jvmtiEventMode
	if mode == NotificationEnable {
		cMode = C.JVMTI_ENABLE
	} else {
		cMode = C.JVMTI_DISABLE
	}
	var event C.jvmtiEvent
	switch kind {
	case EventCompiledMethodLoad:
		event = C.JVMTI_EVENT_COMPILED_METHOD_LOAD
	case EventDynamicCodeGenerated:
		event = C.JVMTI_EVENT_DYNAMIC_CODE_GENERATED
	}
	rc := C.jvmtiSetEventNotificationMode(h.env, cMode, event)
	return FromRaw("SetEventNotificationMode", int32(rc))
}

func (h *CgoHandle) DisposeEnvironment() error {
	rc := C.jvmtiDisposeEnvironment(h.env)
	return FromRaw("DisposeEnvironment", int32(rc))
}

var _ VmHandle = (*CgoHandle)(nil)

// liveHandle is the CgoHandle backing the single C trampoline registered by
// SetEventCallbacks. JVMTI gives us no user-data pointer on these two
// callbacks, so the handle needed to resolve inline-frame method ids has to
// live in a package-level slot rather than a closure, same as callbacks
// above.
var liveHandle *CgoHandle

func currentHandle() *CgoHandle {
	callbacksMu.Lock()
	defer callbacksMu.Unlock()
	return liveHandle
}

//export goCompiledMethodLoad
func goCompiledMethodLoad(method C.jmethodID, codeSize C.jint, codeAddr unsafe.Pointer, mapLength C.jint, addrMap *C.jvmtiAddrLocationMap, compileInfo unsafe.Pointer) {
	callbacksMu.Lock()
	cb := callbacks.CompiledMethodLoad
	callbacksMu.Unlock()
	if cb == nil {
		return
	}
	id := MethodID(uintptr(unsafe.Pointer(method)))
	records := currentHandle().decodeCompileInfo(compileInfo)
	locs := decodeAddrLocationMap(addrMap, int(mapLength))
	cb(id, uint64(uintptr(codeAddr)), copyCodeBytes(codeAddr, int(codeSize)), locs, records)
}

// decodeAddrLocationMap clones the VM's address-to-bytecode-index map into
// owned entries, per spec §4.4 step 6.
func decodeAddrLocationMap(addrMap *C.jvmtiAddrLocationMap, n int) []model.AddressLocationEntry {
	if addrMap == nil || n == 0 {
		return nil
	}
	raw := unsafe.Slice(addrMap, n)
	out := make([]model.AddressLocationEntry, n)
	for i := 0; i < n; i++ {
		out[i] = model.AddressLocationEntry{
			StartAddress:     uint64(uintptr(raw[i].start_address)),
			BytecodeLocation: int64(raw[i].location),
		}
	}
	return out
}

//export goDynamicCodeGenerated
func goDynamicCodeGenerated(name *C.char, address unsafe.Pointer, length C.jint) {
	callbacksMu.Lock()
	cb := callbacks.DynamicCodeGenerated
	callbacksMu.Unlock()
	if cb == nil {
		return
	}
	cb(decodeMUTF8(C.GoString(name)), uint64(uintptr(address)), copyCodeBytes(address, int(length)))
}

// copyCodeBytes takes an owned copy of a VM-held code region. The VM may
// reclaim the region the instant the callback returns (spec §4.4), so the
// copy must happen before any further processing, and the returned slice
// must never alias addr.
func copyCodeBytes(addr unsafe.Pointer, length int) []byte {
	if addr == nil || length <= 0 {
		return nil
	}
	view := unsafe.Slice((*byte)(addr), length)
	out := make([]byte, length)
	copy(out, view)
	return out
}

// decodeCompileInfo walks the VM's jvmtiCompiledMethodLoadRecordHeader
// linked list exactly once, copying everything into owned Go structures and
// never retaining a VM pointer past this call (§9 "Linked list of VM
// compile records"). h may be nil if no CgoHandle has registered callbacks
// yet; in that case inline frames are decoded with zero-value MethodInfo
// rather than entering the VM.
func (h *CgoHandle) decodeCompileInfo(head unsafe.Pointer) []model.CompileRecord {
	var records []model.CompileRecord
	cur := (*C.jvmtiCompiledMethodLoadRecordHeader)(head)
	for cur != nil {
		switch cur.kind {
		case C.JVMTI_CMLR_INLINE_INFO:
			inlineHdr := (*C.jvmtiCompiledMethodLoadInlineRecord)(unsafe.Pointer(cur))
			records = append(records, h.decodeInlineRecord(inlineHdr))
		default:
			records = append(records, model.CompileRecord{Kind: model.CompileRecordDummy})
		}
		cur = (*C.jvmtiCompiledMethodLoadRecordHeader)(unsafe.Pointer(cur.next))
	}
	return records
}

func (h *CgoHandle) decodeInlineRecord(rec *C.jvmtiCompiledMethodLoadInlineRecord) model.CompileRecord {
	n := int(rec.numpcs)
	pcInfos := unsafe.Slice(rec.pcinfo, n)
	stacks := make([]model.StackInfo, 0, n)
	for i := 0; i < n; i++ {
		pc := pcInfos[i]
		numStack := int(pc.numstackframes)
		frames := unsafe.Slice(pc.methods, numStack)
		bcis := unsafe.Slice(pc.bcis, numStack)
		stackFrames := make([]model.StackFrame, numStack)
		for j := 0; j < numStack; j++ {
			methodID := MethodID(uintptr(unsafe.Pointer(frames[j])))
			stackFrames[j] = model.StackFrame{
				Method:        h.resolveMethodInfo(methodID),
				BytecodeIndex: int64(bcis[j]),
			}
		}
		stacks = append(stacks, model.StackInfo{
			PCAddress: uint64(uintptr(pc.pc)),
			Frames:    stackFrames,
		})
	}
	return model.CompileRecord{Kind: model.CompileRecordInline, Stacks: stacks}
}

// resolveMethodInfo looks up everything EventIngest would need to render an
// inlined frame. h is nil-safe so a record delivered before any handle has
// registered still decodes, just without names. Errors are swallowed to a
// zero-value MethodInfo: a single unresolved inline frame must not drop the
// whole CompiledMethodLoad event.
func (h *CgoHandle) resolveMethodInfo(id MethodID) model.MethodInfo {
	if h == nil {
		return model.MethodInfo{}
	}
	name, sig, generic, err := h.GetMethodName(id)
	if err != nil {
		return model.MethodInfo{}
	}
	native, err := h.IsNativeMethod(id)
	if err != nil {
		return model.MethodInfo{}
	}
	info := model.MethodInfo{Name: name, Signature: sig, GenericSignature: generic, Native: native}
	classID, err := h.GetMethodDeclaringClass(id)
	if err == nil {
		classSig, classGeneric, err := h.GetClassSignature(classID)
		if err == nil {
			info.Class.Signature = classSig
			info.Class.GenericSignature = classGeneric
		}
		if sourceFile, ok, err := h.GetSourceFileName(classID); err == nil && ok {
			info.Class.SourceFile = sourceFile
		}
	}
	if !native {
		if table, ok, err := h.GetLineNumberTable(id); err == nil && ok {
			info.LineTable = table
		}
	}
	return info
}

func setCapabilityBit(caps *C.jvmtiCapabilities, name string) {
	switch name {
	case CapTagObjects:
		caps.can_tag_objects = 1
	case CapGenerateAllClassHookEvents:
		caps.can_generate_all_class_hook_events = 1
	case CapGenerateObjectFreeEvents:
		caps.can_generate_object_free_events = 1
	case CapGetSourceFileName:
		caps.can_get_source_file_name = 1
	case CapGetLineNumbers:
		caps.can_get_line_numbers = 1
	case CapGenerateVMObjectAllocEvents:
		caps.can_generate_vm_object_alloc_events = 1
	case CapGenerateCompiledMethodLoadEvents:
		caps.can_generate_compiled_method_load_events = 1
	}
}

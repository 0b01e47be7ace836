// Package ingest implements EventIngest (spec.md §4.4): the VM-thread side
// of the pipeline that turns CompiledMethodLoad/DynamicCodeGenerated
// callbacks into owned EventMessage values and hands them to the queue.
package ingest

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/jitprobe/rvmti-agent/internal/log"
	"github.com/jitprobe/rvmti-agent/internal/model"
	"github.com/jitprobe/rvmti-agent/internal/queue"
	"github.com/jitprobe/rvmti-agent/jvmti"
)

var logger = log.New("ingest")

// dropWarnLimit bounds how often a malformed-event or resolution-failure
// warning is logged; the underlying event is always dropped regardless of
// whether the warning fires (spec §4.4 AMBIENT ADDITION).
const dropWarnLimit = rate.Limit(5) // per second
const dropWarnBurst = 10

// Ingest is EventIngest: it runs on arbitrary VM event threads (every method
// is safe for concurrent invocation from multiple threads at once) and
// enqueues EventMessage values for WriterTask.
type Ingest struct {
	vm          jvmti.VmHandle
	q           *queue.Queue
	dropLimiter *rate.Limiter
}

// New binds an Ingest to the VmHandle used to resolve method/class/line
// information and the queue messages are sent to.
func New(vm jvmti.VmHandle, q *queue.Queue) *Ingest {
	return &Ingest{
		vm:          vm,
		q:           q,
		dropLimiter: rate.NewLimiter(dropWarnLimit, dropWarnBurst),
	}
}

// Callbacks returns the VmHandle event callbacks backed by this Ingest,
// ready to pass to VmHandle.SetEventCallbacks.
func (ig *Ingest) Callbacks() jvmti.EventCallbacks {
	return jvmti.EventCallbacks{
		CompiledMethodLoad:   ig.handleCompiledMethodLoad,
		DynamicCodeGenerated: ig.handleDynamicCodeGenerated,
	}
}

func (ig *Ingest) dropf(reason string, args ...interface{}) {
	if ig.dropLimiter.Allow() {
		logger.Warn(reason, args...)
	}
}

// handleCompiledMethodLoad implements spec.md §4.4's CompiledMethodLoad
// steps 2-7. Any resolution failure drops the event with a (rate-limited)
// warning; it never panics or blocks indefinitely.
func (ig *Ingest) handleCompiledMethodLoad(methodID jvmti.MethodID, codeAddr uint64, code []byte,
	addressLocations []model.AddressLocationEntry, compileInfo []model.CompileRecord) {

	method, err := ig.resolveMethodInfo(methodID)
	if err != nil {
		ig.dropf("dropping CompiledMethodLoad: failed resolving top-level method", "method_id", methodID, "err", err)
		return
	}

	stacks := stacksFromCompileInfo(compileInfo)

	msg := model.EventMessage{
		Kind:             model.EventCompiledMethod,
		Address:          codeAddr,
		Length:           uint64(len(code)),
		Timestamp:        time.Now().UnixNano(),
		Code:             code,
		Method:           method,
		ClassSourceFile:  method.Class.SourceFile,
		AddressLocations: addressLocations,
		Stacks:           stacks,
		HasAddressLocs:   len(addressLocations) > 0,
		HasStacks:        len(stacks) > 0,
	}
	ig.q.Send(msg)
}

// handleDynamicCodeGenerated implements spec.md §4.4's DynamicCodeGenerated
// handling. The name arrives already decoded from modified UTF-8 by the
// binding layer (jvmti.CgoHandle / jvmti.Fake); events with an empty name,
// zero address, or zero length are dropped by WriterTask, not here, per
// spec.md §4.5.
func (ig *Ingest) handleDynamicCodeGenerated(name string, address uint64, code []byte) {
	msg := model.EventMessage{
		Kind:      model.EventDynamicCode,
		Name:      name,
		Address:   address,
		Length:    uint64(len(code)),
		Timestamp: time.Now().UnixNano(),
		Code:      code,
	}
	ig.q.Send(msg)
}

// stacksFromCompileInfo keeps only Inline records, matching spec.md §4.4
// step 3 ("keeping only Inline records").
func stacksFromCompileInfo(records []model.CompileRecord) []model.StackInfo {
	var stacks []model.StackInfo
	for _, r := range records {
		if r.Kind != model.CompileRecordInline {
			continue
		}
		stacks = append(stacks, r.Stacks...)
	}
	return stacks
}

// resolveMethodInfo resolves a MethodInfo snapshot for id: name, declaring
// class, class signature/generic/source file, native flag, and (for
// non-native methods) line-number table, for the top-level compiled method
// (spec.md §4.4 step 2). Each inlined StackFrame's method is resolved
// separately, by the cgo binding layer's own CgoHandle.resolveMethodInfo.
func (ig *Ingest) resolveMethodInfo(id jvmti.MethodID) (model.MethodInfo, error) {
	name, sig, generic, err := ig.vm.GetMethodName(id)
	if err != nil {
		return model.MethodInfo{}, err
	}
	native, err := ig.vm.IsNativeMethod(id)
	if err != nil {
		return model.MethodInfo{}, err
	}

	info := model.MethodInfo{Name: name, Signature: sig, GenericSignature: generic, Native: native}

	classID, err := ig.vm.GetMethodDeclaringClass(id)
	if err != nil {
		return model.MethodInfo{}, err
	}
	classSig, classGeneric, err := ig.vm.GetClassSignature(classID)
	if err != nil {
		return model.MethodInfo{}, err
	}
	info.Class.Signature = classSig
	info.Class.GenericSignature = classGeneric

	if sourceFile, ok, err := ig.vm.GetSourceFileName(classID); err != nil {
		return model.MethodInfo{}, err
	} else if ok {
		info.Class.SourceFile = sourceFile
	}

	if !native {
		if table, ok, err := ig.vm.GetLineNumberTable(id); err != nil {
			return model.MethodInfo{}, err
		} else if ok {
			info.LineTable = table
		}
	}
	return info, nil
}

//go:build cgo && linux

// Command jitprobeagent is the JVM-loaded shared library: it exports
// Agent_OnLoad/Agent_OnUnload, the two C entry points every JVMTI agent must
// provide, and wires them to agent.Lifecycle. Built with
// `go build -buildmode=c-shared`.
package main

/*
#cgo CFLAGS: -I${SRCDIR}/../../jvmti/include
#include <jvmti.h>
#include <stdlib.h>

static jvmtiEnv *get_jvmti_env(JavaVM *vm) {
    jvmtiEnv *env = NULL;
    if ((*vm)->GetEnv(vm, (void **) &env, JVMTI_VERSION_1_2) != JNI_OK) {
        return NULL;
    }
    return env;
}
*/
import "C"

import (
	"os"
	"unsafe"

	"github.com/jitprobe/rvmti-agent/agent"
	"github.com/jitprobe/rvmti-agent/internal/log"
	"github.com/jitprobe/rvmti-agent/jvmti"
)

var logger = log.New("jitprobeagent")

//export Agent_OnLoad
func Agent_OnLoad(vm *C.JavaVM, options *C.char, reserved unsafe.Pointer) C.jint {
	env := C.get_jvmti_env(vm)
	if env == nil {
		logger.Error("failed obtaining a jvmtiEnv at the required version")
		return -1
	}

	handle := jvmti.NewCgoHandle(unsafe.Pointer(env))
	if err := agent.Global().Attach(handle); err != nil {
		logger.Error("attach failed", "err", err)
		return -1
	}
	return 0
}

//export Agent_OnUnload
func Agent_OnUnload(vm *C.JavaVM) {
	if err := agent.Global().Detach(); err != nil {
		logger.Error("detach failed", "err", err)
	}
}

// main is required by `go build -buildmode=c-shared` but is never entered;
// the JVM calls Agent_OnLoad/Agent_OnUnload directly.
func main() {
	os.Exit(0)
}

package writer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jitprobe/rvmti-agent/internal/jitdump"
	"github.com/jitprobe/rvmti-agent/internal/model"
	"github.com/jitprobe/rvmti-agent/internal/queue"
)

func newTestTask(t *testing.T) (*Task, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "jit-1.dump")
	df, err := jitdump.Create(path, 1)
	require.NoError(t, err)

	q := queue.New()
	task := New(q, df, 1)
	return task, path
}

func TestWriterDropsDynamicCodeWithZeroLength(t *testing.T) {
	task, path := newTestTask(t)
	q := task.q

	q.Send(model.EventMessage{Kind: model.EventDynamicCode, Name: "stub", Address: 0x1000, Length: 0})
	q.Send(model.EventMessage{Kind: model.EventShutdown})
	task.Run()
	<-task.Done()

	info, err := os.Stat(path)
	require.NoError(t, err)
	// Only the header and trailing CODE_CLOSE were written: the dynamic-code
	// message was dropped for having zero length (spec §4.5).
	require.EqualValues(t, 40+16, info.Size())
}

func TestWriterWritesDynamicCodeLoad(t *testing.T) {
	task, path := newTestTask(t)
	q := task.q

	q.Send(model.EventMessage{
		Kind: model.EventDynamicCode, Name: "Interpreter",
		Address: 0x2000, Length: 4, Code: make([]byte, 4),
	})
	q.Send(model.EventMessage{Kind: model.EventShutdown})
	task.Run()
	<-task.Done()

	info, err := os.Stat(path)
	require.NoError(t, err)
	// header(40) + record prefix(16) + fixed body(40) + name "Interpreter\0"(12) + code(4) + close(16).
	require.EqualValues(t, 40+16+40+12+4+16, info.Size())
}

func TestWriterSelectsDebugInfoFromStacksOverAddressLocations(t *testing.T) {
	task, _ := newTestTask(t)
	defer task.file.Close()

	method := model.MethodInfo{
		Name:      "run",
		Signature: "()V",
		Class: model.ClassInfo{
			Signature:  "Ljava/lang/Thread;",
			SourceFile: "Thread.java",
		},
		LineTable: model.LineTable{{StartLocation: 0, LineNumber: 42}},
	}
	msg := model.EventMessage{
		Kind:      model.EventCompiledMethod,
		Address:   0x3000,
		Length:    4,
		Code:      make([]byte, 4),
		Method:    method,
		HasStacks: true,
		Stacks: []model.StackInfo{
			{PCAddress: 0x3000, Frames: []model.StackFrame{{Method: method, BytecodeIndex: 0}}},
		},
		HasAddressLocs: true,
		AddressLocations: []model.AddressLocationEntry{
			{StartAddress: 0x3004, BytecodeLocation: 0},
		},
	}

	debugInfo, ok := task.selectDebugInfo(msg)
	require.True(t, ok)
	require.Len(t, debugInfo.Entries, 1)
	// 0x3000 is the StackInfo pc; the address-location entry is at 0x3004.
	require.Equal(t, uint64(0x3000), debugInfo.Entries[0].Addr)
	require.EqualValues(t, 42, debugInfo.Entries[0].Lineno)
	require.Equal(t, "java/lang/Thread.java", debugInfo.Entries[0].Path)
}

func TestWriterCombinedNameFallsBackOnBadDescriptor(t *testing.T) {
	task, path := newTestTask(t)
	q := task.q

	q.Send(model.EventMessage{
		Kind:    model.EventCompiledMethod,
		Address: 0x4000,
		Length:  2,
		Code:    make([]byte, 2),
		Method: model.MethodInfo{
			Name:      "weird",
			Signature: "not-a-descriptor",
			Class:     model.ClassInfo{Signature: "not-a-class"},
		},
	})
	q.Send(model.EventMessage{Kind: model.EventShutdown})
	task.Run()
	<-task.Done()

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(40+16))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	r := bytes.NewReader(data)
	_, err = jitdump.DecodeHeader(r)
	require.NoError(t, err)
	rec, err := jitdump.DecodeRecord(r)
	require.NoError(t, err)
	require.Equal(t, jitdump.RecordCodeLoad, rec.ID)
	cl, err := jitdump.DecodeCodeLoad(rec.Body)
	require.NoError(t, err)
	require.Equal(t, "not-a-class.weirdnot-a-descriptor", cl.Name)
}

package ingest

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/jitprobe/rvmti-agent/internal/model"
	"github.com/jitprobe/rvmti-agent/internal/queue"
	"github.com/jitprobe/rvmti-agent/jvmti"
)

func newFakeWithMethod(t *testing.T) (*jvmti.Fake, jvmti.MethodID, jvmti.ClassID) {
	t.Helper()
	fake := jvmti.NewFake()
	const classID jvmti.ClassID = 100
	const methodID jvmti.MethodID = 7

	fake.AddClass(classID, jvmti.FakeClass{
		Signature:  "Ljava/lang/Thread;",
		SourceFile: "Thread.java",
		HasSource:  true,
	})
	fake.AddMethod(methodID, jvmti.FakeMethod{
		Name:      "run",
		Signature: "()V",
		Class:     classID,
		Lines: model.LineTable{
			{StartLocation: 0, LineNumber: 10},
			{StartLocation: 5, LineNumber: 12},
		},
	})
	return fake, methodID, classID
}

func TestCompiledMethodLoadEnqueuesResolvedMessage(t *testing.T) {
	fake, methodID, _ := newFakeWithMethod(t)
	q := queue.New()
	ig := New(fake, q)
	require.NoError(t, fake.SetEventCallbacks(ig.Callbacks()))

	fake.FireCompiledMethodLoad(methodID, 0x1000, 64, nil, nil)

	v, ok := q.Recv()
	require.True(t, ok)
	msg := v.(model.EventMessage)
	require.Equal(t, model.EventCompiledMethod, msg.Kind)
	require.Equal(t, uint64(0x1000), msg.Address)
	require.Equal(t, uint64(64), msg.Length)
	require.Equal(t, "run", msg.Method.Name)
	require.Equal(t, "Ljava/lang/Thread;", msg.Method.Class.Signature)
	require.Equal(t, "Thread.java", msg.Method.Class.SourceFile)
	require.Len(t, msg.Code, 64)
}

func TestCompiledMethodLoadDropsOnUnknownMethod(t *testing.T) {
	fake := jvmti.NewFake()
	q := queue.New()
	ig := New(fake, q)
	require.NoError(t, fake.SetEventCallbacks(ig.Callbacks()))

	fake.FireCompiledMethodLoad(999, 0x2000, 32, nil, nil)

	require.Equal(t, 0, q.Len())
}

func TestDynamicCodeGeneratedEnqueuesMessage(t *testing.T) {
	fake := jvmti.NewFake()
	q := queue.New()
	ig := New(fake, q)
	require.NoError(t, fake.SetEventCallbacks(ig.Callbacks()))

	fake.FireDynamicCodeGenerated("Interpreter", 0x3000, 128)

	v, ok := q.Recv()
	require.True(t, ok)
	msg := v.(model.EventMessage)
	require.Equal(t, model.EventDynamicCode, msg.Kind)
	require.Equal(t, "Interpreter", msg.Name)
	require.Equal(t, uint64(0x3000), msg.Address)
	require.Len(t, msg.Code, 128)
}

func TestCompiledMethodLoadKeepsOnlyInlineStacks(t *testing.T) {
	fake, methodID, _ := newFakeWithMethod(t)
	q := queue.New()
	ig := New(fake, q)
	require.NoError(t, fake.SetEventCallbacks(ig.Callbacks()))

	records := []model.CompileRecord{
		{Kind: model.CompileRecordDummy},
		{Kind: model.CompileRecordInline, Stacks: []model.StackInfo{
			{PCAddress: 0x10, Frames: []model.StackFrame{
				{Method: model.MethodInfo{Name: "run", Class: model.ClassInfo{Signature: "Ljava/lang/Thread;"}}, BytecodeIndex: 0},
			}},
		}},
	}
	fake.FireCompiledMethodLoad(methodID, 0x1000, 16, nil, records)

	v, ok := q.Recv()
	require.True(t, ok)
	msg := v.(model.EventMessage)
	require.True(t, msg.HasStacks)

	want := []model.StackInfo{
		{PCAddress: 0x10, Frames: []model.StackFrame{
			{Method: model.MethodInfo{Name: "run", Class: model.ClassInfo{Signature: "Ljava/lang/Thread;"}}, BytecodeIndex: 0},
		}},
	}
	if diff := cmp.Diff(want, msg.Stacks); diff != "" {
		t.Fatalf("resolved stacks mismatch (-want +got):\n%s", diff)
	}
}

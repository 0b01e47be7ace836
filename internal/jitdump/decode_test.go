package jitdump

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(Header{ElfMach: 0x3e, Pid: 42, Timestamp: 1000}.Encode())

	cl := CodeLoad{
		Pid: 42, Tid: 43, VMA: 0x1000, CodeAddr: 0x1000, CodeSize: 4,
		CodeIndex: 0, Name: "java/lang/Foo.bar", Code: []byte{1, 2, 3, 4},
	}
	buf.Write(cl.Encode(1001))

	di := DebugInfo{
		CodeAddr: 0x1000,
		Entries: []DebugEntry{
			{Addr: 0x1000, Lineno: 10, Path: "Foo.java"},
			{Addr: 0x1002, Lineno: 11, Path: "Foo.java"},
		},
	}
	buf.Write(di.Encode(1002))
	buf.Write(CodeClose{}.Encode(1003))

	r := bytes.NewReader(buf.Bytes())

	hdr, err := DecodeHeader(r)
	require.NoError(t, err)
	require.EqualValues(t, 0x3e, hdr.ElfMach)
	require.EqualValues(t, 42, hdr.Pid)
	require.EqualValues(t, 1000, hdr.Timestamp)

	rec1, err := DecodeRecord(r)
	require.NoError(t, err)
	require.Equal(t, RecordCodeLoad, rec1.ID)
	require.EqualValues(t, 1001, rec1.Timestamp)
	gotCL, err := DecodeCodeLoad(rec1.Body)
	require.NoError(t, err)
	require.Equal(t, cl.Pid, gotCL.Pid)
	require.Equal(t, cl.Tid, gotCL.Tid)
	require.Equal(t, cl.VMA, gotCL.VMA)
	require.Equal(t, cl.CodeAddr, gotCL.CodeAddr)
	require.Equal(t, cl.CodeSize, gotCL.CodeSize)
	require.Equal(t, cl.CodeIndex, gotCL.CodeIndex)
	require.Equal(t, cl.Name, gotCL.Name)
	require.Equal(t, cl.Code, gotCL.Code)

	rec2, err := DecodeRecord(r)
	require.NoError(t, err)
	require.Equal(t, RecordCodeDebugInfo, rec2.ID)
	gotDI, err := DecodeDebugInfo(rec2.Body)
	require.NoError(t, err)
	require.Equal(t, di.CodeAddr, gotDI.CodeAddr)
	require.Len(t, gotDI.Entries, 2)
	require.Equal(t, uint64(0x1000), gotDI.Entries[0].Addr)
	require.EqualValues(t, 10, gotDI.Entries[0].Lineno)
	require.Equal(t, "Foo.java", gotDI.Entries[0].Path)
	require.Equal(t, uint64(0x1002), gotDI.Entries[1].Addr)

	rec3, err := DecodeRecord(r)
	require.NoError(t, err)
	require.Equal(t, RecordCodeClose, rec3.ID)
	require.Empty(t, rec3.Body)

	_, err = DecodeRecord(r)
	require.ErrorIs(t, err, io.EOF)
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, 40)
	_, err := DecodeHeader(bytes.NewReader(buf))
	require.Error(t, err)
}

package jitdump

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderEncodingSize(t *testing.T) {
	h := Header{ElfMach: 0x3e, Pid: 4242, Timestamp: 123456789}
	buf := h.Encode()
	require.Len(t, buf, 40)
	require.Equal(t, magic, binary.NativeEndian.Uint32(buf[0:4]))
	require.Equal(t, uint32(40), binary.NativeEndian.Uint32(buf[8:12]))
}

func TestHeaderLittleEndianMagicBytes(t *testing.T) {
	// This assertion only holds on little-endian hosts, which is the
	// universal case for the platforms perf jitdump targets (x86-64, arm64).
	h := Header{ElfMach: 0, Pid: 1}
	buf := h.Encode()
	require.Equal(t, []byte{0x44, 0x54, 0x69, 0x4a}, buf[0:4])
	require.Equal(t, byte(0x28), buf[8]) // 40 == 0x28, low byte
}

func TestCodeLoadEncodedLength(t *testing.T) {
	cl := CodeLoad{
		Pid: 1, Tid: 2, VMA: 0x1000, CodeAddr: 0x1000, CodeSize: 4, CodeIndex: 0,
		Name: "abcd", Code: []byte{0x90, 0x90, 0x90, 0x90},
	}
	buf := cl.Encode(0)
	// 16 (prefix) + 40 (fixed body) + 5 (name+NUL) + 4 (code) = 65
	require.Len(t, buf, 65)
	require.Equal(t, uint32(RecordCodeLoad), binary.NativeEndian.Uint32(buf[0:4]))
	require.Equal(t, uint32(len(buf)), binary.NativeEndian.Uint32(buf[4:8]))
}

func TestDebugInfoSizeMatchesEncodedLength(t *testing.T) {
	d := DebugInfo{
		CodeAddr: 0x2000,
		Entries: []DebugEntry{
			{Addr: 0x2000, Lineno: 42, Path: "java/lang/Thread.java"},
			{Addr: 0x2004, Lineno: 43, Path: "java/lang/Thread.java"},
		},
	}
	require.EqualValues(t, d.Size(), len(d.Encode(0)))
}

func TestCodeCloseIsPrefixOnly(t *testing.T) {
	buf := CodeClose{}.Encode(99)
	require.Len(t, buf, 16)
	require.Equal(t, uint32(RecordCodeClose), binary.NativeEndian.Uint32(buf[0:4]))
	require.Equal(t, uint64(99), binary.NativeEndian.Uint64(buf[8:16]))
}

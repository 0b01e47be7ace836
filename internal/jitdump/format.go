// Package jitdump encodes the binary record stream consumed by Linux perf's
// jitdump loader: a 40-byte file header followed by an append-only sequence
// of CODE_LOAD, CODE_DEBUG_INFO, and CODE_CLOSE records. All integers are
// encoded in the host's native byte order.
package jitdump

import (
	"encoding/binary"
)

// Record kinds. 1 (CODE_MOVE) is reserved by the jitdump format and never
// emitted by this agent.
const (
	RecordCodeLoad      uint32 = 0
	RecordCodeDebugInfo uint32 = 2
	RecordCodeClose     uint32 = 3
)

const (
	magic            uint32 = 0x4a695444
	version          uint32 = 1
	headerSize       uint32 = 40
	recordPrefixSize        = 16
)

// byteOrder is the host's native byte order; every integer field in the
// jitdump stream uses it, per the format's "native byte order" contract.
var byteOrder = binary.NativeEndian

// Header is the 40-byte file header written exactly once at file creation.
type Header struct {
	ElfMach   uint32
	Pid       uint32
	Timestamp uint64
}

// Encode renders the 40-byte header.
func (h Header) Encode() []byte {
	buf := make([]byte, headerSize)
	byteOrder.PutUint32(buf[0:4], magic)
	byteOrder.PutUint32(buf[4:8], version)
	byteOrder.PutUint32(buf[8:12], headerSize)
	byteOrder.PutUint32(buf[12:16], h.ElfMach)
	byteOrder.PutUint32(buf[16:20], 0) // pad
	byteOrder.PutUint32(buf[20:24], h.Pid)
	byteOrder.PutUint64(buf[24:32], h.Timestamp)
	byteOrder.PutUint64(buf[32:40], 0) // flags
	return buf
}

func putRecordPrefix(buf []byte, id uint32, totalSize uint32, timestamp uint64) {
	byteOrder.PutUint32(buf[0:4], id)
	byteOrder.PutUint32(buf[4:8], totalSize)
	byteOrder.PutUint64(buf[8:16], timestamp)
}

// CodeLoad is the CODE_LOAD record: id=0.
type CodeLoad struct {
	Pid       uint32
	Tid       uint32
	VMA       uint64
	CodeAddr  uint64
	CodeSize  uint64
	CodeIndex uint64
	Name      string
	Code      []byte
}

// Encode renders the full CODE_LOAD record, including its 16-byte prefix.
func (c CodeLoad) Encode(timestamp uint64) []byte {
	nameBytes := append([]byte(c.Name), 0)
	bodySize := 4 + 4 + 8 + 8 + 8 + 8 + len(nameBytes) + len(c.Code)
	total := uint32(recordPrefixSize + bodySize)

	buf := make([]byte, total)
	putRecordPrefix(buf, RecordCodeLoad, total, timestamp)

	o := recordPrefixSize
	byteOrder.PutUint32(buf[o:o+4], c.Pid)
	o += 4
	byteOrder.PutUint32(buf[o:o+4], c.Tid)
	o += 4
	byteOrder.PutUint64(buf[o:o+8], c.VMA)
	o += 8
	byteOrder.PutUint64(buf[o:o+8], c.CodeAddr)
	o += 8
	byteOrder.PutUint64(buf[o:o+8], c.CodeSize)
	o += 8
	byteOrder.PutUint64(buf[o:o+8], c.CodeIndex)
	o += 8
	copy(buf[o:], nameBytes)
	o += len(nameBytes)
	copy(buf[o:], c.Code)

	return buf
}

// DebugEntry is one line-table entry inside a CODE_DEBUG_INFO record.
type DebugEntry struct {
	Addr    uint64
	Lineno  int32
	Discrim int32 // always 0
	Path    string
}

func (e DebugEntry) encodedSize() int {
	return 8 + 4 + 4 + len(e.Path) + 1
}

// DebugInfo is the CODE_DEBUG_INFO record: id=2.
type DebugInfo struct {
	CodeAddr uint64
	Entries  []DebugEntry
}

// Size returns the total_size this record will encode to, computed by
// iterating the entries once and summing 17 bytes (addr+lineno+discrim+NUL)
// plus each entry's path length, plus the 16-byte record prefix and the
// 16-byte (code_addr, nr_entry) fixed fields. This lets callers pre-size
// before writing the first byte, as the format requires.
func (d DebugInfo) Size() uint32 {
	total := uint32(recordPrefixSize + 8 + 8)
	for _, e := range d.Entries {
		total += uint32(e.encodedSize())
	}
	return total
}

// Encode renders the full CODE_DEBUG_INFO record.
func (d DebugInfo) Encode(timestamp uint64) []byte {
	total := d.Size()
	buf := make([]byte, total)
	putRecordPrefix(buf, RecordCodeDebugInfo, total, timestamp)

	o := recordPrefixSize
	byteOrder.PutUint64(buf[o:o+8], d.CodeAddr)
	o += 8
	byteOrder.PutUint64(buf[o:o+8], uint64(len(d.Entries)))
	o += 8
	for _, e := range d.Entries {
		byteOrder.PutUint64(buf[o:o+8], e.Addr)
		o += 8
		byteOrder.PutUint32(buf[o:o+4], uint32(e.Lineno))
		o += 4
		byteOrder.PutUint32(buf[o:o+4], uint32(e.Discrim))
		o += 4
		copy(buf[o:], e.Path)
		o += len(e.Path)
		buf[o] = 0
		o++
	}
	return buf
}

// CodeClose is the CODE_CLOSE record: id=3, empty body.
type CodeClose struct{}

// Encode renders the full CODE_CLOSE record.
func (CodeClose) Encode(timestamp uint64) []byte {
	buf := make([]byte, recordPrefixSize)
	putRecordPrefix(buf, RecordCodeClose, recordPrefixSize, timestamp)
	return buf
}

package jitdump

import (
	"os"
	"time"

	"github.com/edsrzf/mmap-go"

	"github.com/jitprobe/rvmti-agent/internal/log"
)

var logger = log.New("jitdump")

// DumpFile is an owned append-only file plus a process-private read+execute
// memory mapping covering at least one page of that file. The mapping exists
// only as a marker perf scans /proc/<pid>/maps for; it is never used as a
// write surface. All writes go through Write, which appends to the
// underlying file and keeps the offset monotonic (no seeks).
type DumpFile struct {
	f       *os.File
	mapping mmap.MMap
	offset  int64
}

// Create creates path (O_CREATE|O_EXCL, mode 0666), writes the jitdump
// header, and establishes the perf-visible mmap marker.
func Create(path string, pid uint32) (*DumpFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0666)
	if err != nil {
		return nil, err
	}

	elfMach, err := HostELFMachine()
	if err != nil {
		f.Close()
		return nil, err
	}

	hdr := Header{ElfMach: elfMach, Pid: pid, Timestamp: uint64(time.Now().UnixNano())}
	if _, err := f.Write(hdr.Encode()); err != nil {
		f.Close()
		return nil, err
	}

	df := &DumpFile{f: f, offset: int64(headerSize)}
	if err := df.mapMarker(); err != nil {
		f.Close()
		return nil, err
	}
	logger.Info("dump file created", "path", path, "pid", pid)
	return df, nil
}

// mapMarker establishes the process-private read+execute mapping over the
// header page. perf discovers agents by scanning /proc/<pid>/maps for an
// *executable* mapping of a file matching "jit-*.dump"; a read-only mapping
// is invisible to that scan. The mapping's contents are never read back by
// this process, and the file is opened O_RDWR by Create so this mapping is
// additive, not the write path.
func (d *DumpFile) mapMarker() error {
	m, err := mmap.Map(d.f, mmap.RDONLY|mmap.EXEC, 0)
	if err != nil {
		return err
	}
	d.mapping = m
	return nil
}

// Write appends a single encoded record to the file. Writes are monotonic in
// file offset; the method never seeks.
func (d *DumpFile) Write(record []byte) error {
	n, err := d.f.Write(record)
	d.offset += int64(n)
	return err
}

// Offset returns the current end-of-file offset, the position the next
// Write will land at.
func (d *DumpFile) Offset() int64 { return d.offset }

// Close unmaps the marker, then closes the file.
func (d *DumpFile) Close() error {
	var unmapErr error
	if d.mapping != nil {
		unmapErr = d.mapping.Unmap()
	}
	closeErr := d.f.Close()
	if unmapErr != nil {
		return unmapErr
	}
	return closeErr
}

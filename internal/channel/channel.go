// Package channel owns the shared-memory coverage region (§4.1) that the
// instrumented target writes its execution trace into and the fuzzer reads
// back after each run.
package channel

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/fEst1ck/coverage-playground/pkg/types"
	"golang.org/x/sys/unix"
)

// DefaultPath is the well-known shared-memory-backed file from §6.
const DefaultPath = "/tmp/coverage_shm.bin"

// EnvVar is the environment variable the target's instrumentation reads to
// locate the coverage region.
const EnvVar = "COVERAGE_SHM_PATH"

const (
	magic      uint32 = 0xC0F7FACE
	headerSize        = 8 // magic(4) + capacity(4) ... written-count appended below
	// Layout: magic(4) | capacity(4) | written(4) | entries(capacity*4)
	fullHeaderSize = 12
	entrySize      = 4
)

// Channel owns a fixed-size mmap'd region shared with the target process.
type Channel struct {
	path     string
	file     *os.File
	data     []byte // mmap'd region
	capacity uint32 // entries
}

// Create allocates and zeroes the region. It does not touch the environment
// itself; Env returns the entry that spawned targets need to attach.
// Creation failure is fatal to the fuzzer (§4.1).
func Create(path string, capacityEntries int) (*Channel, error) {
	if capacityEntries <= 0 {
		return nil, fmt.Errorf("channel: capacity must be positive")
	}
	size := fullHeaderSize + capacityEntries*entrySize

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("channel: create %s: %w", path, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("channel: truncate %s: %w", path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("channel: mmap %s: %w", path, err)
	}

	c := &Channel{path: path, file: f, data: data, capacity: uint32(capacityEntries)}
	c.writeHeader(0)
	binary.LittleEndian.PutUint32(c.data[0:4], magic)
	return c, nil
}

// Path returns the filesystem path backing the region, for publishing into
// the target's environment (COVERAGE_SHM_PATH=<path>).
func (c *Channel) Path() string { return c.path }

// Env returns the single environment variable entry the target needs.
func (c *Channel) Env() string { return EnvVar + "=" + c.path }

func (c *Channel) writeHeader(written uint32) {
	binary.LittleEndian.PutUint32(c.data[4:8], c.capacity)
	binary.LittleEndian.PutUint32(c.data[8:12], written)
}

// Reset zeroes the header's written-entry-count and the sentinel first byte
// of every entry slot, per §4.1. Called before every execution.
func (c *Channel) Reset() {
	binary.LittleEndian.PutUint32(c.data[0:4], magic)
	c.writeHeader(0)
	for i := fullHeaderSize; i < len(c.data); i += entrySize {
		c.data[i] = 0
	}
}

// Snapshot reads the header, bounds the read to the declared entry count,
// and copies out the ordered edge IDs as a Trace (§4.1).
//
// A malformed header (bad magic, or a written-count exceeding capacity) is
// reported as an empty, truncated Trace rather than an error: the caller
// classifies the run as Normal unless the process also signaled, per §4.1's
// failure semantics.
func (c *Channel) Snapshot() types.Trace {
	gotMagic := binary.LittleEndian.Uint32(c.data[0:4])
	written := binary.LittleEndian.Uint32(c.data[8:12])

	if gotMagic != magic || written > c.capacity {
		return types.Trace{Truncated: true}
	}

	truncated := written == c.capacity
	edges := make([]uint32, written)
	for i := uint32(0); i < written; i++ {
		off := fullHeaderSize + int(i)*entrySize
		edges[i] = binary.LittleEndian.Uint32(c.data[off : off+4])
	}
	return types.Trace{Edges: edges, Truncated: truncated}
}

// Close unmaps the region and closes the backing file. It does not remove
// the file: the region is process-wide for the fuzzer's lifetime (§9).
func (c *Channel) Close() error {
	if err := unix.Munmap(c.data); err != nil {
		return fmt.Errorf("channel: munmap: %w", err)
	}
	return c.file.Close()
}

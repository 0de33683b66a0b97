// Package disks provides the block device collaborators of the FAT32 driver:
// disk handles, partition descriptors and sector-addressable devices.
package disks

import (
	"errors"

	"github.com/spf13/afero"
)

// SectorSize is the only sector size supported by the driver stack.
const SectorSize = 512

// These errors may occur while accessing a block device.
var (
	ErrOutOfRange = errors.New("sector range outside of the device")
	ErrBadBuffer  = errors.New("buffer is too small for the sector count")
)

// BlockDevice is a sector-addressable device. Reads and writes are synchronous
// and always cover count full sectors starting at the given LBA.
//
// Generated mock using mockgen:
//  mockgen -source=disks.go -destination=blockdevice_mock.go -package disks
type BlockDevice interface {
	ReadSectors(lba uint64, count uint32, buf []byte) error
	WriteSectors(lba uint64, count uint32, buf []byte) error
}

// Disk is a handle for a whole disk. Equal UUIDs imply the same underlying
// device.
type Disk struct {
	UUID   uint64
	Device BlockDevice
}

// ReadSectors reads count sectors starting at lba into buf.
// The contents of buf are only valid if no error is returned.
func (d Disk) ReadSectors(lba uint64, count uint32, buf []byte) error {
	return d.Device.ReadSectors(lba, count, buf)
}

// WriteSectors writes count sectors from buf starting at lba.
func (d Disk) WriteSectors(lba uint64, count uint32, buf []byte) error {
	return d.Device.WriteSectors(lba, count, buf)
}

// PartitionDescriptor describes one partition of a disk.
// Start is the LBA of the first sector of the partition.
type PartitionDescriptor struct {
	UUID    uint64
	Start   uint64
	Sectors uint64
}

// MemDevice is an in-memory block device. It is mainly useful for tests and
// for building volume images without touching the host filesystem.
type MemDevice struct {
	buf []byte
}

// NewMemDevice creates a zeroed in-memory device with the given number of
// sectors.
func NewMemDevice(sectors uint64) *MemDevice {
	return &MemDevice{buf: make([]byte, sectors*SectorSize)}
}

// Sectors returns the size of the device in sectors.
func (m *MemDevice) Sectors() uint64 {
	return uint64(len(m.buf)) / SectorSize
}

func (m *MemDevice) bounds(lba uint64, count uint32, buf []byte) (int64, int64, error) {
	if len(buf) < int(count)*SectorSize {
		return 0, 0, ErrBadBuffer
	}

	off := int64(lba) * SectorSize
	end := off + int64(count)*SectorSize
	if off < 0 || end > int64(len(m.buf)) {
		return 0, 0, ErrOutOfRange
	}

	return off, end, nil
}

func (m *MemDevice) ReadSectors(lba uint64, count uint32, buf []byte) error {
	off, end, err := m.bounds(lba, count, buf)
	if err != nil {
		return err
	}

	copy(buf, m.buf[off:end])
	return nil
}

func (m *MemDevice) WriteSectors(lba uint64, count uint32, buf []byte) error {
	off, end, err := m.bounds(lba, count, buf)
	if err != nil {
		return err
	}

	copy(m.buf[off:end], buf)
	return nil
}

// FileDevice adapts an afero.File (for example a raw disk image) to the
// BlockDevice interface.
type FileDevice struct {
	file afero.File
}

// NewFileDevice wraps the given image file as a block device.
func NewFileDevice(file afero.File) *FileDevice {
	return &FileDevice{file: file}
}

func (f *FileDevice) ReadSectors(lba uint64, count uint32, buf []byte) error {
	size := int(count) * SectorSize
	if len(buf) < size {
		return ErrBadBuffer
	}

	n, err := f.file.ReadAt(buf[:size], int64(lba)*SectorSize)
	if err != nil {
		return err
	}
	if n != size {
		return ErrOutOfRange
	}

	return nil
}

func (f *FileDevice) WriteSectors(lba uint64, count uint32, buf []byte) error {
	size := int(count) * SectorSize
	if len(buf) < size {
		return ErrBadBuffer
	}

	_, err := f.file.WriteAt(buf[:size], int64(lba)*SectorSize)
	return err
}

package fat32

import (
	"encoding/binary"
	"errors"

	"github.com/molecula451/thor-os/checkpoint"
	"github.com/molecula451/thor-os/disks"
)

// These errors may occur while formatting a partition.
var (
	ErrBadGeometry = errors.New("invalid format geometry")
)

// FormatOptions describe the geometry of a new FAT32 volume.
type FormatOptions struct {
	// TotalSectors is the size of the partition in sectors.
	TotalSectors uint32
	// SectorsPerCluster has to be a power of two; the cluster must not
	// exceed 32K.
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumberOfFATs      uint8
	SectorsPerFAT     uint32
	Label             string
}

// DefaultFormatOptions returns the geometry used when nothing more specific
// is asked for: 8 sectors per cluster, 32 reserved sectors and a single FAT
// sized to address the whole partition.
func DefaultFormatOptions(totalSectors uint32) FormatOptions {
	opts := FormatOptions{
		TotalSectors:      totalSectors,
		SectorsPerCluster: 8,
		ReservedSectors:   32,
		NumberOfFATs:      1,
	}

	// One FAT sector addresses 128 clusters of data.
	dataSectors := totalSectors - uint32(opts.ReservedSectors)
	perFATSector := fatEntriesPerSector * uint32(opts.SectorsPerCluster)
	opts.SectorsPerFAT = (dataSectors + 2*uint32(opts.SectorsPerCluster) + perFATSector) / (perFATSector + 1)
	if opts.SectorsPerFAT == 0 {
		opts.SectorsPerFAT = 1
	}

	return opts
}

func (o *FormatOptions) validate() error {
	if o.SectorsPerCluster == 0 || o.SectorsPerCluster&(o.SectorsPerCluster-1) != 0 {
		return checkpoint.From(ErrBadGeometry)
	}
	if uint32(o.SectorsPerCluster)*SectorSize > 32*1024 {
		return checkpoint.From(ErrBadGeometry)
	}
	if o.ReservedSectors < 2 || o.NumberOfFATs == 0 || o.SectorsPerFAT == 0 {
		return checkpoint.From(ErrBadGeometry)
	}

	used := uint32(o.ReservedSectors) + uint32(o.NumberOfFATs)*o.SectorsPerFAT
	if o.TotalSectors < used+uint32(o.SectorsPerCluster) {
		return checkpoint.From(ErrBadGeometry)
	}

	return nil
}

// clusters returns the number of data clusters the geometry provides.
func (o *FormatOptions) clusters() uint32 {
	dataSectors := o.TotalSectors - uint32(o.ReservedSectors) - uint32(o.NumberOfFATs)*o.SectorsPerFAT
	return dataSectors / uint32(o.SectorsPerCluster)
}

// Format writes an empty FAT32 filesystem to the partition: boot sector, FS
// information sector, zeroed FATs with the reserved entries, and an empty
// root directory occupying cluster 2.
func Format(disk disks.Disk, partition disks.PartitionDescriptor, opts FormatOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}

	bs := &BootSector{
		Jump:                  [3]byte{0xEB, 0x58, 0x90},
		BytesPerSector:        SectorSize,
		SectorsPerCluster:     opts.SectorsPerCluster,
		ReservedSectors:       opts.ReservedSectors,
		NumberOfFATs:          opts.NumberOfFATs,
		MediaDescriptor:       0xF8,
		TotalSectors32:        opts.TotalSectors,
		SectorsPerFAT32:       opts.SectorsPerFAT,
		RootCluster:           2,
		InfoSector:            1,
		PhysicalDriveNumber:   0x80,
		ExtendedBootSignature: 0x29,
		Signature:             bootSignature,
	}
	copy(bs.OEMName[:], "THOR-OS ")
	copy(bs.FileSystemType[:], "FAT32   ")

	label := opts.Label
	if label == "" {
		label = "NO NAME"
	}
	for i := range bs.VolumeLabel {
		bs.VolumeLabel[i] = ' '
	}
	copy(bs.VolumeLabel[:], label)

	raw := make([]byte, SectorSize)
	encode(raw, bs)
	if err := disk.WriteSectors(partition.Start, 1, raw); err != nil {
		return checkpoint.Wrap(err, ErrWrite)
	}

	// Cluster 2 is taken by the empty root directory.
	is := &InfoSector{
		SignatureStart:    infoSignatureStart,
		SignatureMiddle:   infoSignatureMiddle,
		SignatureEnd:      infoSignatureEnd,
		FreeClusters:      opts.clusters() - 1,
		AllocatedClusters: 3,
	}
	raw = make([]byte, SectorSize)
	encode(raw, is)
	if err := disk.WriteSectors(partition.Start+1, 1, raw); err != nil {
		return checkpoint.Wrap(err, ErrWrite)
	}

	if err := writeEmptyFATs(disk, partition, opts); err != nil {
		return err
	}

	// The root directory starts out as one zeroed cluster: the first slot is
	// already the end-of-directory marker.
	fatBegin := partition.Start + uint64(opts.ReservedSectors)
	rootLBA := fatBegin + uint64(opts.NumberOfFATs)*uint64(opts.SectorsPerFAT)
	raw = make([]byte, uint32(opts.SectorsPerCluster)*SectorSize)
	if err := disk.WriteSectors(rootLBA, uint32(opts.SectorsPerCluster), raw); err != nil {
		return checkpoint.Wrap(err, ErrWrite)
	}

	return nil
}

// writeEmptyFATs zeroes every FAT copy and seeds the reserved entries: the
// media descriptor entry, the reserved cluster 1 and the end-of-chain of the
// root directory.
func writeEmptyFATs(disk disks.Disk, partition disks.PartitionDescriptor, opts FormatOptions) error {
	const chunkSectors = 8
	zero := make([]byte, chunkSectors*SectorSize)

	for fat := uint32(0); fat < uint32(opts.NumberOfFATs); fat++ {
		begin := partition.Start + uint64(opts.ReservedSectors) + uint64(fat)*uint64(opts.SectorsPerFAT)

		for sector := uint32(0); sector < opts.SectorsPerFAT; sector += chunkSectors {
			count := opts.SectorsPerFAT - sector
			if count > chunkSectors {
				count = chunkSectors
			}

			if err := disk.WriteSectors(begin+uint64(sector), count, zero[:count*SectorSize]); err != nil {
				return checkpoint.Wrap(err, ErrWrite)
			}
		}

		first := make([]byte, SectorSize)
		binary.LittleEndian.PutUint32(first[0:], 0x0FFFFFF8)
		binary.LittleEndian.PutUint32(first[4:], 0x0FFFFFFF)
		binary.LittleEndian.PutUint32(first[8:], uint32(entryEndOfChain))
		if err := disk.WriteSectors(begin, 1, first); err != nil {
			return checkpoint.Wrap(err, ErrWrite)
		}
	}

	return nil
}

// File model contains the structs which match the on-disk structures of the
// FAT32 filesystem. All of them are packed and little-endian; their encoded
// sizes are asserted in the tests.

package fat32

import (
	"bytes"
	"encoding/binary"
)

// SectorSize is the only sector size supported by the driver.
const SectorSize = 512

// entrySize is the size of one directory entry slot.
const entrySize = 32

// entriesPerSector is the number of directory entry slots per sector.
const entriesPerSector = SectorSize / entrySize

// fatEntriesPerSector is the number of 32-bit FAT entries per sector.
const fatEntriesPerSector = SectorSize / 4

// fatEntry is the 28-bit effective value of one FAT slot. The top four bits
// are reserved and always masked off on read.
type fatEntry uint32

const (
	entryMask fatEntry = 0x0FFFFFFF
	// entryBad marks an unreadable cluster.
	entryBad fatEntry = 0x0FFFFFF7
	// entryEndOfChain and everything above it terminates a cluster chain.
	entryEndOfChain fatEntry = 0x0FFFFFF8
)

func (e fatEntry) isEndOfChain() bool {
	return e&entryMask >= entryEndOfChain
}

func (e fatEntry) isBad() bool {
	return e&entryMask == entryBad
}

// Attribute flags of a directory entry.
const (
	attrReadOnly  = 0x01
	attrHidden    = 0x02
	attrSystem    = 0x04
	attrVolumeID  = 0x08
	attrDirectory = 0x10
	attrArchive   = 0x20
	// attrLongName identifies a long filename entry.
	attrLongName = 0x0F
)

// Directory entry name markers.
const (
	entryEndOfDirectory = 0x00
	entryUnused         = 0xE5
)

// FS information sector signatures.
const (
	infoSignatureStart  = 0x41615252
	infoSignatureMiddle = 0x61417272
	infoSignatureEnd    = 0xAA550000
)

// bootSignature is the 0xAA55 trailer of the boot sector.
const bootSignature = 0xAA55

// BootSector is the first sector of a FAT32 partition. Encoded size is
// exactly one sector.
type BootSector struct {
	Jump                  [3]byte
	OEMName               [8]byte
	BytesPerSector        uint16
	SectorsPerCluster     uint8
	ReservedSectors       uint16
	NumberOfFATs          uint8
	RootDirectoryEntries  uint16
	TotalSectors16        uint16
	MediaDescriptor       uint8
	SectorsPerFAT16       uint16
	SectorsPerTrack       uint16
	Heads                 uint16
	HiddenSectors         uint32
	TotalSectors32        uint32
	SectorsPerFAT32       uint32
	DriveDescription      uint16
	Version               uint16
	RootCluster           uint32
	InfoSector            uint16
	BackupBootSector      uint16
	Reserved              [12]byte
	PhysicalDriveNumber   uint8
	Reserved2             uint8
	ExtendedBootSignature uint8
	VolumeID              uint32
	VolumeLabel           [11]byte
	FileSystemType        [8]byte
	BootCode              [420]byte
	Signature             uint16
}

// InfoSector is the FAT32 FS information sector holding the free cluster
// accounting. Encoded size is exactly one sector.
type InfoSector struct {
	SignatureStart    uint32
	Reserved          [480]byte
	SignatureMiddle   uint32
	FreeClusters      uint32
	AllocatedClusters uint32
	Reserved2         [12]byte
	SignatureEnd      uint32
}

// EntryHeader is a short 32-byte directory entry.
type EntryHeader struct {
	Name            [11]byte
	Attribute       byte
	NTReserved      byte
	CreateTimeTenth byte
	CreateTime      uint16
	CreateDate      uint16
	LastAccessDate  uint16
	FirstClusterHI  uint16
	WriteTime       uint16
	WriteDate       uint16
	FirstClusterLO  uint16
	FileSize        uint32
}

// FirstCluster combines the split starting cluster words.
func (e *EntryHeader) FirstCluster() fatEntry {
	return fatEntry(uint32(e.FirstClusterLO) | uint32(e.FirstClusterHI)<<16)
}

// IsDir reports whether the entry describes a directory.
func (e *EntryHeader) IsDir() bool {
	return e.Attribute&attrDirectory == attrDirectory
}

// LongFilenameEntry is a VFAT long filename entry overlaid on a directory
// entry slot. The 26 name bytes hold 13 UCS-2 code units split over three
// fixed fields.
type LongFilenameEntry struct {
	Sequence       byte
	First          [5]uint16
	Attribute      byte
	EntryType      byte
	Checksum       byte
	Second         [6]uint16
	FirstClusterLO uint16
	Third          [2]uint16
}

// ExtendedEntryHeader is a directory entry together with its decoded long
// name. ExtendedName is empty if the entry had no preceding long filename
// sequence.
type ExtendedEntryHeader struct {
	EntryHeader
	ExtendedName string
}

// DisplayName returns the name under which the entry is addressed: the
// decoded long name if one exists, otherwise the raw short name truncated at
// the first space.
func (e *ExtendedEntryHeader) DisplayName() string {
	if e.ExtendedName != "" {
		return e.ExtendedName
	}

	for i, c := range e.Name {
		if c == ' ' {
			return string(e.Name[:i])
		}
	}

	return string(e.Name[:])
}

func decode(raw []byte, v interface{}) error {
	return binary.Read(bytes.NewReader(raw), binary.LittleEndian, v)
}

func encode(raw []byte, v interface{}) {
	var buf bytes.Buffer
	// Writing fixed-size structs to a bytes.Buffer cannot fail.
	_ = binary.Write(&buf, binary.LittleEndian, v)
	copy(raw, buf.Bytes())
}

// entryAt decodes the directory entry in slot i of a raw directory cluster.
func entryAt(raw []byte, i int) EntryHeader {
	var e EntryHeader
	_ = decode(raw[i*entrySize:(i+1)*entrySize], &e)
	return e
}

// longEntryAt decodes slot i of a raw directory cluster as a long filename
// entry.
func longEntryAt(raw []byte, i int) LongFilenameEntry {
	var e LongFilenameEntry
	_ = decode(raw[i*entrySize:(i+1)*entrySize], &e)
	return e
}

// setEntryAt encodes e into slot i of a raw directory cluster.
func setEntryAt(raw []byte, i int, e *EntryHeader) {
	encode(raw[i*entrySize:(i+1)*entrySize], e)
}

// setLongEntryAt encodes e into slot i of a raw directory cluster.
func setLongEntryAt(raw []byte, i int, e *LongFilenameEntry) {
	encode(raw[i*entrySize:(i+1)*entrySize], e)
}

// markEntryAt overwrites the first name byte of slot i, which is enough to
// flag a slot as unused or as the end of the directory.
func markEntryAt(raw []byte, i int, marker byte) {
	raw[i*entrySize] = marker
}

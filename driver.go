package fat32

import (
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/molecula451/thor-os/checkpoint"
	"github.com/molecula451/thor-os/disks"
)

// These errors may occur while operating on a FAT32 partition.
var (
	ErrRead          = errors.New("could not read from the device")
	ErrWrite         = errors.New("could not write to the device")
	ErrInvalidFormat = errors.New("partition does not hold a valid FAT32 filesystem")
	ErrNotFound      = errors.New("no such file or directory")
	ErrNotDirectory  = errors.New("not a directory")
	ErrDiskFull      = errors.New("no free cluster left on the partition")
	ErrDirectoryFull = errors.New("no room left in the directory cluster")
	ErrNameTooLong   = errors.New("name does not fit into a long filename sequence")
	ErrEmptyName     = errors.New("name must not be empty")
)

// Driver is a FAT32 driver instance. It owns the metadata cache for the most
// recently addressed (disk, partition) pair: the boot sector and the FS
// information sector stay in memory across calls and are reloaded whenever a
// different pair is addressed.
//
// A Driver serializes all operations internally; a single instance may be
// shared.
type Driver struct {
	mu  sync.Mutex
	log log.FieldLogger

	// skipChecks disables the defensive signature validation of the boot
	// and FS information sectors.
	skipChecks bool

	cacheValid      bool
	cachedDisk      uint64
	cachedPartition uint64
	partitionStart  uint64
	bootSector      *BootSector
	infoSector      *InfoSector
}

// NewDriver creates a driver which validates the boot and FS information
// sector signatures on every cache load.
func NewDriver() *Driver {
	return &Driver{log: log.StandardLogger()}
}

// NewDriverSkipChecks creates a driver which accepts partitions with missing
// or bogus signatures. Use with caution!
func NewDriverSkipChecks() *Driver {
	return &Driver{log: log.StandardLogger(), skipChecks: true}
}

// SetLogger replaces the logger used for driver diagnostics.
func (d *Driver) SetLogger(logger log.FieldLogger) {
	d.log = logger
}

// Mount loads the partition metadata into the cache and verifies it. It is
// not required before using the operations, which cache on demand, but gives
// an early error for partitions that are not FAT32 at all.
func (d *Driver) Mount(disk disks.Disk, partition disks.PartitionDescriptor) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.cacheDiskPartition(disk, partition)
}

// cacheDiskPartition makes sure the boot sector and the FS information sector
// of the given pair are in memory. A failed load leaves the cache empty so
// that the next call retries from scratch.
func (d *Driver) cacheDiskPartition(disk disks.Disk, partition disks.PartitionDescriptor) error {
	if d.cacheValid && d.cachedDisk == disk.UUID && d.cachedPartition == partition.UUID {
		return nil
	}

	d.cacheValid = false
	d.bootSector = nil
	d.infoSector = nil
	d.partitionStart = partition.Start

	d.log.WithFields(log.Fields{
		"disk":      disk.UUID,
		"partition": partition.UUID,
	}).Debug("fat32: loading partition metadata")

	bs, err := d.readBootSector(disk, partition)
	if err != nil {
		return err
	}

	is, err := d.readInfoSector(disk, partition, bs)
	if err != nil {
		return err
	}

	d.bootSector = bs
	d.infoSector = is
	d.cachedDisk = disk.UUID
	d.cachedPartition = partition.UUID
	d.cacheValid = true

	return nil
}

func (d *Driver) readBootSector(disk disks.Disk, partition disks.PartitionDescriptor) (*BootSector, error) {
	raw := make([]byte, SectorSize)
	if err := disk.ReadSectors(partition.Start, 1, raw); err != nil {
		return nil, checkpoint.Wrap(err, ErrRead)
	}

	bs := &BootSector{}
	if err := decode(raw, bs); err != nil {
		return nil, checkpoint.Wrap(err, ErrInvalidFormat)
	}

	if d.skipChecks {
		return bs, nil
	}

	// The core is built around 512-byte sectors throughout.
	if bs.BytesPerSector != SectorSize {
		return nil, checkpoint.From(ErrInvalidFormat)
	}

	if bs.Signature != bootSignature {
		return nil, checkpoint.From(ErrInvalidFormat)
	}

	return bs, nil
}

func (d *Driver) readInfoSector(disk disks.Disk, partition disks.PartitionDescriptor, bs *BootSector) (*InfoSector, error) {
	raw := make([]byte, SectorSize)
	lba := partition.Start + uint64(bs.InfoSector)
	if err := disk.ReadSectors(lba, 1, raw); err != nil {
		return nil, checkpoint.Wrap(err, ErrRead)
	}

	is := &InfoSector{}
	if err := decode(raw, is); err != nil {
		return nil, checkpoint.Wrap(err, ErrInvalidFormat)
	}

	if d.skipChecks {
		return is, nil
	}

	if is.SignatureStart != infoSignatureStart ||
		is.SignatureMiddle != infoSignatureMiddle ||
		is.SignatureEnd != infoSignatureEnd {
		return nil, checkpoint.From(ErrInvalidFormat)
	}

	return is, nil
}

// writeInfoSector persists the cached FS information sector. It is the only
// way the cache is ever written back to disk.
func (d *Driver) writeInfoSector(disk disks.Disk) error {
	raw := make([]byte, SectorSize)
	encode(raw, d.infoSector)

	lba := d.partitionStart + uint64(d.bootSector.InfoSector)
	if err := disk.WriteSectors(lba, 1, raw); err != nil {
		return checkpoint.Wrap(err, ErrWrite)
	}

	return nil
}

func logFields(disk disks.Disk, partition disks.PartitionDescriptor, name string, cluster fatEntry) log.Fields {
	return log.Fields{
		"disk":      disk.UUID,
		"partition": partition.UUID,
		"name":      name,
		"cluster":   uint32(cluster),
	}
}

// fatBegin returns the LBA of the first FAT sector.
func (d *Driver) fatBegin() uint64 {
	return d.partitionStart + uint64(d.bootSector.ReservedSectors)
}

// clusterLBA returns the LBA of the first sector of the given data cluster.
// Valid for all clusters >= 2.
func (d *Driver) clusterLBA(cluster fatEntry) uint64 {
	clusterBegin := d.fatBegin() + uint64(d.bootSector.NumberOfFATs)*uint64(d.bootSector.SectorsPerFAT32)
	return clusterBegin + uint64(cluster-2)*uint64(d.bootSector.SectorsPerCluster)
}

// clusterSize returns the size of one cluster in bytes.
func (d *Driver) clusterSize() uint32 {
	return uint32(d.bootSector.SectorsPerCluster) * SectorSize
}

// entriesPerCluster returns the number of directory entry slots per cluster.
func (d *Driver) entriesPerCluster() int {
	return entriesPerSector * int(d.bootSector.SectorsPerCluster)
}

// readCluster reads the full data cluster into a fresh buffer.
func (d *Driver) readCluster(disk disks.Disk, cluster fatEntry) ([]byte, error) {
	raw := make([]byte, d.clusterSize())
	count := uint32(d.bootSector.SectorsPerCluster)
	if err := disk.ReadSectors(d.clusterLBA(cluster), count, raw); err != nil {
		return nil, checkpoint.Wrap(err, ErrRead)
	}

	return raw, nil
}

// writeCluster writes a full data cluster back to the device.
func (d *Driver) writeCluster(disk disks.Disk, cluster fatEntry, raw []byte) error {
	count := uint32(d.bootSector.SectorsPerCluster)
	if err := disk.WriteSectors(d.clusterLBA(cluster), count, raw); err != nil {
		return checkpoint.Wrap(err, ErrWrite)
	}

	return nil
}

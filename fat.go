package fat32

import (
	"encoding/binary"

	"github.com/molecula451/thor-os/checkpoint"
	"github.com/molecula451/thor-os/disks"
)

// fatSize returns the total size of one FAT in sectors. The legacy 16-bit
// field is summed in; it is zero on well-formed FAT32 volumes.
func (d *Driver) fatSize() uint32 {
	return d.bootSector.SectorsPerFAT32 + uint32(d.bootSector.SectorsPerFAT16)
}

// fatPosition returns the FAT sector owning the entry of the given cluster
// and the entry index inside that sector.
func (d *Driver) fatPosition(cluster fatEntry) (uint64, int) {
	sector := d.fatBegin() + uint64(cluster)*4/SectorSize
	return sector, int(cluster % fatEntriesPerSector)
}

// readFATEntry returns the 28-bit FAT value for the given cluster.
func (d *Driver) readFATEntry(disk disks.Disk, cluster fatEntry) (fatEntry, error) {
	sector, index := d.fatPosition(cluster)

	raw := make([]byte, SectorSize)
	if err := disk.ReadSectors(sector, 1, raw); err != nil {
		return 0, checkpoint.Wrap(err, ErrRead)
	}

	return fatEntry(binary.LittleEndian.Uint32(raw[index*4:])) & entryMask, nil
}

// writeFATEntry sets the FAT value for the given cluster, preserving all
// other entries of the containing sector.
func (d *Driver) writeFATEntry(disk disks.Disk, cluster, value fatEntry) error {
	sector, index := d.fatPosition(cluster)

	raw := make([]byte, SectorSize)
	if err := disk.ReadSectors(sector, 1, raw); err != nil {
		return checkpoint.Wrap(err, ErrRead)
	}

	binary.LittleEndian.PutUint32(raw[index*4:], uint32(value))

	if err := disk.WriteSectors(sector, 1, raw); err != nil {
		return checkpoint.Wrap(err, ErrWrite)
	}

	return nil
}

// nextCluster returns the successor of the given cluster in its chain, or 0
// if the chain ends here. Note that the bad-cluster sentinel is passed
// through; callers have to check for it.
func (d *Driver) nextCluster(disk disks.Disk, cluster fatEntry) (fatEntry, error) {
	value, err := d.readFATEntry(disk, cluster)
	if err != nil {
		return 0, err
	}

	if value.isEndOfChain() {
		return 0, nil
	}

	return value, nil
}

// findFreeCluster scans the FAT for the first cluster whose entry is zero.
// Clusters 0 and 1 are reserved and never returned.
func (d *Driver) findFreeCluster(disk disks.Disk) (fatEntry, error) {
	fatBegin := d.fatBegin()
	raw := make([]byte, SectorSize)

	for sector := uint32(0); sector < d.fatSize(); sector++ {
		if err := disk.ReadSectors(fatBegin+uint64(sector), 1, raw); err != nil {
			return 0, checkpoint.Wrap(err, ErrRead)
		}

		for i := 0; i < fatEntriesPerSector; i++ {
			if sector == 0 && i < 2 {
				continue
			}

			value := fatEntry(binary.LittleEndian.Uint32(raw[i*4:])) & entryMask
			if value == 0 {
				return fatEntry(sector)*fatEntriesPerSector + fatEntry(i), nil
			}
		}
	}

	return 0, checkpoint.From(ErrDiskFull)
}

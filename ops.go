package fat32

import (
	"github.com/molecula451/thor-os/checkpoint"
	"github.com/molecula451/thor-os/disks"
)

// FileRecord describes one entry of a directory listing.
type FileRecord struct {
	Name      string
	Hidden    bool
	System    bool
	Directory bool
	// Size is the file size in bytes; directories report the size of one
	// cluster.
	Size uint64
	// Location is the starting cluster of the file or directory.
	Location uint32
}

func (d *Driver) record(entry *ExtendedEntryHeader) FileRecord {
	record := FileRecord{
		Name:      entry.DisplayName(),
		Hidden:    entry.Attribute&attrHidden != 0,
		System:    entry.Attribute&attrSystem != 0,
		Directory: entry.IsDir(),
		Size:      uint64(entry.FileSize),
		Location:  uint32(entry.FirstCluster()),
	}

	if record.Directory {
		record.Size = uint64(d.clusterSize())
	}

	return record
}

// FreeSize returns the free space of the partition in bytes, taken from the
// free cluster counter of the FS information sector.
func (d *Driver) FreeSize(disk disks.Disk, partition disks.PartitionDescriptor) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.cacheDiskPartition(disk, partition); err != nil {
		return 0, err
	}

	return uint64(d.infoSector.FreeClusters) * uint64(d.clusterSize()), nil
}

// Ls lists the directory at the given path. The empty path denotes the root
// directory.
func (d *Driver) Ls(disk disks.Disk, partition disks.PartitionDescriptor, path []string) ([]FileRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.cacheDiskPartition(disk, partition); err != nil {
		return nil, err
	}

	cluster, err := d.findClusterNumber(disk, path)
	if err != nil {
		return nil, err
	}

	entries, err := d.readDir(disk, cluster)
	if err != nil {
		return nil, err
	}

	records := make([]FileRecord, len(entries))
	for i := range entries {
		records[i] = d.record(&entries[i])
	}

	return records, nil
}

// ReadFile returns the content of the named file inside the directory at
// path. A chain inconsistency or an I/O failure in the middle of the file
// yields the bytes read up to that point.
func (d *Driver) ReadFile(disk disks.Disk, partition disks.PartitionDescriptor, path []string, name string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.cacheDiskPartition(disk, partition); err != nil {
		return nil, err
	}

	cluster, err := d.findClusterNumber(disk, path)
	if err != nil {
		return nil, err
	}

	entries, err := d.readDir(disk, cluster)
	if err != nil {
		return nil, err
	}

	var size uint64
	var location fatEntry
	found := false
	for i := range entries {
		record := d.record(&entries[i])
		if record.Name == name {
			size = record.Size
			location = fatEntry(record.Location)
			found = true
			break
		}
	}

	if !found {
		return nil, checkpoint.From(ErrNotFound)
	}

	if size == 0 {
		return nil, nil
	}

	content := make([]byte, 0, size)
	cluster = location

	for uint64(len(content)) < size {
		raw, err := d.readCluster(disk, cluster)
		if err != nil {
			// Partial content is better than none.
			break
		}

		remaining := size - uint64(len(content))
		if remaining < uint64(len(raw)) {
			raw = raw[:remaining]
		}
		content = append(content, raw...)

		if uint64(len(content)) < size {
			cluster, err = d.nextCluster(disk, cluster)
			if err != nil || cluster == 0 || cluster.isBad() {
				// Either the file size or the FAT chain is wrong.
				break
			}
		}
	}

	return content, nil
}

// Mkdir creates a new empty directory inside the directory at path. The new
// directory occupies one cluster holding its "." and ".." entries.
func (d *Driver) Mkdir(disk disks.Disk, partition disks.PartitionDescriptor, path []string, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	parent, cluster, err := d.createEntry(disk, partition, path, name, true)
	if err != nil {
		return err
	}

	// Build the content of the new directory cluster: ".", "..", everything
	// else unused and the end marker on the very last slot.
	raw := make([]byte, d.clusterSize())

	initEntry(raw, 0, ".", cluster, true, false)
	initEntry(raw, 1, "..", parent, true, false)

	slots := d.entriesPerCluster()
	for i := 2; i < slots-1; i++ {
		markEntryAt(raw, i, entryUnused)
	}
	markEntryAt(raw, slots-1, entryEndOfDirectory)

	return d.writeCluster(disk, cluster, raw)
}

// Touch creates a new empty file inside the directory at path. The file gets
// a starting cluster but no content is written to it.
func (d *Driver) Touch(disk disks.Disk, partition disks.PartitionDescriptor, path []string, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, _, err := d.createEntry(disk, partition, path, name, false)
	return err
}

// createEntry performs the common part of Mkdir and Touch: allocate a
// cluster, add the directory entry with its long filename sequence to the
// parent, terminate the new chain in the FAT and persist the decremented
// free cluster counter. The ordering of the writes keeps the window small in
// which the counter understates usage.
func (d *Driver) createEntry(disk disks.Disk, partition disks.PartitionDescriptor, path []string, name string, directory bool) (parent, cluster fatEntry, err error) {
	if err := d.cacheDiskPartition(disk, partition); err != nil {
		return 0, 0, err
	}

	if name == "" {
		return 0, 0, checkpoint.From(ErrEmptyName)
	}
	if len(name) > maxNameLength {
		return 0, 0, checkpoint.From(ErrNameTooLong)
	}

	parent, err = d.findClusterNumber(disk, path)
	if err != nil {
		return 0, 0, err
	}

	cluster, err = d.findFreeCluster(disk)
	if err != nil {
		return 0, 0, err
	}

	raw, err := d.readCluster(disk, parent)
	if err != nil {
		return 0, 0, err
	}

	slot, err := d.findFreeEntry(raw, numberOfEntries(name))
	if err != nil {
		return 0, 0, err
	}

	initEntry(raw, slot, name, cluster, directory, true)

	if err := d.writeCluster(disk, parent, raw); err != nil {
		return 0, 0, err
	}

	if err := d.writeFATEntry(disk, cluster, entryEndOfChain); err != nil {
		return 0, 0, err
	}

	d.infoSector.FreeClusters--
	if err := d.writeInfoSector(disk); err != nil {
		return 0, 0, err
	}

	d.log.WithFields(logFields(disk, partition, name, cluster)).Debug("fat32: allocated cluster")

	return parent, cluster, nil
}

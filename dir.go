package fat32

import (
	"github.com/molecula451/thor-os/checkpoint"
	"github.com/molecula451/thor-os/disks"
)

// readDir decodes the directory rooted at the given cluster into a list of
// entries. Long filename sequences are folded into the short entry that
// follows them. The traversal stops at the end-of-directory marker, at the
// end of the cluster chain, or at a bad cluster.
func (d *Driver) readDir(disk disks.Disk, cluster fatEntry) ([]ExtendedEntryHeader, error) {
	var entries []ExtendedEntryHeader
	var lfn lfnAccumulator

	for {
		raw, err := d.readCluster(disk, cluster)
		if err != nil {
			return entries, err
		}

		for i := 0; i < d.entriesPerCluster(); i++ {
			switch raw[i*entrySize] {
			case entryEndOfDirectory:
				return entries, nil
			case entryUnused:
				// A freed slot interrupts any long filename sequence.
				lfn.reset()
				continue
			}

			if entryAt(raw, i).Attribute == attrLongName {
				long := longEntryAt(raw, i)
				lfn.add(&long)
				continue
			}

			extended := ExtendedEntryHeader{EntryHeader: entryAt(raw, i)}
			if lfn.active {
				extended.ExtendedName = lfn.take()
			}

			entries = append(entries, extended)
		}

		cluster, err = d.nextCluster(disk, cluster)
		if err != nil {
			return entries, err
		}

		if cluster == 0 || cluster.isBad() {
			return entries, nil
		}
	}
}

// findClusterNumber resolves a path to the cluster of its last segment,
// starting at the root directory. Every segment but the last has to be a
// directory. The empty path resolves to the root directory cluster.
func (d *Driver) findClusterNumber(disk disks.Disk, path []string) (fatEntry, error) {
	cluster := fatEntry(d.bootSector.RootCluster)

	for i, segment := range path {
		entries, err := d.readDir(disk, cluster)
		if err != nil {
			return 0, err
		}

		found := false
		last := i == len(path)-1

		for j := range entries {
			entry := &entries[j]
			if !last && !entry.IsDir() {
				continue
			}

			if entry.DisplayName() == segment {
				cluster = entry.FirstCluster()
				found = true
				break
			}
		}

		if !found {
			return 0, checkpoint.From(ErrNotFound)
		}
	}

	return cluster, nil
}

// findFreeEntry locates a run of count consecutive free slots inside the
// given directory cluster and returns the index of its first slot. A slot is
// free if its first name byte marks it unused or as the end of the directory.
// If the run swallows the marker, a new one is placed on the first slot of
// the free tail of the cluster after the run; running out of slots fails with
// ErrDirectoryFull since growing a directory by another cluster is not
// supported.
func (d *Driver) findFreeEntry(raw []byte, count int) (int, error) {
	slots := d.entriesPerCluster()

	end := -1
	for i := 0; i < slots; i++ {
		if raw[i*entrySize] == entryEndOfDirectory {
			end = i
			break
		}
	}

	if end < 0 {
		d.log.Warn("fat32: directory cluster has no end marker, growing directories is not supported")
		return 0, checkpoint.From(ErrDirectoryFull)
	}

	runStart := -1
	runEnd := -1
	size := 0
	for i := 0; i < slots; i++ {
		marker := raw[i*entrySize]
		if marker == entryEndOfDirectory || marker == entryUnused {
			size++
			if size == count {
				runStart = i - (size - 1)
				runEnd = i
				break
			}
		} else {
			size = 0
		}
	}

	if runStart < 0 {
		d.log.Warn("fat32: directory cluster is full, growing directories is not supported")
		return 0, checkpoint.From(ErrDirectoryFull)
	}

	// If the run reaches the end-of-directory marker, the marker has to move
	// behind the run, to the first slot from which the rest of the cluster is
	// free.
	if end <= runEnd {
		newEnd := -1
		for i := slots - 1; i > runEnd; i-- {
			marker := raw[i*entrySize]
			if marker != entryEndOfDirectory && marker != entryUnused {
				break
			}
			newEnd = i
		}

		if newEnd < 0 {
			d.log.Warn("fat32: no room for the end marker, growing directories is not supported")
			return 0, checkpoint.From(ErrDirectoryFull)
		}

		markEntryAt(raw, end, entryUnused)
		markEntryAt(raw, newEnd, entryEndOfDirectory)
	}

	return runStart, nil
}

// initEntry writes a new directory entry for name into the cluster buffer at
// slot, preceded by its long filename sequence if withLong is set. The entry
// points at the given starting cluster; all date and time fields stay zero.
// Reserved slots of the run the sequence does not need are marked unused.
func initEntry(raw []byte, slot int, name string, cluster fatEntry, directory, withLong bool) {
	first := slot
	if withLong {
		slot = encodeLongEntries(raw, slot, name)
	}

	entry := EntryHeader{
		FirstClusterLO: uint16(cluster),
		FirstClusterHI: uint16(uint32(cluster) >> 16),
	}

	for i := range entry.Name {
		if i < len(name) {
			entry.Name[i] = name[i]
		} else {
			entry.Name[i] = ' '
		}
	}

	if directory {
		entry.Attribute = attrDirectory
	}

	setEntryAt(raw, slot, &entry)

	if withLong {
		for i := slot + 1; i < first+numberOfEntries(name); i++ {
			markEntryAt(raw, i, entryUnused)
		}
	}
}

package fat32

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/molecula451/thor-os/disks"
)

// testGeometry is the volume layout used by the integration tests: 512-byte
// sectors, 8 sectors per cluster, 32 reserved sectors, a single FAT of 1024
// sectors and the root directory on cluster 2.
var testGeometry = FormatOptions{
	TotalSectors:      8192,
	SectorsPerCluster: 8,
	ReservedSectors:   32,
	NumberOfFATs:      1,
	SectorsPerFAT:     1024,
	Label:             "THOR",
}

const testClusterSize = 8 * SectorSize

// newTestVolume formats an in-memory device as an empty FAT32 volume and
// returns a driver with a silent logger.
func newTestVolume(t *testing.T) (disks.Disk, disks.PartitionDescriptor, *Driver) {
	t.Helper()

	device := disks.NewMemDevice(10240)
	disk := disks.Disk{UUID: 7, Device: device}
	partition := disks.PartitionDescriptor{UUID: 3, Start: 2048, Sectors: 8192}

	if err := Format(disk, partition, testGeometry); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	return disk, partition, silentDriver()
}

// setFileSize patches the size field of the named file's entry in the
// directory at path, so tests can put content behind entries created by
// Touch.
func setFileSize(t *testing.T, d *Driver, disk disks.Disk, partition disks.PartitionDescriptor, path []string, name string, size uint32) {
	t.Helper()

	if err := d.Mount(disk, partition); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}

	parent, err := d.findClusterNumber(disk, path)
	if err != nil {
		t.Fatalf("findClusterNumber() error = %v", err)
	}

	raw, err := d.readCluster(disk, parent)
	if err != nil {
		t.Fatalf("readCluster() error = %v", err)
	}

	entries, err := d.readDir(disk, parent)
	if err != nil {
		t.Fatalf("readDir() error = %v", err)
	}

	var location fatEntry
	found := false
	for i := range entries {
		if entries[i].DisplayName() == name {
			location = entries[i].FirstCluster()
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("setFileSize: %q not found", name)
	}

	for i := 0; i < d.entriesPerCluster(); i++ {
		if raw[i*entrySize] == entryEndOfDirectory {
			break
		}
		if raw[i*entrySize] == entryUnused {
			continue
		}

		entry := entryAt(raw, i)
		if entry.Attribute == attrLongName || entry.FirstCluster() != location {
			continue
		}

		entry.FileSize = size
		setEntryAt(raw, i, &entry)
		if err := d.writeCluster(disk, parent, raw); err != nil {
			t.Fatalf("writeCluster() error = %v", err)
		}
		return
	}

	t.Fatalf("setFileSize: entry for %q not found in parent cluster", name)
}

func TestLsEmptyVolume(t *testing.T) {
	disk, partition, driver := newTestVolume(t)

	records, err := driver.Ls(disk, partition, nil)
	if err != nil {
		t.Fatalf("Ls() error = %v", err)
	}

	if len(records) != 0 {
		t.Errorf("Ls() = %v, want an empty listing", records)
	}
}

func TestTouch(t *testing.T) {
	disk, partition, driver := newTestVolume(t)

	freeBefore, err := driver.FreeSize(disk, partition)
	if err != nil {
		t.Fatalf("FreeSize() error = %v", err)
	}

	if err := driver.Touch(disk, partition, nil, "hello.txt"); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	records, err := driver.Ls(disk, partition, nil)
	if err != nil {
		t.Fatalf("Ls() error = %v", err)
	}

	want := []FileRecord{{Name: "hello.txt", Size: 0, Location: 3}}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("Ls() = %v, want %v", records, want)
	}

	freeAfter, err := driver.FreeSize(disk, partition)
	if err != nil {
		t.Fatalf("FreeSize() error = %v", err)
	}
	if freeBefore-freeAfter != testClusterSize {
		t.Errorf("FreeSize() shrank by %d, want %d", freeBefore-freeAfter, testClusterSize)
	}

	// The new file has no content yet.
	content, err := driver.ReadFile(disk, partition, nil, "hello.txt")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(content) != 0 {
		t.Errorf("ReadFile() = %v, want no content", content)
	}
}

func TestMkdir(t *testing.T) {
	disk, partition, driver := newTestVolume(t)

	freeBefore, err := driver.FreeSize(disk, partition)
	if err != nil {
		t.Fatalf("FreeSize() error = %v", err)
	}

	if err := driver.Mkdir(disk, partition, nil, "docs"); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}

	records, err := driver.Ls(disk, partition, nil)
	if err != nil {
		t.Fatalf("Ls() error = %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("Ls() = %v, want exactly one record", records)
	}
	docs := records[0]
	if docs.Name != "docs" || !docs.Directory || docs.Size != testClusterSize {
		t.Errorf("Ls() = %+v, want directory \"docs\" of size %d", docs, testClusterSize)
	}

	inside, err := driver.Ls(disk, partition, []string{"docs"})
	if err != nil {
		t.Fatalf("Ls(docs) error = %v", err)
	}

	if len(inside) != 2 || inside[0].Name != "." || inside[1].Name != ".." {
		t.Fatalf("Ls(docs) = %v, want exactly \".\" and \"..\"", inside)
	}
	if inside[0].Location != docs.Location {
		t.Errorf("\".\" points at cluster %d, want %d", inside[0].Location, docs.Location)
	}
	if inside[1].Location != 2 {
		t.Errorf("\"..\" points at cluster %d, want the root cluster 2", inside[1].Location)
	}

	freeAfter, err := driver.FreeSize(disk, partition)
	if err != nil {
		t.Fatalf("FreeSize() error = %v", err)
	}
	if freeBefore-freeAfter != testClusterSize {
		t.Errorf("FreeSize() shrank by %d, want %d", freeBefore-freeAfter, testClusterSize)
	}
}

func TestTouchLongName(t *testing.T) {
	disk, partition, driver := newTestVolume(t)

	const name = "a-long-file-name-that-exceeds-eleven.txt"

	if err := driver.Mkdir(disk, partition, nil, "docs"); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	if err := driver.Touch(disk, partition, []string{"docs"}, name); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	records, err := driver.Ls(disk, partition, []string{"docs"})
	if err != nil {
		t.Fatalf("Ls() error = %v", err)
	}

	found := false
	for _, record := range records {
		if record.Name == name {
			found = true
		}
	}
	if !found {
		t.Errorf("Ls() = %v, want a record named %q", records, name)
	}
}

func TestReadFile(t *testing.T) {
	disk, partition, driver := newTestVolume(t)

	if err := driver.Touch(disk, partition, nil, "data.bin"); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	records, err := driver.Ls(disk, partition, nil)
	if err != nil || len(records) != 1 {
		t.Fatalf("Ls() = %v, %v", records, err)
	}
	first := fatEntry(records[0].Location)

	// Fill a chain of two clusters with 5000 bytes of content.
	content := bytes.Repeat([]byte("thor-os!"), 625)

	second, err := driver.findFreeCluster(disk)
	if err != nil {
		t.Fatalf("findFreeCluster() error = %v", err)
	}
	if err := driver.writeFATEntry(disk, first, second); err != nil {
		t.Fatalf("writeFATEntry() error = %v", err)
	}
	if err := driver.writeFATEntry(disk, second, entryEndOfChain); err != nil {
		t.Fatalf("writeFATEntry() error = %v", err)
	}

	chunk := make([]byte, testClusterSize)
	copy(chunk, content[:testClusterSize])
	if err := driver.writeCluster(disk, first, chunk); err != nil {
		t.Fatalf("writeCluster() error = %v", err)
	}
	chunk = make([]byte, testClusterSize)
	copy(chunk, content[testClusterSize:])
	if err := driver.writeCluster(disk, second, chunk); err != nil {
		t.Fatalf("writeCluster() error = %v", err)
	}

	setFileSize(t, driver, disk, partition, nil, "data.bin", uint32(len(content)))

	got, err := driver.ReadFile(disk, partition, nil, "data.bin")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("ReadFile() returned %d bytes, want %d matching bytes", len(got), len(content))
	}
}

func TestReadFileBadCluster(t *testing.T) {
	disk, partition, driver := newTestVolume(t)

	if err := driver.Touch(disk, partition, nil, "data.bin"); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	records, err := driver.Ls(disk, partition, nil)
	if err != nil || len(records) != 1 {
		t.Fatalf("Ls() = %v, %v", records, err)
	}
	first := fatEntry(records[0].Location)

	content := bytes.Repeat([]byte{0xAB}, testClusterSize)
	if err := driver.writeCluster(disk, first, content); err != nil {
		t.Fatalf("writeCluster() error = %v", err)
	}

	// The chain claims a second cluster but runs into the bad-cluster
	// sentinel: the read stops after the first cluster without an error.
	if err := driver.writeFATEntry(disk, first, entryBad); err != nil {
		t.Fatalf("writeFATEntry() error = %v", err)
	}
	setFileSize(t, driver, disk, partition, nil, "data.bin", 5000)

	got, err := driver.ReadFile(disk, partition, nil, "data.bin")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("ReadFile() returned %d bytes, want the %d bytes before the bad cluster", len(got), len(content))
	}
}

func TestReadFileNotFound(t *testing.T) {
	disk, partition, driver := newTestVolume(t)

	if _, err := driver.ReadFile(disk, partition, nil, "nope.txt"); err == nil {
		t.Error("ReadFile() error = nil, want ErrNotFound")
	}
}

func TestLsNested(t *testing.T) {
	disk, partition, driver := newTestVolume(t)

	if err := driver.Mkdir(disk, partition, nil, "a"); err != nil {
		t.Fatalf("Mkdir(a) error = %v", err)
	}
	if err := driver.Mkdir(disk, partition, []string{"a"}, "b"); err != nil {
		t.Fatalf("Mkdir(a/b) error = %v", err)
	}
	if err := driver.Touch(disk, partition, []string{"a", "b"}, "deep.txt"); err != nil {
		t.Fatalf("Touch(a/b/deep.txt) error = %v", err)
	}

	records, err := driver.Ls(disk, partition, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Ls(a/b) error = %v", err)
	}

	found := false
	for _, record := range records {
		if record.Name == "deep.txt" && !record.Directory {
			found = true
		}
	}
	if !found {
		t.Errorf("Ls(a/b) = %v, want \"deep.txt\"", records)
	}
}

func TestFreeSizeFreshVolume(t *testing.T) {
	disk, partition, driver := newTestVolume(t)

	free, err := driver.FreeSize(disk, partition)
	if err != nil {
		t.Fatalf("FreeSize() error = %v", err)
	}

	// (8192 - 32 - 1024) / 8 clusters, minus the root directory.
	want := uint64(891) * testClusterSize
	if free != want {
		t.Errorf("FreeSize() = %d, want %d", free, want)
	}
}

func TestCacheInvalidation(t *testing.T) {
	diskA, partitionA, driver := newTestVolume(t)

	// A second, smaller volume on another device.
	deviceB := disks.NewMemDevice(4096)
	diskB := disks.Disk{UUID: 8, Device: deviceB}
	partitionB := disks.PartitionDescriptor{UUID: 4, Start: 0, Sectors: 4096}
	opts := testGeometry
	opts.TotalSectors = 4096
	opts.SectorsPerFAT = 512
	if err := Format(diskB, partitionB, opts); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	freeA, err := driver.FreeSize(diskA, partitionA)
	if err != nil {
		t.Fatalf("FreeSize(A) error = %v", err)
	}

	freeB, err := driver.FreeSize(diskB, partitionB)
	if err != nil {
		t.Fatalf("FreeSize(B) error = %v", err)
	}

	if freeA == freeB {
		t.Errorf("FreeSize() = %d for both volumes, cache was not invalidated", freeA)
	}

	// Switching back must reload the first pair.
	freeA2, err := driver.FreeSize(diskA, partitionA)
	if err != nil {
		t.Fatalf("FreeSize(A) error = %v", err)
	}
	if freeA2 != freeA {
		t.Errorf("FreeSize(A) = %d after reload, want %d", freeA2, freeA)
	}
}

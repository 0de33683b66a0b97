package fat32

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"sort"
	"testing"

	"github.com/molecula451/thor-os/disks"
)

// newTestFs formats an in-memory volume and mounts it as an afero.Fs.
func newTestFs(t *testing.T) (*Fs, disks.Disk, disks.PartitionDescriptor) {
	t.Helper()

	disk, partition, driver := newTestVolume(t)

	fs, err := newFs(driver, disk, partition)
	if err != nil {
		t.Fatalf("newFs() error = %v", err)
	}

	return fs, disk, partition
}

func TestNewRejectsBadSignature(t *testing.T) {
	device := disks.NewMemDevice(8192)
	disk := disks.Disk{UUID: 1, Device: device}
	partition := disks.PartitionDescriptor{UUID: 1, Start: 0, Sectors: 8192}

	opts := testGeometry
	if err := Format(disk, partition, opts); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	// Break the boot sector trailer.
	raw := make([]byte, SectorSize)
	if err := disk.ReadSectors(0, 1, raw); err != nil {
		t.Fatalf("ReadSectors() error = %v", err)
	}
	binary.LittleEndian.PutUint16(raw[0x1FE:], 0x1234)
	if err := disk.WriteSectors(0, 1, raw); err != nil {
		t.Fatalf("WriteSectors() error = %v", err)
	}

	if _, err := New(disk, partition); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("New() error = %v, want ErrInvalidFormat", err)
	}

	// Skipping the checks accepts the same volume.
	if _, err := NewSkipChecks(disk, partition); err != nil {
		t.Errorf("NewSkipChecks() error = %v", err)
	}
}

func TestFsLabel(t *testing.T) {
	fs, _, _ := newTestFs(t)

	if got := fs.Label(); got != "THOR" {
		t.Errorf("Label() = %q, want \"THOR\"", got)
	}
}

func TestFsCreateAndOpen(t *testing.T) {
	fs, _, _ := newTestFs(t)

	file, err := fs.Create("notes.txt")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	stat, err := file.Stat()
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if stat.Name() != "notes.txt" || stat.Size() != 0 || stat.IsDir() {
		t.Errorf("Stat() = %q, %d, %v, want an empty file", stat.Name(), stat.Size(), stat.IsDir())
	}

	if err := file.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// A fresh handle finds it as well.
	if _, err := fs.Open("notes.txt"); err != nil {
		t.Errorf("Open() error = %v", err)
	}

	if _, err := fs.Open("missing.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(missing) error = %v, want ErrNotFound", err)
	}
}

func TestFsOpenFileCreates(t *testing.T) {
	fs, _, _ := newTestFs(t)

	if _, err := fs.OpenFile("made.txt", os.O_CREATE, 0); err != nil {
		t.Fatalf("OpenFile(O_CREATE) error = %v", err)
	}

	if _, err := fs.Open("made.txt"); err != nil {
		t.Errorf("Open() after OpenFile(O_CREATE) error = %v", err)
	}
}

func TestFsMkdirAll(t *testing.T) {
	fs, disk, partition := newTestFs(t)

	if err := fs.MkdirAll("usr/share/doc", 0); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	// Creating it again is a no-op.
	if err := fs.MkdirAll("usr/share/doc", 0); err != nil {
		t.Fatalf("MkdirAll() second run error = %v", err)
	}

	records, err := fs.driver.Ls(disk, partition, []string{"usr", "share"})
	if err != nil {
		t.Fatalf("Ls() error = %v", err)
	}

	found := false
	for _, record := range records {
		if record.Name == "doc" && record.Directory {
			found = true
		}
	}
	if !found {
		t.Errorf("Ls(usr/share) = %v, want \"doc\"", records)
	}
}

func TestFsReaddir(t *testing.T) {
	fs, _, _ := newTestFs(t)

	if err := fs.Mkdir("bin", 0); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	if _, err := fs.Create("kernel.img"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	root, err := fs.Open("/")
	if err != nil {
		t.Fatalf("Open(/) error = %v", err)
	}

	names, err := root.Readdirnames(-1)
	if err != nil {
		t.Fatalf("Readdirnames() error = %v", err)
	}

	sort.Strings(names)
	if len(names) != 2 || names[0] != "bin" || names[1] != "kernel.img" {
		t.Errorf("Readdirnames() = %v, want [bin kernel.img]", names)
	}

	// The subdirectory carries its dot entries.
	bin, err := fs.Open("bin")
	if err != nil {
		t.Fatalf("Open(bin) error = %v", err)
	}
	names, err = bin.Readdirnames(-1)
	if err != nil {
		t.Fatalf("Readdirnames(bin) error = %v", err)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "." || names[1] != ".." {
		t.Errorf("Readdirnames(bin) = %v, want [. ..]", names)
	}
}

func TestFsReadFileContent(t *testing.T) {
	fs, disk, partition := newTestFs(t)

	if _, err := fs.Create("motd"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	content := []byte("welcome to thor-os")

	records, err := fs.driver.Ls(disk, partition, nil)
	if err != nil || len(records) != 1 {
		t.Fatalf("Ls() = %v, %v", records, err)
	}

	raw := make([]byte, testClusterSize)
	copy(raw, content)
	if err := fs.driver.writeCluster(disk, fatEntry(records[0].Location), raw); err != nil {
		t.Fatalf("writeCluster() error = %v", err)
	}
	setFileSize(t, fs.driver, disk, partition, nil, "motd", uint32(len(content)))

	file, err := fs.Open("motd")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	got, err := io.ReadAll(file)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("ReadAll() = %q, want %q", got, content)
	}

	// Seeking back re-reads the tail.
	if _, err := file.Seek(11, io.SeekStart); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	got, err = io.ReadAll(file)
	if err != nil {
		t.Fatalf("ReadAll() after Seek error = %v", err)
	}
	if string(got) != "thor-os" {
		t.Errorf("ReadAll() after Seek = %q, want \"thor-os\"", got)
	}
}

func TestFsStatRoot(t *testing.T) {
	fs, _, _ := newTestFs(t)

	stat, err := fs.Stat("/")
	if err != nil {
		t.Fatalf("Stat(/) error = %v", err)
	}
	if !stat.IsDir() || stat.Name() != "/" {
		t.Errorf("Stat(/) = %q, IsDir %v", stat.Name(), stat.IsDir())
	}
}

func TestFsMutationsUnsupported(t *testing.T) {
	fs, _, _ := newTestFs(t)

	if err := fs.Remove("x"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Remove() error = %v, want ErrUnsupported", err)
	}
	if err := fs.Rename("x", "y"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Rename() error = %v, want ErrUnsupported", err)
	}
	if err := fs.Chmod("x", 0); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Chmod() error = %v, want ErrUnsupported", err)
	}
}

func TestGoFsOpen(t *testing.T) {
	fs, _, _ := newTestFs(t)
	goFs := &GoFs{*fs}

	if _, err := fs.Create("readme.md"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	file, err := goFs.Open("readme.md")
	if err != nil {
		t.Fatalf("GoFs.Open() error = %v", err)
	}

	info, err := file.Stat()
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Name() != "readme.md" {
		t.Errorf("Stat().Name() = %q, want \"readme.md\"", info.Name())
	}
}

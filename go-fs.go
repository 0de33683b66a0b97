package fat32

import (
	"errors"
	"io/fs"

	"github.com/molecula451/thor-os/disks"
)

// GoDirEntry adapts a FileInfo to fs.DirEntry.
type GoDirEntry struct {
	fs.FileInfo
}

func (g GoDirEntry) Type() fs.FileMode {
	return g.FileInfo.Mode().Type()
}

func (g GoDirEntry) Info() (fs.FileInfo, error) {
	return g.FileInfo, nil
}

// GoFile adapts a File to fs.File and fs.ReadDirFile.
type GoFile struct {
	*File
}

func (g GoFile) Stat() (fs.FileInfo, error) {
	return g.File.Stat()
}

func (g GoFile) Read(p []byte) (int, error) {
	return g.File.Read(p)
}

func (g GoFile) Close() error {
	return g.File.Close()
}

func (g GoFile) ReadDir(n int) ([]fs.DirEntry, error) {
	entries, err := g.File.Readdir(n)

	goEntries := make([]fs.DirEntry, len(entries))
	for i, e := range entries {
		goEntries[i] = GoDirEntry{e}
	}

	return goEntries, err
}

// GoFs wraps the afero FAT32 implementation to be compatible with fs.FS.
type GoFs struct {
	Fs
}

// NewGoFS mounts the FAT32 filesystem on the given partition as an fs.FS
// compatible filesystem.
func NewGoFS(disk disks.Disk, partition disks.PartitionDescriptor) (*GoFs, error) {
	fat, err := New(disk, partition)
	if err != nil {
		return nil, err
	}

	return &GoFs{*fat}, nil
}

// NewGoFSSkipChecks mounts the FAT32 filesystem just like NewGoFS but skips
// the signature validation. Use with caution!
func NewGoFSSkipChecks(disk disks.Disk, partition disks.PartitionDescriptor) (*GoFs, error) {
	fat, err := NewSkipChecks(disk, partition)
	if err != nil {
		return nil, err
	}

	return &GoFs{*fat}, nil
}

func (g *GoFs) Open(name string) (fs.File, error) {
	file, err := g.Fs.Open(name)
	if err != nil {
		return nil, err
	}

	f, ok := file.(*File)
	if !ok {
		return nil, errors.New("invalid File implementation")
	}

	return GoFile{f}, nil
}

package fat32

import (
	"errors"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/molecula451/thor-os/checkpoint"
	"github.com/molecula451/thor-os/disks"
)

// ErrUnsupported is returned for mutating operations the driver does not
// implement, like removing or renaming entries.
var ErrUnsupported = errors.New("operation not supported by the FAT32 driver")

// Fs exposes one mounted (disk, partition) pair as an afero.Fs. Paths are
// slash-separated; the empty path and "/" denote the root directory.
//
// Only reading, Mkdir, MkdirAll and Create (also through OpenFile with
// os.O_CREATE) are supported; Remove, RemoveAll, Rename, Chmod, Chown and
// Chtimes fail with ErrUnsupported.
type Fs struct {
	driver    *Driver
	disk      disks.Disk
	partition disks.PartitionDescriptor
}

// make sure Fs really is an afero.Fs.
var _ afero.Fs = (*Fs)(nil)

// New mounts the FAT32 filesystem on the given partition.
func New(disk disks.Disk, partition disks.PartitionDescriptor) (*Fs, error) {
	return newFs(NewDriver(), disk, partition)
}

// NewSkipChecks mounts the FAT32 filesystem on the given partition just like
// New but skips the signature validation, which may allow opening not
// perfectly standard volumes. Use with caution!
func NewSkipChecks(disk disks.Disk, partition disks.PartitionDescriptor) (*Fs, error) {
	return newFs(NewDriverSkipChecks(), disk, partition)
}

func newFs(driver *Driver, disk disks.Disk, partition disks.PartitionDescriptor) (*Fs, error) {
	fs := &Fs{
		driver:    driver,
		disk:      disk,
		partition: partition,
	}

	if err := driver.Mount(disk, partition); err != nil {
		return nil, err
	}

	return fs, nil
}

// Label returns the volume label from the boot sector.
func (fs *Fs) Label() string {
	fs.driver.mu.Lock()
	defer fs.driver.mu.Unlock()

	return strings.TrimRight(string(fs.driver.bootSector.VolumeLabel[:]), " ")
}

func (fs *Fs) Name() string {
	return "FAT32"
}

// splitPath turns a slash-separated path into its segments. Empty segments
// are dropped, so "/", "" and "//" all denote the root.
func splitPath(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool { return r == '/' })
}

// lookup resolves the named entry inside the directory at path.
func (fs *Fs) lookup(path []string, name string) (ExtendedEntryHeader, error) {
	d := fs.driver
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.cacheDiskPartition(fs.disk, fs.partition); err != nil {
		return ExtendedEntryHeader{}, err
	}

	cluster, err := d.findClusterNumber(fs.disk, path)
	if err != nil {
		return ExtendedEntryHeader{}, err
	}

	entries, err := d.readDir(fs.disk, cluster)
	if err != nil {
		return ExtendedEntryHeader{}, err
	}

	for i := range entries {
		if entries[i].DisplayName() == name {
			return entries[i], nil
		}
	}

	return ExtendedEntryHeader{}, checkpoint.From(ErrNotFound)
}

// Open opens the named file or directory for reading.
func (fs *Fs) Open(name string) (afero.File, error) {
	segments := splitPath(name)

	if len(segments) == 0 {
		return &File{
			fs:          fs,
			path:        "",
			isDirectory: true,
			stat:        rootFileInfo{clusterSize: fs.clusterSize()},
		}, nil
	}

	entry, err := fs.lookup(segments[:len(segments)-1], segments[len(segments)-1])
	if err != nil {
		return nil, err
	}

	return &File{
		fs:           fs,
		path:         strings.Join(segments, "/"),
		isDirectory:  entry.IsDir(),
		isReadOnly:   entry.Attribute&attrReadOnly != 0,
		isHidden:     entry.Attribute&attrHidden != 0,
		isSystem:     entry.Attribute&attrSystem != 0,
		firstCluster: entry.FirstCluster(),
		stat:         entry.FileInfo(fs.clusterSize()),
	}, nil
}

// OpenFile opens the named file. The only write-related flag honored is
// os.O_CREATE, which creates a missing file as empty; the returned handle
// itself is always read-only.
func (fs *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	file, err := fs.Open(name)
	if err == nil {
		return file, nil
	}

	if flag&os.O_CREATE == 0 || !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	return fs.Create(name)
}

// Create creates the named file as a new empty file and opens it.
func (fs *Fs) Create(name string) (afero.File, error) {
	segments := splitPath(name)
	if len(segments) == 0 {
		return nil, checkpoint.From(ErrEmptyName)
	}

	err := fs.driver.Touch(fs.disk, fs.partition, segments[:len(segments)-1], segments[len(segments)-1])
	if err != nil {
		return nil, err
	}

	return fs.Open(name)
}

// Mkdir creates the named directory. The permission bits are ignored; FAT
// has no notion of them.
func (fs *Fs) Mkdir(name string, perm os.FileMode) error {
	segments := splitPath(name)
	if len(segments) == 0 {
		return checkpoint.From(ErrEmptyName)
	}

	return fs.driver.Mkdir(fs.disk, fs.partition, segments[:len(segments)-1], segments[len(segments)-1])
}

// MkdirAll creates the named directory together with any missing parents.
func (fs *Fs) MkdirAll(path string, perm os.FileMode) error {
	segments := splitPath(path)

	for i := range segments {
		entry, err := fs.lookup(segments[:i], segments[i])
		if err == nil {
			if !entry.IsDir() {
				return checkpoint.Wrap(syscall.ENOTDIR, ErrNotDirectory)
			}
			continue
		}

		if !errors.Is(err, ErrNotFound) {
			return err
		}

		if err := fs.driver.Mkdir(fs.disk, fs.partition, segments[:i], segments[i]); err != nil {
			return err
		}
	}

	return nil
}

// Stat returns the FileInfo of the named file or directory.
func (fs *Fs) Stat(name string) (os.FileInfo, error) {
	segments := splitPath(name)

	if len(segments) == 0 {
		return rootFileInfo{clusterSize: fs.clusterSize()}, nil
	}

	entry, err := fs.lookup(segments[:len(segments)-1], segments[len(segments)-1])
	if err != nil {
		return nil, err
	}

	return entry.FileInfo(fs.clusterSize()), nil
}

func (fs *Fs) Remove(name string) error {
	return checkpoint.Wrap(syscall.EPERM, ErrUnsupported)
}

func (fs *Fs) RemoveAll(path string) error {
	return checkpoint.Wrap(syscall.EPERM, ErrUnsupported)
}

func (fs *Fs) Rename(oldname, newname string) error {
	return checkpoint.Wrap(syscall.EPERM, ErrUnsupported)
}

func (fs *Fs) Chmod(name string, mode os.FileMode) error {
	return checkpoint.Wrap(syscall.EPERM, ErrUnsupported)
}

func (fs *Fs) Chown(name string, uid, gid int) error {
	return checkpoint.Wrap(syscall.EPERM, ErrUnsupported)
}

func (fs *Fs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return checkpoint.Wrap(syscall.EPERM, ErrUnsupported)
}

// readRoot lists the root directory. Part of the fatFileFs seam used by File.
func (fs *Fs) readRoot() ([]ExtendedEntryHeader, error) {
	d := fs.driver
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.cacheDiskPartition(fs.disk, fs.partition); err != nil {
		return nil, err
	}

	return d.readDir(fs.disk, fatEntry(d.bootSector.RootCluster))
}

// readDir lists the directory at the given cluster. Part of the fatFileFs
// seam used by File.
func (fs *Fs) readDir(cluster fatEntry) ([]ExtendedEntryHeader, error) {
	d := fs.driver
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.cacheDiskPartition(fs.disk, fs.partition); err != nil {
		return nil, err
	}

	return d.readDir(fs.disk, cluster)
}

// clusterSize returns the cluster size of the mounted volume in bytes. Part
// of the fatFileFs seam used by File.
func (fs *Fs) clusterSize() uint32 {
	d := fs.driver
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bootSector == nil {
		return 0
	}

	return d.clusterSize()
}

// readFileAt reads up to readSize bytes at offset from the cluster chain
// starting at cluster. A chain that ends before fileSize does yields the
// bytes collected so far. Part of the fatFileFs seam used by File.
func (fs *Fs) readFileAt(cluster fatEntry, fileSize int64, offset int64, readSize int64) ([]byte, error) {
	d := fs.driver
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.cacheDiskPartition(fs.disk, fs.partition); err != nil {
		return nil, err
	}

	if offset >= fileSize {
		return nil, nil
	}
	if readSize > fileSize-offset {
		readSize = fileSize - offset
	}

	clusterSize := int64(d.clusterSize())

	// Skip whole clusters in front of the offset. A chain that ends before
	// the offset reads as end of file.
	var err error
	for offset >= clusterSize {
		cluster, err = d.nextCluster(fs.disk, cluster)
		if err != nil {
			return nil, err
		}
		if cluster == 0 || cluster.isBad() {
			return nil, io.EOF
		}
		offset -= clusterSize
	}

	content := make([]byte, 0, readSize)

	for int64(len(content)) < readSize {
		raw, err := d.readCluster(fs.disk, cluster)
		if err != nil {
			return content, err
		}

		chunk := raw[offset:]
		offset = 0

		remaining := readSize - int64(len(content))
		if remaining < int64(len(chunk)) {
			chunk = chunk[:remaining]
		}
		content = append(content, chunk...)

		if int64(len(content)) < readSize {
			cluster, err = d.nextCluster(fs.disk, cluster)
			if err != nil {
				return content, err
			}
			if cluster == 0 || cluster.isBad() {
				break
			}
		}
	}

	return content, nil
}

// rootFileInfo is the synthetic FileInfo of the root directory, which has no
// directory entry of its own.
type rootFileInfo struct {
	clusterSize uint32
}

func (r rootFileInfo) Name() string       { return "/" }
func (r rootFileInfo) Size() int64        { return int64(r.clusterSize) }
func (r rootFileInfo) Mode() os.FileMode  { return os.ModeDir }
func (r rootFileInfo) ModTime() time.Time { return time.Time{} }
func (r rootFileInfo) IsDir() bool        { return true }
func (r rootFileInfo) Sys() interface{}   { return nil }

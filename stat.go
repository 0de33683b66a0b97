package fat32

import (
	"os"
	"time"
)

// FileInfo adapts the entry to os.FileInfo. Directories report the size of
// one cluster of the owning volume, which is why the cluster size has to be
// passed in.
func (e *ExtendedEntryHeader) FileInfo(clusterSize uint32) os.FileInfo {
	return entryHeaderFileInfo{entry: *e, clusterSize: clusterSize}
}

type entryHeaderFileInfo struct {
	entry       ExtendedEntryHeader
	clusterSize uint32
}

func (e entryHeaderFileInfo) Name() string {
	return e.entry.DisplayName()
}

func (e entryHeaderFileInfo) Size() int64 {
	if e.IsDir() {
		return int64(e.clusterSize)
	}
	return int64(e.entry.FileSize)
}

func (e entryHeaderFileInfo) Mode() os.FileMode {
	if e.IsDir() {
		return os.ModeDir
	}
	return 0
}

func (e entryHeaderFileInfo) ModTime() time.Time {
	writeDate := ParseDate(e.entry.WriteDate)
	writeTime := ParseTime(e.entry.WriteTime)

	// If the date IsZero() it contained an invalid value, which includes the
	// all-zero stamps this driver writes. writeTime cannot be checked that
	// way because midnight is perfectly valid.
	if writeDate.IsZero() {
		return time.Time{}
	}

	return time.Date(writeDate.Year(), writeDate.Month(), writeDate.Day(), writeTime.Hour(), writeTime.Minute(), writeTime.Second(), 0, time.UTC)
}

func (e entryHeaderFileInfo) IsDir() bool {
	return e.entry.IsDir()
}

func (e entryHeaderFileInfo) Sys() interface{} {
	return e.entry
}

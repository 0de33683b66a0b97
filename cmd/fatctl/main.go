// fatctl inspects and modifies FAT32 volume images using the thor-os FAT32
// driver.
package main

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	fat32 "github.com/molecula451/thor-os"
	"github.com/molecula451/thor-os/disks"
)

var (
	partitionStart uint64
	verbose        bool
)

func main() {
	root := &cobra.Command{
		Use:   "fatctl",
		Short: "Inspect and modify FAT32 volume images",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}

	root.PersistentFlags().Uint64Var(&partitionStart, "start", 0, "LBA of the partition inside the image")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(mkfsCmd(), freeCmd(), lsCmd(), catCmd(), mkdirCmd(), touchCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

// openImage opens the image file and wraps it as a disk with a single
// partition descriptor starting at the --start LBA.
func openImage(path string, writable bool) (disks.Disk, disks.PartitionDescriptor, func(), error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}

	file, err := afero.NewOsFs().OpenFile(path, flag, 0)
	if err != nil {
		return disks.Disk{}, disks.PartitionDescriptor{}, nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return disks.Disk{}, disks.PartitionDescriptor{}, nil, err
	}

	disk := disks.Disk{UUID: 1, Device: disks.NewFileDevice(file)}
	partition := disks.PartitionDescriptor{
		UUID:    1,
		Start:   partitionStart,
		Sectors: uint64(info.Size())/disks.SectorSize - partitionStart,
	}

	return disk, partition, func() { file.Close() }, nil
}

func mkfsCmd() *cobra.Command {
	var (
		sectorsPerCluster uint8
		reservedSectors   uint16
		numberOfFATs      uint8
		sectorsPerFAT     uint32
		label             string
	)

	cmd := &cobra.Command{
		Use:   "mkfs <image>",
		Short: "Create an empty FAT32 filesystem inside an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			disk, partition, done, err := openImage(args[0], true)
			if err != nil {
				return err
			}
			defer done()

			opts := fat32.DefaultFormatOptions(uint32(partition.Sectors))
			if sectorsPerCluster != 0 {
				opts.SectorsPerCluster = sectorsPerCluster
			}
			if reservedSectors != 0 {
				opts.ReservedSectors = reservedSectors
			}
			if numberOfFATs != 0 {
				opts.NumberOfFATs = numberOfFATs
			}
			if sectorsPerFAT != 0 {
				opts.SectorsPerFAT = sectorsPerFAT
			}
			opts.Label = label

			if err := fat32.Format(disk, partition, opts); err != nil {
				return err
			}

			log.WithField("sectors", partition.Sectors).Info("formatted FAT32 volume")
			return nil
		},
	}

	cmd.Flags().Uint8Var(&sectorsPerCluster, "cluster", 0, "sectors per cluster (default 8)")
	cmd.Flags().Uint16Var(&reservedSectors, "reserved", 0, "reserved sectors (default 32)")
	cmd.Flags().Uint8Var(&numberOfFATs, "fats", 0, "number of FAT copies (default 1)")
	cmd.Flags().Uint32Var(&sectorsPerFAT, "fat-size", 0, "sectors per FAT (default sized to the partition for 8 sectors per cluster)")
	cmd.Flags().StringVar(&label, "label", "", "volume label")

	return cmd
}

func freeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "free <image>",
		Short: "Print the free space of the volume in bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			disk, partition, done, err := openImage(args[0], false)
			if err != nil {
				return err
			}
			defer done()

			free, err := fat32.NewDriver().FreeSize(disk, partition)
			if err != nil {
				return err
			}

			fmt.Println(free)
			return nil
		},
	}
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <image> [path]",
		Short: "List a directory of the volume",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			disk, partition, done, err := openImage(args[0], false)
			if err != nil {
				return err
			}
			defer done()

			path := ""
			if len(args) > 1 {
				path = args[1]
			}

			records, err := fat32.NewDriver().Ls(disk, partition, splitPath(path))
			if err != nil {
				return err
			}

			for _, record := range records {
				kind := "-"
				if record.Directory {
					kind = "d"
				}
				fmt.Printf("%s %10d %d %s\n", kind, record.Size, record.Location, record.Name)
			}
			return nil
		},
	}
}

func catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <image> <path>",
		Short: "Print the content of a file of the volume",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			disk, partition, done, err := openImage(args[0], false)
			if err != nil {
				return err
			}
			defer done()

			segments := splitPath(args[1])
			if len(segments) == 0 {
				return fmt.Errorf("%q is not a file path", args[1])
			}

			content, err := fat32.NewDriver().ReadFile(disk, partition, segments[:len(segments)-1], segments[len(segments)-1])
			if err != nil {
				return err
			}

			_, err = os.Stdout.Write(content)
			return err
		},
	}
}

func mkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <image> <path>",
		Short: "Create a directory on the volume",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			disk, partition, done, err := openImage(args[0], true)
			if err != nil {
				return err
			}
			defer done()

			segments := splitPath(args[1])
			if len(segments) == 0 {
				return fmt.Errorf("%q is not a directory path", args[1])
			}

			return fat32.NewDriver().Mkdir(disk, partition, segments[:len(segments)-1], segments[len(segments)-1])
		},
	}
}

func touchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "touch <image> <path>",
		Short: "Create an empty file on the volume",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			disk, partition, done, err := openImage(args[0], true)
			if err != nil {
				return err
			}
			defer done()

			segments := splitPath(args[1])
			if len(segments) == 0 {
				return fmt.Errorf("%q is not a file path", args[1])
			}

			return fat32.NewDriver().Touch(disk, partition, segments[:len(segments)-1], segments[len(segments)-1])
		},
	}
}

func splitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
}

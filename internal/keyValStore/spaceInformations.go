package keyValStore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

// calculateDirectorySize calculates the total size of files within a directory
func calculateDirectorySize(path string) (size int64, err error) {
	err = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return
}

// displayDiskUsage displays the disk usage information using structured logging
func displayDiskUsage(paths []string) error {
	for _, path := range paths {
		usage, err := disk.Usage(path)
		if err != nil {
			log.WithFields(logrus.Fields{
				"path": path,
			}).Errorf("Error retrieving disk usage stats: %v", err)
			return err
		}

		pathSize, err := calculateDirectorySize(path)
		if err != nil {
			log.WithFields(logrus.Fields{
				"path": path,
			}).Errorf("Error calculating directory size: %v", err)
			return err
		}

		log.WithFields(logrus.Fields{
			"Path":        path,
			"Filesystem":  usage.Fstype,
			"Total":       humanize.Bytes(usage.Total),
			"Used":        humanize.Bytes(usage.Used),
			"Free":        humanize.Bytes(usage.Free),
			"Used (%)":    fmt.Sprintf("%.2f", usage.UsedPercent),
			"Usage by DB": humanize.Bytes(uint64(pathSize)),
		}).Info("Disk Usage")
	}

	return nil
}

// Size returns the bytes the store occupies on disk. In-memory stores
// report zero.
func (k *KeyValStore) Size() (uint64, error) {
	if k.config.InMemory || len(k.config.Paths) == 0 {
		return 0, nil
	}
	size, err := calculateDirectorySize(k.config.Paths[0])
	if err != nil {
		return 0, err
	}
	return uint64(size), nil
}

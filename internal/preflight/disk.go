package preflight

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/karolberezicki/content-search-lucene/internal/storage"
)

// MinDiskSpaceBytes is the free space below which the data directory check fails.
const MinDiskSpaceBytes = 100 * 1024 * 1024

// CheckDiskSpace reports the free space of the volume holding dataDir
// against the size of the indexes stored there. Free space below the index
// size warns; below MinDiskSpaceBytes it fails.
func (c *Checker) CheckDiskSpace(dataDir string) CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(dataDir, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot stat storage.data_dir %s: %v", dataDir, err)
		return result
	}
	available := stat.Bavail * uint64(stat.Bsize)

	used, count, err := indexUsage(storage.IndexesIn(dataDir))
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s free in %s, index size unknown: %v", formatBytes(available), dataDir, err)
		return result
	}

	result.Message = fmt.Sprintf("%s free in %s, %d indexes use %s",
		formatBytes(available), dataDir, count, formatBytes(used))
	switch {
	case available < MinDiskSpaceBytes:
		result.Status = StatusFail
		result.Message += fmt.Sprintf(" (minimum: %s)", formatBytes(MinDiskSpaceBytes))
	case available < used:
		result.Status = StatusWarn
		result.Message += ", not enough room to rebuild them"
	default:
		result.Status = StatusPass
	}
	return result
}

// indexUsage sums the file sizes under dir and counts its index directories.
// A missing dir holds no indexes.
func indexUsage(dir string) (uint64, int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}

	var total uint64
	count := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		count++
		err := filepath.WalkDir(filepath.Join(dir, e.Name()), func(_ string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += uint64(info.Size())
			return nil
		})
		if err != nil {
			return 0, 0, err
		}
	}
	return total, count, nil
}

func formatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

package storage

import (
	"syscall"

	"github.com/abshelf/abs-offline/internal/logutils"
)

// HasEnoughSpace reports whether the filesystem holding path has at least
// requiredSpace bytes available. Errors degrade to false.
func HasEnoughSpace(path string, requiredSpace int64) bool {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		logutils.Log.WithError(err).Error("Failed to get filesystem stats")
		return false
	}
	availableSpace := stat.Bavail * uint64(stat.Bsize)

	logutils.Log.WithFields(map[string]any{
		"required_space":  requiredSpace,
		"available_space": availableSpace,
	}).Debug("Checking available disk space")

	return availableSpace >= uint64(requiredSpace)
}

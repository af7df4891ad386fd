//go:build linux || darwin || freebsd

package app

import "golang.org/x/sys/unix"

func freeSpaceMB(dir string) (uint64, bool) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0, false
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize) / (1024 * 1024), true
}

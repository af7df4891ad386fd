//go:build !linux && !darwin && !freebsd

package app

func freeSpaceMB(string) (uint64, bool) {
	return 0, false
}

//go:build !linux

package device

func totalMemory() (uint64, bool) {
	return 0, false
}

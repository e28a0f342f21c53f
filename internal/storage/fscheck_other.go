//go:build !darwin && !linux

package storage

// filesystemType reports "unknown" where statfs is unavailable; the check
// then passes.
func filesystemType(string) (string, error) {
	return "unknown", nil
}

//go:build !unix

package staging

import "os"

// Without flock the root is not guarded; run one collector per root.
func lockRoot(*os.File) error {
	return nil
}

func unlockRoot(*os.File) error {
	return nil
}

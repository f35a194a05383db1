//go:build unix

package staging

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func lockRoot(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return ErrRootInUse
	}
	return err
}

func unlockRoot(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

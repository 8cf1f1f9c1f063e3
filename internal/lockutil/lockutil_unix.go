//go:build unix

package lockutil

import (
	"os"

	"golang.org/x/sys/unix"
)

// probeHeldByOther reports whether path is genuinely flock-held by some
// other process right now, by attempting a raw non-blocking exclusive flock
// on a fresh file descriptor. Used to annotate a LockTimeout with whether the
// contention is real rather than an artifact of gofrs/flock's own bookkeeping,
// mirroring the sibling pack repo's lockfile_unix.go non-blocking probe.
func probeHeldByOther(path string) bool {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		return true
	}
	if err == nil {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	}
	return false
}

//go:build !unix

package lockutil

// probeHeldByOther is a no-op on non-unix platforms; gofrs/flock's own
// timeout handling is the only signal available there.
func probeHeldByOther(path string) bool { return false }

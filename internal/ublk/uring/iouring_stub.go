//go:build !giouring

package uring

// newLibraryRing reports that the iouring-go implementation is not
// compiled in; build with -tags giouring to use it.
func newLibraryRing(Config) (Ring, bool, error) {
	return nil, false, nil
}

//go:build unix

package platform

import (
	"errors"
	"os"
	"syscall"
)

// ErrSymlink is returned when the opened path is a symbolic link.
var ErrSymlink = errors.New("sqpack: symbolic links not supported")

// OpenRegular opens a regular file below root without following symlinks
// and returns it with its size.
func OpenRegular(root *os.Root, name string) (*os.File, int64, error) {
	f, err := root.OpenFile(name, os.O_RDONLY|syscall.O_NOFOLLOW, 0)
	if err != nil {
		if errors.Is(err, syscall.ELOOP) {
			return nil, 0, ErrSymlink
		}
		return nil, 0, err
	}
	return checkRegular(f)
}

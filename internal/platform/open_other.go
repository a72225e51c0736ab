//go:build !unix

package platform

import (
	"errors"
	"io/fs"
	"os"
)

// ErrSymlink is returned when the opened path is a symbolic link.
var ErrSymlink = errors.New("sqpack: symbolic links not supported")

// OpenRegular opens a regular file below root without following symlinks
// and returns it with its size.
func OpenRegular(root *os.Root, name string) (*os.File, int64, error) {
	info, err := root.Lstat(name)
	if err != nil {
		return nil, 0, err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return nil, 0, ErrSymlink
	}
	f, err := root.Open(name)
	if err != nil {
		return nil, 0, err
	}
	return checkRegular(f)
}

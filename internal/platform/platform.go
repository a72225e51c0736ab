// Package platform wraps the OS-specific parts of reading source trees.
package platform

import (
	"fmt"
	"os"
)

func checkRegular(f *os.File) (*os.File, int64, error) {
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, fmt.Errorf("not a regular file: %s", f.Name())
	}
	return f, info.Size(), nil
}

//go:build !windows

package export

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/qmmcmx/problemtrack/internal/errors"
)

// openNoFollow opens path for writing without following a symlink in the
// final component.
func openNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	fd, err := syscall.Open(path, flag|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, uint32(perm))
	if err != nil {
		if stderrors.Is(err, syscall.ELOOP) {
			return nil, errors.NewInvalidRequest("cannot write to symlink")
		}
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}

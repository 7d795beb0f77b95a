//go:build !darwin && !linux

package journal

import "errors"

func detectFilesystemType(string) (string, error) {
	return "", errors.ErrUnsupported
}

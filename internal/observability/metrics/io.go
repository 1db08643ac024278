package metrics

import (
	"errors"
	"io/fs"
)

func isIOError(err error) bool {
	var pathErr *fs.PathError
	return errors.As(err, &pathErr)
}

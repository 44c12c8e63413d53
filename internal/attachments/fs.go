package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// FSStore reads attachments from a local directory tree laid out as
// <root>/<study>/<user>/<taskID>/<file>.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem attachment store rooted at dir
func NewFSStore(dir string) *FSStore {
	return &FSStore{root: dir}
}

// OpenReadStream opens the named attachment. Keys and the file name are
// reduced to their base name; empty, "." and ".." elements are rejected so a
// key can never escape the root.
func (s *FSStore) OpenReadStream(ctx context.Context, studyKey, userKey string, taskID int, fileName string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	elems := make([]string, 0, 3)
	for _, raw := range []string{studyKey, userKey, fileName} {
		elem, err := pathElement(raw)
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}

	path := filepath.Join(s.root, elems[0], elems[1], strconv.Itoa(taskID), elems[2])

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", objectPath(studyKey, userKey, taskID, fileName), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open attachment: %w", err)
	}
	return f, nil
}

func pathElement(raw string) (string, error) {
	elem := filepath.Base(raw)
	switch elem {
	case ".", "..", string(filepath.Separator):
		return "", fmt.Errorf("%q: %w", raw, ErrInvalidPath)
	}
	return elem, nil
}

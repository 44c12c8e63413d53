package attachments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// DefaultMaxBytes bounds a single attachment read.
const DefaultMaxBytes int64 = 16 << 20

var (
	// ErrNotFound is returned when the named attachment does not exist
	ErrNotFound = errors.New("attachment not found")
	// ErrTooLarge is returned when an attachment exceeds the read bound
	ErrTooLarge = errors.New("attachment exceeds size limit")
	// ErrInvalidEncoding is returned when an attachment is not valid UTF-8
	ErrInvalidEncoding = errors.New("attachment is not valid UTF-8")
	// ErrInvalidPath is returned when a key or file name is not a single path element
	ErrInvalidPath = errors.New("invalid attachment path element")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Store opens attachment byte streams belonging to a task result
type Store interface {
	OpenReadStream(ctx context.Context, studyKey, userKey string, taskID int, fileName string) (io.ReadCloser, error)
}

// ReadAll reads one attachment to completion, strips a leading UTF-8 byte
// order mark and checks the remaining bytes are valid UTF-8.
func ReadAll(ctx context.Context, store Store, studyKey, userKey string, taskID int, fileName string, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	rc, err := store.OpenReadStream(ctx, studyKey, userKey, taskID, fileName)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment %s: %w", fileName, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%s: %w (%d bytes)", fileName, ErrTooLarge, maxBytes)
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s: %w", fileName, ErrInvalidEncoding)
	}

	return data, nil
}

// objectPath is the layout shared by every backend: study/user/taskID/name.
func objectPath(studyKey, userKey string, taskID int, fileName string) string {
	return fmt.Sprintf("%s/%s/%d/%s", studyKey, userKey, taskID, fileName)
}

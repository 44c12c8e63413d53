package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore reads attachments from a Google Cloud Storage bucket. Object
// names follow <prefix><study>/<user>/<taskID>/<file>.
type GCSStore struct {
	Client *storage.Client
	Bucket string
	Prefix string
}

// NewGCSStore creates a GCS-backed attachment store
func NewGCSStore(client *storage.Client, bucket, prefix string) *GCSStore {
	return &GCSStore{Client: client, Bucket: bucket, Prefix: prefix}
}

func (s *GCSStore) OpenReadStream(ctx context.Context, studyKey, userKey string, taskID int, fileName string) (io.ReadCloser, error) {
	name := s.Prefix + objectPath(studyKey, userKey, taskID, fileName)

	rc, err := s.Client.Bucket(s.Bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("gs://%s/%s: %w", s.Bucket, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", s.Bucket, name, err)
	}
	return rc, nil
}

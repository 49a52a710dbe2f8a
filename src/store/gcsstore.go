package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"k8s.io/klog/v2"
)

// GCSStore serves model descriptions from a Google Cloud Storage bucket,
// keyed <id>.json.
type GCSStore struct {
	Bucket string
}

var _ ModelReader = (*GCSStore)(nil)

func (g *GCSStore) Fetch(ctx context.Context, id string) ([]byte, error) {
	log := klog.FromContext(ctx)

	objectKey := id + ".json"
	gcsURL := "gs://" + g.Bucket + "/" + objectKey

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS storage client: %w", err)
	}
	defer client.Close()

	log.Info("downloading model description from GCS", "source", gcsURL)

	startedAt := time.Now()
	r, err := client.Bucket(g.Bucket).Object(objectKey).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("model description %q: %w", gcsURL, os.ErrNotExist)
		}
		return nil, fmt.Errorf("opening object from GCS %q: %w", gcsURL, err)
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("downloading from GCS %q: %w", gcsURL, err)
	}

	log.Info("downloaded model description from GCS", "source", gcsURL, "bytes", len(raw), "duration", time.Since(startedAt))
	return raw, nil
}

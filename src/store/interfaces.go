package store

import (
	"context"
	"fmt"

	"npusim/src/model"
)

// ModelReader fetches the raw JSON description of a model by identifier.
// This is the bulk storage tier behind the staged flash transfers: the
// simulated device only ever sees descriptions the reader produced.
type ModelReader interface {
	// If no such model exists, Fetch returns an error for which
	// errors.Is(err, os.ErrNotExist) is true.
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// LoadDesc fetches and parses one model description.
func LoadDesc(ctx context.Context, reader ModelReader, id string) (*model.Desc, error) {
	raw, err := reader.Fetch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching model %q: %w", id, err)
	}
	desc, err := model.ParseDesc(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing model %q: %w", id, err)
	}
	return desc, nil
}

// NewReader builds a ModelReader for the configured backend kind.
func NewReader(kind, path, bucket string) (ModelReader, error) {
	switch kind {
	case "local":
		return &LocalStore{Dir: path}, nil
	case "gcs":
		if bucket == "" {
			return nil, fmt.Errorf("gcs model store requires a bucket")
		}
		return &GCSStore{Bucket: bucket}, nil
	default:
		return nil, fmt.Errorf("unknown model store kind %q", kind)
	}
}

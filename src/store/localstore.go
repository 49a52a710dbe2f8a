package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"
)

// LocalStore serves model descriptions from a directory of <id>.json files.
type LocalStore struct {
	Dir string
}

var _ ModelReader = (*LocalStore)(nil)

func (l *LocalStore) Fetch(ctx context.Context, id string) ([]byte, error) {
	log := klog.FromContext(ctx)

	path := filepath.Join(l.Dir, id+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model description %q: %w", path, err)
	}

	log.V(2).Info("read model description", "path", path, "bytes", len(raw))
	return raw, nil
}

// Put writes a model description into the store directory. It is used by
// tooling and tests to seed a store.
func (l *LocalStore) Put(ctx context.Context, id string, raw []byte) error {
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return fmt.Errorf("creating store directory %q: %w", l.Dir, err)
	}
	path := filepath.Join(l.Dir, id+".json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing model description %q: %w", path, err)
	}
	return nil
}

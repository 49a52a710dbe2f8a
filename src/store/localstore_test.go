package store

import (
	"context"
	"errors"
	"os"
	"testing"
)

const sampleDesc = `{
  "model": "tiny",
  "layers": [
    {
      "op_kind": "matmul",
      "input_shape": {"rows": 2, "cols": 4},
      "output_shape": {"rows": 2, "cols": 4},
      "weight_rows": 4,
      "weight_cols": 4,
      "weights": [1,0,0,0, 0,1,0,0, 0,0,1,0, 0,0,0,1],
      "quant_scale": 1.0
    }
  ]
}`

func TestLocalStoreRoundTrip(t *testing.T) {
	t.Parallel()

	local := &LocalStore{Dir: t.TempDir()}
	ctx := context.Background()

	if err := local.Put(ctx, "tiny", []byte(sampleDesc)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	desc, err := LoadDesc(ctx, local, "tiny")
	if err != nil {
		t.Fatalf("LoadDesc failed: %v", err)
	}
	if desc.Identifier() != "tiny" {
		t.Fatalf("unexpected identifier %q", desc.Identifier())
	}
	if len(desc.Layers) != 1 || desc.Layers[0].Kind != "matmul" {
		t.Fatalf("unexpected layers: %+v", desc.Layers)
	}
}

func TestLocalStoreMissingModel(t *testing.T) {
	t.Parallel()

	local := &LocalStore{Dir: t.TempDir()}
	_, err := local.Fetch(context.Background(), "absent")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestNewReaderValidatesKind(t *testing.T) {
	t.Parallel()

	if _, err := NewReader("gcs", "", ""); err == nil {
		t.Fatalf("gcs reader without a bucket must fail")
	}
	if _, err := NewReader("s3", "", ""); err == nil {
		t.Fatalf("unknown kind must fail")
	}
	if reader, err := NewReader("local", "models", ""); err != nil || reader == nil {
		t.Fatalf("local reader should build, got %v", err)
	}
}

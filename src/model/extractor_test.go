package model

import (
	"errors"
	"testing"
)

func denseWeights(rows, cols int, seed int32) []int32 {
	values := make([]int32, rows*cols)
	for i := range values {
		values[i] = (seed+int32(i)*7)%101 - 50
	}
	return values
}

func matmulDesc(m, k, n int) LayerDesc {
	return LayerDesc{
		Kind:        "matmul",
		InputShape:  Shape{Rows: m, Cols: k},
		OutputShape: Shape{Rows: m, Cols: n},
		WeightRows:  k,
		WeightCols:  n,
		Weights:     denseWeights(k, n, 3),
		QuantScale:  0.05,
	}
}

func TestExtractSingleMatmul(t *testing.T) {
	t.Parallel()

	desc := &Desc{
		Model:  "unit",
		Layers: []LayerDesc{matmulDesc(2, 4, 4)},
	}

	graph, err := Extract(desc)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if graph.NumLayers() != 1 {
		t.Fatalf("expected 1 layer, got %d", graph.NumLayers())
	}
	if graph.ID != "unit" {
		t.Fatalf("expected model id %q, got %q", "unit", graph.ID)
	}
	layer := graph.Layer(0)
	if layer.Kind != LayerKindMatmul {
		t.Fatalf("expected matmul layer, got %v", layer.Kind)
	}
	if layer.Weights == nil || layer.Weights.Rows != 4 || layer.Weights.Cols != 4 {
		t.Fatalf("unexpected weight tensor: %+v", layer.Weights)
	}
	if got := graph.OutputShape(); !got.Equal(Shape{Rows: 2, Cols: 4}) {
		t.Fatalf("unexpected output shape %s", got)
	}
}

func TestExtractChainAdjacency(t *testing.T) {
	t.Parallel()

	first := matmulDesc(2, 4, 6)
	second := LayerDesc{
		Kind:        "activation",
		InputShape:  Shape{Rows: 2, Cols: 6},
		OutputShape: Shape{Rows: 2, Cols: 6},
		Activation:  "relu",
		Inputs:      []int{0},
	}

	graph, err := Extract(&Desc{Layers: []LayerDesc{first, second}})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	succs := graph.Successors(0)
	if len(succs) != 1 || succs[0] != 1 {
		t.Fatalf("expected layer 0 to feed layer 1, got %v", succs)
	}
	if graph.ID == "" {
		t.Fatalf("anonymous description should fall back to a content-derived id")
	}
}

func TestExtractRejectsUnsupportedOp(t *testing.T) {
	t.Parallel()

	desc := &Desc{
		Layers: []LayerDesc{{
			Kind:        "softmax",
			InputShape:  Shape{Rows: 2, Cols: 4},
			OutputShape: Shape{Rows: 2, Cols: 4},
		}},
	}

	_, err := Extract(desc)
	var unsupported *UnsupportedOpError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedOpError, got %v", err)
	}
	if unsupported.Kind != "softmax" {
		t.Fatalf("unexpected kind in error: %q", unsupported.Kind)
	}
}

func TestExtractRejectsShapeMismatchAcrossEdge(t *testing.T) {
	t.Parallel()

	first := matmulDesc(2, 4, 6)
	second := LayerDesc{
		Kind:        "activation",
		InputShape:  Shape{Rows: 2, Cols: 8}, // producer emits [2 x 6]
		OutputShape: Shape{Rows: 2, Cols: 8},
		Inputs:      []int{0},
	}

	_, err := Extract(&Desc{Layers: []LayerDesc{first, second}})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestExtractRejectsCycle(t *testing.T) {
	t.Parallel()

	// Two activation layers feeding each other can never become ready.
	shape := Shape{Rows: 2, Cols: 4}
	layers := []LayerDesc{
		{Kind: "activation", InputShape: shape, OutputShape: shape, Inputs: []int{1}},
		{Kind: "activation", InputShape: shape, OutputShape: shape, Inputs: []int{0}},
	}

	_, err := Extract(&Desc{Layers: layers})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for cyclic graph, got %v", err)
	}
}

func TestExtractRejectsForwardEdge(t *testing.T) {
	t.Parallel()

	shape := Shape{Rows: 2, Cols: 4}
	layers := []LayerDesc{
		{Kind: "activation", InputShape: shape, OutputShape: shape, Inputs: []int{1}},
		{Kind: "activation", InputShape: shape, OutputShape: shape},
	}

	_, err := Extract(&Desc{Layers: layers})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for forward edge, got %v", err)
	}
}

func TestExtractRejectsWeightOutOfRange(t *testing.T) {
	t.Parallel()

	bad := matmulDesc(2, 2, 2)
	bad.Weights[0] = 512

	_, err := Extract(&Desc{Layers: []LayerDesc{bad}})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for out-of-range weight, got %v", err)
	}
}

func TestExtractPoolShapes(t *testing.T) {
	t.Parallel()

	first := matmulDesc(2, 4, 8)
	pool := LayerDesc{
		Kind:        "pool",
		InputShape:  Shape{Rows: 2, Cols: 8},
		OutputShape: Shape{Rows: 2, Cols: 4},
		PoolWindow:  2,
		Inputs:      []int{0},
	}

	graph, err := Extract(&Desc{Layers: []LayerDesc{first, pool}})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got := graph.OutputShape(); !got.Equal(Shape{Rows: 2, Cols: 4}) {
		t.Fatalf("unexpected pooled shape %s", got)
	}

	pool.OutputShape = Shape{Rows: 2, Cols: 5}
	if _, err := Extract(&Desc{Layers: []LayerDesc{first, pool}}); err == nil {
		t.Fatalf("expected pool shape mismatch to fail validation")
	}
}

func TestParseDescIdentifierIsStable(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"layers":[{"op_kind":"activation","input_shape":{"rows":1,"cols":2},"output_shape":{"rows":1,"cols":2}}]}`)

	a, err := ParseDesc(payload)
	if err != nil {
		t.Fatalf("ParseDesc failed: %v", err)
	}
	b, err := ParseDesc(payload)
	if err != nil {
		t.Fatalf("ParseDesc failed: %v", err)
	}
	if a.Identifier() != b.Identifier() {
		t.Fatalf("identifier not stable: %q vs %q", a.Identifier(), b.Identifier())
	}
}

// Descriptions built in memory must get distinct content-derived identifiers,
// or schedule caching would conflate different anonymous models.
func TestAnonymousDescsGetDistinctIdentifiers(t *testing.T) {
	t.Parallel()

	small := &Desc{Layers: []LayerDesc{matmulDesc(2, 4, 4)}}
	large := &Desc{Layers: []LayerDesc{matmulDesc(2, 8, 8)}}

	if small.Identifier() == "" || large.Identifier() == "" {
		t.Fatalf("anonymous descriptions must derive a non-empty identifier")
	}
	if small.Identifier() != small.Identifier() {
		t.Fatalf("identifier must be stable across calls")
	}
	if small.Identifier() == large.Identifier() {
		t.Fatalf("distinct descriptions share identifier %q", small.Identifier())
	}

	graph, err := Extract(small)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if graph.ID != small.Identifier() {
		t.Fatalf("graph id %q does not match description identifier %q", graph.ID, small.Identifier())
	}
}

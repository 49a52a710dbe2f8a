package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// LayerDesc is one entry of the ordered layer list in a model description.
// Weight values arrive as wide integers so the description survives ordinary
// JSON tooling; the extractor range-checks them into int8.
type LayerDesc struct {
	Kind        string  `json:"op_kind"`
	Name        string  `json:"name,omitempty"`
	InputShape  Shape   `json:"input_shape"`
	OutputShape Shape   `json:"output_shape"`
	WeightRows  int     `json:"weight_rows,omitempty"`
	WeightCols  int     `json:"weight_cols,omitempty"`
	Weights     []int32 `json:"weights,omitempty"`
	QuantScale  float32 `json:"quant_scale,omitempty"`
	Activation  string  `json:"activation_function,omitempty"`
	KernelH     int     `json:"kernel_h,omitempty"`
	KernelW     int     `json:"kernel_w,omitempty"`
	InChannels  int     `json:"in_channels,omitempty"`
	OutChannels int     `json:"out_channels,omitempty"`
	PoolWindow  int     `json:"pool_window,omitempty"`
	Inputs      []int   `json:"inputs,omitempty"`
}

// Desc is the abstract model description consumed by the extractor.
type Desc struct {
	Model  string      `json:"model,omitempty"`
	Layers []LayerDesc `json:"layers"`

	contentHash string
}

// ParseDesc decodes a JSON model description and records a content hash used
// as the model identifier when no explicit name is present.
func ParseDesc(data []byte) (*Desc, error) {
	desc := new(Desc)
	if err := json.Unmarshal(data, desc); err != nil {
		return nil, fmt.Errorf("decoding model description: %w", err)
	}

	sum := sha256.Sum256(data)
	desc.contentHash = hex.EncodeToString(sum[:])

	return desc, nil
}

// Identifier returns the model name, or the description content hash when the
// description is anonymous. Descriptions built in memory get their hash
// lazily, so two distinct anonymous models never share an identifier.
func (d *Desc) Identifier() string {
	if d.Model != "" {
		return d.Model
	}
	if d.contentHash == "" {
		raw, _ := json.Marshal(d)
		sum := sha256.Sum256(raw)
		d.contentHash = hex.EncodeToString(sum[:])
	}
	return d.contentHash
}

// Extract validates a model description and produces an immutable Graph.
// It checks op-kind membership, per-layer shape legality, edge shape
// compatibility, and acyclicity. The description's layer order is the
// execution order, so every input edge must reference an earlier layer.
func Extract(desc *Desc) (*Graph, error) {
	if desc == nil || len(desc.Layers) == 0 {
		return nil, &ValidationError{Layer: -1, Reason: "empty model description"}
	}

	graph := &Graph{
		ID:     desc.Identifier(),
		Layers: make([]*Layer, 0, len(desc.Layers)),
	}

	for id, ld := range desc.Layers {
		kind, ok := LayerKindFromString(ld.Kind)
		if !ok {
			return nil, &UnsupportedOpError{Layer: id, Kind: ld.Kind}
		}

		fn, ok := ActivationFnFromString(ld.Activation)
		if !ok {
			return nil, &ValidationError{Layer: id, Reason: fmt.Sprintf("unknown activation function %q", ld.Activation)}
		}

		layer := &Layer{
			ID:          id,
			Kind:        kind,
			Name:        ld.Name,
			InputShape:  ld.InputShape,
			OutputShape: ld.OutputShape,
			Scale:       ld.QuantScale,
			Fn:          fn,
			PoolWindow:  ld.PoolWindow,
			Inputs:      append([]int(nil), ld.Inputs...),
		}

		if kind.HasWeights() {
			weights, err := buildWeights(id, &ld)
			if err != nil {
				return nil, err
			}
			layer.Weights = weights
		}

		if kind == LayerKindConv2d && ld.KernelH > 0 {
			lowered := ld.KernelH * ld.KernelW * ld.InChannels
			if lowered != layer.Weights.Rows || ld.OutChannels != layer.Weights.Cols {
				return nil, &ValidationError{
					Layer: id,
					Reason: fmt.Sprintf("kernel %dx%dx%d->%d does not lower to weight shape %s",
						ld.KernelH, ld.KernelW, ld.InChannels, ld.OutChannels, layer.Weights.Shape()),
				}
			}
		}

		if err := validateLayer(layer); err != nil {
			return nil, err
		}

		graph.Layers = append(graph.Layers, layer)
	}

	if err := validateEdges(graph); err != nil {
		return nil, err
	}
	if err := validateAcyclic(graph); err != nil {
		return nil, err
	}

	graph.buildAdjacency()

	return graph, nil
}

func buildWeights(id int, ld *LayerDesc) (*Tensor, error) {
	rows := ld.WeightRows
	cols := ld.WeightCols
	if rows <= 0 || cols <= 0 {
		return nil, &ValidationError{Layer: id, Reason: "weighted layer without weight shape"}
	}
	if len(ld.Weights) != rows*cols {
		return nil, &ValidationError{
			Layer:  id,
			Reason: fmt.Sprintf("weight tensor has %d values, shape needs %d", len(ld.Weights), rows*cols),
		}
	}
	if ld.QuantScale <= 0 {
		return nil, &ValidationError{Layer: id, Reason: fmt.Sprintf("quantization scale %g must be positive", ld.QuantScale)}
	}

	tensor := NewTensor(rows, cols, ld.QuantScale)
	tensor.Location = TensorLocationFlash
	for i, v := range ld.Weights {
		if v < -128 || v > 127 {
			return nil, &ValidationError{Layer: id, Reason: fmt.Sprintf("weight value %d outside int8 range", v)}
		}
		tensor.Data[i] = int8(v)
	}
	return tensor, nil
}

func validateLayer(layer *Layer) error {
	in := layer.InputShape
	out := layer.OutputShape

	if in.Rows <= 0 || in.Cols <= 0 {
		return &ValidationError{Layer: layer.ID, Reason: "non-positive input shape"}
	}
	if len(layer.Inputs) > 1 {
		return &ValidationError{Layer: layer.ID, Reason: "layer has more than one input edge"}
	}

	switch layer.Kind {
	case LayerKindMatmul:
		if layer.Weights.Rows != in.Cols {
			return &ValidationError{
				Layer:  layer.ID,
				Reason: fmt.Sprintf("weight rows %d do not match input cols %d", layer.Weights.Rows, in.Cols),
			}
		}
		want := Shape{Rows: in.Rows, Cols: layer.Weights.Cols}
		if !out.Equal(want) {
			return &ValidationError{
				Layer:  layer.ID,
				Reason: fmt.Sprintf("output shape %s does not match %s", out, want),
			}
		}
	case LayerKindConv2d:
		// conv2d is carried in im2col form: the host lowers the input to
		// [patches x kh*kw*cin] and the kernel to [kh*kw*cin x cout].
		if layer.Weights.Rows != in.Cols {
			return &ValidationError{
				Layer:  layer.ID,
				Reason: fmt.Sprintf("lowered kernel rows %d do not match input cols %d", layer.Weights.Rows, in.Cols),
			}
		}
		want := Shape{Rows: in.Rows, Cols: layer.Weights.Cols}
		if !out.Equal(want) {
			return &ValidationError{
				Layer:  layer.ID,
				Reason: fmt.Sprintf("output shape %s does not match %s", out, want),
			}
		}
	case LayerKindActivation:
		if !out.Equal(in) {
			return &ValidationError{Layer: layer.ID, Reason: "activation layer must preserve shape"}
		}
	case LayerKindPool:
		window := layer.PoolWindow
		if window < 2 {
			return &ValidationError{Layer: layer.ID, Reason: "pool layer requires pool_window >= 2"}
		}
		if in.Cols%window != 0 {
			return &ValidationError{
				Layer:  layer.ID,
				Reason: fmt.Sprintf("input cols %d not divisible by pool window %d", in.Cols, window),
			}
		}
		want := Shape{Rows: in.Rows, Cols: in.Cols / window}
		if !out.Equal(want) {
			return &ValidationError{
				Layer:  layer.ID,
				Reason: fmt.Sprintf("output shape %s does not match %s", out, want),
			}
		}
	}

	return nil
}

func validateEdges(graph *Graph) error {
	n := len(graph.Layers)
	for _, layer := range graph.Layers {
		for _, dep := range layer.Inputs {
			if dep < 0 || dep >= n {
				return &ValidationError{
					Layer:  layer.ID,
					Reason: fmt.Sprintf("input edge references unknown layer %d", dep),
				}
			}
			if dep == layer.ID {
				return &ValidationError{Layer: layer.ID, Reason: "layer consumes its own output"}
			}
			producer := graph.Layers[dep]
			if !producer.OutputShape.Equal(layer.InputShape) {
				return &ValidationError{
					Layer: layer.ID,
					Reason: fmt.Sprintf("producer %d output %s does not match input %s",
						dep, producer.OutputShape, layer.InputShape),
				}
			}
		}
		if len(layer.Inputs) == 0 && !layer.InputShape.Equal(graph.Layers[0].InputShape) {
			return &ValidationError{Layer: layer.ID, Reason: "root layer shape differs from model input shape"}
		}
	}
	return nil
}

// validateAcyclic walks the graph with a ready-set sweep; any layer left
// unprocessed sits on a cycle. The description's list order is also the
// execution order, so a resolvable graph whose edges point forward is still
// rejected.
func validateAcyclic(graph *Graph) error {
	done := make([]bool, len(graph.Layers))
	processed := 0

	for {
		progress := false
		for _, layer := range graph.Layers {
			if done[layer.ID] {
				continue
			}
			ready := true
			for _, dep := range layer.Inputs {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				done[layer.ID] = true
				processed++
				progress = true
			}
		}
		if !progress {
			break
		}
	}

	if processed != len(graph.Layers) {
		return &ValidationError{Layer: -1, Reason: "model graph contains a cycle"}
	}

	for _, layer := range graph.Layers {
		for _, dep := range layer.Inputs {
			if dep > layer.ID {
				return &ValidationError{
					Layer:  layer.ID,
					Reason: fmt.Sprintf("input edge from layer %d breaks execution order", dep),
				}
			}
		}
	}

	return nil
}

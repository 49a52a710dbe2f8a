package simulator

import (
	"context"
	"fmt"
	"math"

	"npusim/src/mapper"
	"npusim/src/memory"
	"npusim/src/model"
)

// runState carries the mutable state of one inference: the cycle counter,
// per-layer accumulators and outputs, the energy tally, and the stall trace.
type runState struct {
	dev *Device

	cycle  int64
	energy float64
	stalls []StallEvent

	layerOut    [][]int8
	layerStats  []LayerStats
	acc         map[int][]int32
	computeLeft map[int]int
	activeSlice []int8

	totalMacs   int64
	skippedMacs int64
}

func newRunState(dev *Device) *runState {
	graph := dev.graph
	run := &runState{
		dev:         dev,
		stalls:      make([]StallEvent, 0),
		layerOut:    make([][]int8, graph.NumLayers()),
		layerStats:  make([]LayerStats, graph.NumLayers()),
		acc:         make(map[int][]int32),
		computeLeft: make(map[int]int),
	}
	for _, layer := range graph.Layers {
		run.layerStats[layer.ID].LayerID = layer.ID
		if layer.Kind.HasWeights() {
			run.computeLeft[layer.ID] = len(dev.schedule.LayerTiles(layer.ID))
		}
	}
	return run
}

// execute walks the directive stream in order. Every simulated cycle of the
// array advances in lockstep inside StreamTile; the directive loop accounts
// transfer overlap, backpressure, and layer sequencing around those passes.
func (run *runState) execute(ctx context.Context) (*Report, error) {
	dev := run.dev

	for _, directive := range dev.schedule.Directives {
		// Cancellation is honored between directives, which are cycle
		// boundaries of the simulated machine.
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run canceled at cycle %d: %w", run.cycle, err)
		}

		var err error
		switch directive.Kind {
		case mapper.DirectiveWeightLoad:
			err = run.weightLoad(directive.Tile)
		case mapper.DirectiveActivationDMA:
			err = run.activationDMA(directive.Tile)
		case mapper.DirectiveBufferSwap:
			err = run.bufferSwap(directive.Tile)
		case mapper.DirectiveCompute:
			err = run.compute(directive.Tile)
		case mapper.DirectiveElementwise:
			err = run.elementwise(directive.LayerID, directive.EstCycles)
		default:
			err = fmt.Errorf("unknown directive %v", directive.Kind)
		}
		if err != nil {
			return nil, err
		}
	}

	clock := dev.clockMhz()
	report := &Report{
		ModelID:           dev.schedule.ModelID,
		TotalCycles:       run.cycle,
		EstimatedEnergyPj: run.energy,
		StallEvents:       run.stalls,
		Layers:            run.layerStats,
		Cache:             dev.cache.Counters(),
		Stager:            dev.stager.Counters(),
		TotalMacs:         run.totalMacs,
		SkippedMacs:       run.skippedMacs,
		ClockMhz:          clock,
	}
	if clock > 0 {
		report.ElapsedUs = float64(run.cycle) / float64(clock)
	}
	return report, nil
}

func (run *runState) layerInput(layer *model.Layer) ([]int8, error) {
	if len(layer.Inputs) == 0 {
		return run.dev.input, nil
	}
	producer := layer.Inputs[0]
	data := run.layerOut[producer]
	if data == nil {
		return nil, fmt.Errorf("layer %d scheduled before its producer %d", layer.ID, producer)
	}
	return data, nil
}

// weightLoad makes the tile's weights resident: on a cache miss it waits for
// the staged flash transfer, then installs the tile into its bank. The
// resident block is loaded into the array either way.
func (run *runState) weightLoad(tile *mapper.Tile) error {
	dev := run.dev
	layer := dev.graph.Layer(tile.LayerID)
	key := memory.TileKey{LayerID: tile.LayerID, TileIndex: tile.Index}

	if !dev.cache.Lookup(key) {
		readyAt := dev.stager.ReadyAt(key, tile.WeightBytes, run.cycle)
		if readyAt > run.cycle {
			run.cycle = readyAt
		}
		dev.stager.Complete(key)
		dev.cache.Insert(key, tile.WeightBytes)
		run.energy += float64(tile.WeightBytes) * dev.params.EnergyPerBytePj
	}

	dev.array.LoadTile(tile, layer.Weights.Data, layer.Weights.Cols)
	return nil
}

// activationDMA stages the tile's activation slice into the shadow half.
func (run *runState) activationDMA(tile *mapper.Tile) error {
	dev := run.dev
	layer := dev.graph.Layer(tile.LayerID)

	input, err := run.layerInput(layer)
	if err != nil {
		return err
	}

	slice := buildActivationSlice(input, layer.InputShape.Cols, tile)

	completeAt := run.cycle + dev.params.dmaCycles(tile.ActivationBytes)
	if dev.delayHook != nil {
		completeAt += dev.delayHook(tile.LayerID, tile.Index)
	}

	if err := dev.buffer.StartFill(slice, completeAt); err != nil {
		return fmt.Errorf("layer %d tile %d: %w", tile.LayerID, tile.Index, err)
	}
	run.energy += float64(tile.ActivationBytes) * dev.params.EnergyPerBytePj
	return nil
}

// bufferSwap flips the double buffer, blocking until the shadow fill has
// completed. Short waits are absorbed as stalls; a wait beyond the budget
// triggers the back-off path, and exhausting the retries is a HardwareFault.
func (run *runState) bufferSwap(tile *mapper.Tile) error {
	dev := run.dev

	readyAt := dev.buffer.FlipReadyAt()
	if readyAt < 0 {
		return fmt.Errorf("layer %d tile %d: buffer swap without a pending fill", tile.LayerID, tile.Index)
	}

	budget := int64(dev.params.StallBudgetCycles)
	retries := 0
	for !dev.buffer.Flip(run.cycle) {
		wait := readyAt - run.cycle
		if wait <= budget {
			run.stalls = append(run.stalls, StallEvent{
				Kind:       StallEventWait,
				Cycle:      run.cycle,
				LayerID:    tile.LayerID,
				TileIndex:  tile.Index,
				WaitCycles: wait,
			})
			run.cycle = readyAt
			continue
		}

		stall := &BufferStallError{LayerID: tile.LayerID, TileIndex: tile.Index, WaitCycles: wait}
		retries++
		if retries > dev.params.StallRetryLimit {
			return &HardwareFault{
				Reason:    stall.Error(),
				LayerID:   tile.LayerID,
				TileIndex: tile.Index,
			}
		}

		penalty := dev.params.backoffPenalty()
		run.stalls = append(run.stalls, StallEvent{
			Kind:       StallEventBackoff,
			Cycle:      run.cycle,
			LayerID:    tile.LayerID,
			TileIndex:  tile.Index,
			WaitCycles: penalty,
		})
		run.cycle += penalty
	}

	run.activeSlice = dev.buffer.Active()
	return nil
}

// compute runs one array pass over the tile. Its cost is the mapper estimate
// with the activation stream scaled by the sparsity skip ratio; the
// arithmetic itself is never affected by the mask.
func (run *runState) compute(tile *mapper.Tile) error {
	dev := run.dev
	layer := dev.graph.Layer(tile.LayerID)
	key := memory.TileKey{LayerID: tile.LayerID, TileIndex: tile.Index}

	if !dev.cache.Contains(key) {
		return fmt.Errorf("layer %d tile %d: compute issued without resident weights", tile.LayerID, tile.Index)
	}
	if run.activeSlice == nil || int64(len(run.activeSlice)) != tile.ActivationBytes {
		return fmt.Errorf("layer %d tile %d: compute issued without a populated half-buffer", tile.LayerID, tile.Index)
	}

	startCycle := run.cycle

	mask := dev.skip.ScanTile(tile, layer.Weights, run.activeSlice)
	effStream := int64(math.Ceil(float64(tile.StreamLen) * (1 - mask.Ratio())))

	cycles := int64(dev.params.Array.FillCycles(tile.WeightBytes))
	if effStream > cycles {
		cycles = effStream
	}
	cycles += int64(dev.array.FillDrainCycles())
	run.cycle += cycles

	acc, ok := run.acc[tile.LayerID]
	if !ok {
		acc = make([]int32, layer.OutputShape.Elems())
		run.acc[tile.LayerID] = acc
	}
	dev.array.StreamTile(tile, run.activeSlice, acc, layer.OutputShape.Cols)

	macs := mask.TotalMacs - mask.SkippedMacs
	run.energy += float64(macs) * dev.params.EnergyPerMacPj
	run.totalMacs += mask.TotalMacs
	run.skippedMacs += mask.SkippedMacs

	stats := &run.layerStats[tile.LayerID]
	stats.Tiles++
	stats.Cycles += cycles
	stats.Macs += macs
	stats.SkippedMacs += mask.SkippedMacs
	stats.EnergyPj += float64(macs) * dev.params.EnergyPerMacPj

	// Reference tile i+1 now that tile i's compute has begun; this is the
	// one-tile-ahead bulk-storage prefetch.
	if next := dev.schedule.NextTileAfter(tile); next != nil {
		nextKey := memory.TileKey{LayerID: next.LayerID, TileIndex: next.Index}
		if !dev.cache.Contains(nextKey) {
			dev.stager.Prefetch(nextKey, next.WeightBytes, startCycle)
		}
	}

	run.computeLeft[tile.LayerID]--
	if run.computeLeft[tile.LayerID] == 0 {
		run.finalizeWeightedLayer(layer)
	}

	return nil
}

// finalizeWeightedLayer requantizes the int32 accumulator to int8 and applies
// the layer's activation function.
func (run *runState) finalizeWeightedLayer(layer *model.Layer) {
	acc := run.acc[layer.ID]
	out := make([]int8, len(acc))
	for i, v := range acc {
		if layer.Fn == model.ActivationFnRelu && v < 0 {
			v = 0
		}
		out[i] = requantize(v, layer.Scale)
	}
	run.layerOut[layer.ID] = out
	delete(run.acc, layer.ID)
}

func (run *runState) elementwise(layerID int, estCycles int) error {
	dev := run.dev
	layer := dev.graph.Layer(layerID)

	input, err := run.layerInput(layer)
	if err != nil {
		return err
	}

	var out []int8
	switch layer.Kind {
	case model.LayerKindActivation:
		out = make([]int8, len(input))
		for i, v := range input {
			if layer.Fn == model.ActivationFnRelu && v < 0 {
				v = 0
			}
			out[i] = v
		}
	case model.LayerKindPool:
		out = maxPool(input, layer.InputShape, layer.PoolWindow)
	default:
		return fmt.Errorf("layer %d: elementwise directive for %v layer", layerID, layer.Kind)
	}

	run.layerOut[layerID] = out
	run.cycle += int64(estCycles)
	run.energy += float64(layer.OutputShape.Elems()) * dev.params.EnergyPerBytePj

	stats := &run.layerStats[layerID]
	stats.Cycles += int64(estCycles)
	stats.EnergyPj += float64(layer.OutputShape.Elems()) * dev.params.EnergyPerBytePj

	return nil
}

// buildActivationSlice gathers the tile's activation columns into a
// stream-major slice: element (m, k) of the stream sits at m*tile.Rows + k.
func buildActivationSlice(input []int8, inputCols int, tile *mapper.Tile) []int8 {
	slice := make([]int8, tile.StreamLen*tile.Rows)
	for m := 0; m < tile.StreamLen; m++ {
		src := m*inputCols + tile.RowOff
		copy(slice[m*tile.Rows:(m+1)*tile.Rows], input[src:src+tile.Rows])
	}
	return slice
}

func maxPool(input []int8, shape model.Shape, window int) []int8 {
	outCols := shape.Cols / window
	out := make([]int8, shape.Rows*outCols)
	for r := 0; r < shape.Rows; r++ {
		for c := 0; c < outCols; c++ {
			best := input[r*shape.Cols+c*window]
			for w := 1; w < window; w++ {
				v := input[r*shape.Cols+c*window+w]
				if v > best {
					best = v
				}
			}
			out[r*outCols+c] = best
		}
	}
	return out
}

// requantize scales an int32 accumulator to int8 with saturation.
func requantize(v int32, scale float32) int8 {
	scaled := math.Round(float64(v) * float64(scale))
	if scaled > 127 {
		return 127
	}
	if scaled < -128 {
		return -128
	}
	return int8(scaled)
}

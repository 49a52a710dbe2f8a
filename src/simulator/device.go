package simulator

import (
	"context"
	"errors"
	"fmt"

	"npusim/src/mapper"
	"npusim/src/memory"
	"npusim/src/misc"
	"npusim/src/model"
	"npusim/src/sparsity"
)

// Device is one simulated NPU instance. All mutable state (memory banks,
// double buffer, staging queue, run results) lives here rather than in
// package globals.
type Device struct {
	params Params

	mapper *mapper.Mapper
	array  *PEArray
	cache  *memory.WeightCache
	buffer *memory.DoubleBuffer
	stager *memory.FlashStager
	skip   *sparsity.Engine

	graph    *model.Graph
	schedule *mapper.Schedule

	input      []int8
	inputValid bool
	output     []int8
	report     *Report

	mode    misc.PowerMode
	faulted bool

	// delayHook lets tests stretch individual activation transfers to
	// exercise the backpressure and back-off paths.
	delayHook func(layerID, tileIndex int) int64
}

func (this *Device) Init(params Params) {
	this.params = params
	this.mapper = new(mapper.Mapper)
	this.mapper.Init(params.Array, params.ScheduleCacheEntries)
	this.array = NewPEArray(params.Array.Rows, params.Array.Cols)
	this.cache = memory.NewWeightCache(params.Array.CacheBanks, params.Array.CacheBankBytes)
	this.buffer = memory.NewDoubleBuffer(params.Array.ActivationHalfBytes)
	this.stager = memory.NewFlashStager(params.FlashBandwidth, params.FlashBaseLatency)
	this.skip = new(sparsity.Engine)
	this.mode = misc.DefaultPowerMode()
}

func (this *Device) Fini() {
	this.graph = nil
	this.schedule = nil
	this.input = nil
	this.output = nil
	this.report = nil
}

func (this *Device) Params() Params {
	return this.params
}

// LoadModel compiles the graph (or fetches the cached schedule), resets all
// per-call memory state, and clears any standing fault.
func (this *Device) LoadModel(graph *model.Graph) error {
	schedule, err := this.mapper.Map(graph)
	if err != nil {
		return fmt.Errorf("mapping model %q: %w", graph.ID, err)
	}

	this.graph = graph
	this.schedule = schedule
	this.cache.Reset()
	this.buffer.Reset()
	this.stager.Flush()

	shape := graph.InputShape()
	this.input = make([]int8, shape.Elems())
	this.inputValid = false
	this.output = nil
	this.report = nil
	this.faulted = false

	return nil
}

func (this *Device) Graph() *model.Graph {
	return this.graph
}

func (this *Device) Schedule() *mapper.Schedule {
	return this.schedule
}

func (this *Device) Faulted() bool {
	return this.faulted
}

func (this *Device) PowerMode() misc.PowerMode {
	return this.mode
}

func (this *Device) SetPowerMode(mode misc.PowerMode) {
	this.mode = mode
}

// InjectTransferDelay installs a fault-injection hook that adds cycles to
// activation transfers for matching tiles.
func (this *Device) InjectTransferDelay(hook func(layerID, tileIndex int) int64) {
	this.delayHook = hook
}

// WriteInput stores activation bytes into the device input buffer.
func (this *Device) WriteInput(offset int, data []int8) error {
	if this.graph == nil {
		return errors.New("no model loaded")
	}
	if offset < 0 || offset+len(data) > len(this.input) {
		return fmt.Errorf("input write [%d, %d) outside buffer of %d bytes",
			offset, offset+len(data), len(this.input))
	}
	copy(this.input[offset:], data)
	this.inputValid = true
	return nil
}

// Output returns the quantized output tensor of the last completed run.
func (this *Device) Output() []int8 {
	return this.output
}

func (this *Device) LastReport() *Report {
	return this.report
}

// Run executes the compiled schedule once. On cancellation it flushes
// in-flight transfers and leaves the device ready for another run; on a
// HardwareFault the device refuses further runs until a fresh LoadModel.
func (this *Device) Run(ctx context.Context) (*Report, error) {
	if this.faulted {
		return nil, &HardwareFault{Reason: "device faulted; initialize required", LayerID: -1}
	}
	if this.graph == nil || this.schedule == nil {
		return nil, errors.New("no model loaded")
	}
	if !this.inputValid {
		return nil, errors.New("no input written")
	}

	run := newRunState(this)
	report, err := run.execute(ctx)
	if err != nil {
		this.buffer.Reset()
		this.stager.Flush()
		var fault *HardwareFault
		if errors.As(err, &fault) {
			this.faulted = true
		}
		return nil, err
	}

	this.output = run.layerOut[this.graph.NumLayers()-1]
	this.report = report
	return report, nil
}

func (this *Device) clockMhz() int {
	if this.mode == misc.PowerModeLow {
		return this.params.LowPowerClockMhz
	}
	return this.params.NominalClockMhz
}

package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"k8s.io/klog/v2"

	"npusim/src/misc"
	"npusim/src/model"
	"npusim/src/simulator"
)

// State is the engine's position in the host command FSM.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateLoaded
	StateExecuting
	StateReadingOutput
	StatePowerTransition
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateLoaded:
		return "loaded"
	case StateExecuting:
		return "executing"
	case StateReadingOutput:
		return "reading_output"
	case StatePowerTransition:
		return "power_transition"
	default:
		return fmt.Sprintf("state_%d", int(s))
	}
}

// ModelResolver fetches and compiles a model description by identifier.
type ModelResolver func(ctx context.Context, id string) (*model.Graph, error)

// Result carries the response of a completed command. Output and Report are
// populated by ReadOutput only.
type Result struct {
	Output []byte
	Report *simulator.Report
}

// Engine sequences host commands over a serial channel, one at a time, and
// gates when the device may load, execute, and surface results. Execute is
// asynchronous: Handle returns while the run proceeds and the host polls
// Busy or blocks in Wait.
type Engine struct {
	device  *simulator.Device
	resolve ModelResolver

	mu          sync.Mutex
	state       State
	outputReady bool

	execCancel context.CancelFunc
	execDone   chan struct{}
	execErr    error
}

func (this *Engine) Init(device *simulator.Device, resolve ModelResolver) {
	this.device = device
	this.resolve = resolve
	this.state = StateIdle
}

func (this *Engine) Fini() {
	this.CancelExecute()
	if done := this.doneChannel(); done != nil {
		<-done
	}
}

func (this *Engine) State() State {
	this.mu.Lock()
	defer this.mu.Unlock()
	return this.state
}

// Busy reports whether an Execute is still running.
func (this *Engine) Busy() bool {
	this.mu.Lock()
	defer this.mu.Unlock()
	return this.state == StateExecuting
}

// Handle decodes one framed command and applies it to the FSM. A malformed
// packet or an out-of-sequence command returns the corresponding error and
// leaves both the engine state and device memory untouched.
func (this *Engine) Handle(ctx context.Context, raw []byte) (*Result, error) {
	packet, err := DecodePacket(raw)
	if err != nil {
		return nil, err
	}

	this.mu.Lock()
	defer this.mu.Unlock()

	switch packet.Opcode {
	case OpInitialize:
		return this.handleInitialize(ctx, packet)
	case OpWriteInput:
		return this.handleWriteInput(ctx, packet)
	case OpExecute:
		return this.handleExecute(ctx, packet)
	case OpReadOutput:
		return this.handleReadOutput(ctx, packet)
	case OpPowerControl:
		return this.handlePowerControl(ctx, packet)
	default:
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown opcode 0x%02x", packet.Opcode)}
	}
}

func (this *Engine) handleInitialize(ctx context.Context, packet *Packet) (*Result, error) {
	if this.state != StateIdle {
		return nil, &SequenceError{Opcode: packet.Opcode, State: this.state}
	}

	modelID := string(packet.Payload)
	log := klog.FromContext(ctx)
	log.Info("initializing device", "model", modelID)

	this.state = StateInitializing
	graph, err := this.resolve(ctx, modelID)
	if err != nil {
		this.state = StateIdle
		return nil, fmt.Errorf("resolving model %q: %w", modelID, err)
	}
	if err := this.device.LoadModel(graph); err != nil {
		this.state = StateIdle
		return nil, fmt.Errorf("loading model %q: %w", modelID, err)
	}

	this.state = StateLoaded
	this.outputReady = false
	this.execErr = nil
	log.Info("device loaded", "model", modelID, "layers", graph.NumLayers())
	return &Result{}, nil
}

func (this *Engine) handleWriteInput(ctx context.Context, packet *Packet) (*Result, error) {
	if this.state != StateLoaded {
		return nil, &SequenceError{Opcode: packet.Opcode, State: this.state}
	}

	data := make([]int8, len(packet.Payload))
	for i, b := range packet.Payload {
		data[i] = int8(b)
	}
	if err := this.device.WriteInput(int(packet.Address), data); err != nil {
		return nil, fmt.Errorf("writing input at %d: %w", packet.Address, err)
	}

	this.outputReady = false
	return &Result{}, nil
}

func (this *Engine) handleExecute(ctx context.Context, packet *Packet) (*Result, error) {
	if this.state != StateLoaded {
		return nil, &SequenceError{Opcode: packet.Opcode, State: this.state}
	}

	log := klog.FromContext(ctx)

	// The run detaches from the command context: Handle returns immediately
	// and the host cancels through CancelExecute.
	runCtx, cancel := context.WithCancel(context.Background())
	this.execCancel = cancel
	this.execDone = make(chan struct{})
	this.execErr = nil
	this.outputReady = false
	this.state = StateExecuting

	go func() {
		report, err := this.device.Run(runCtx)
		cancel()

		this.mu.Lock()
		this.execErr = err
		switch {
		case err == nil:
			this.state = StateLoaded
			this.outputReady = true
			log.Info("execute complete", "cycles", report.TotalCycles, "stalls", len(report.StallEvents))
		default:
			var fault *simulator.HardwareFault
			if errors.As(err, &fault) {
				// An unrecoverable fault needs a fresh Initialize.
				this.state = StateIdle
			} else {
				this.state = StateLoaded
			}
			log.Error(err, "execute aborted")
		}
		close(this.execDone)
		this.mu.Unlock()
	}()

	return &Result{}, nil
}

func (this *Engine) handleReadOutput(ctx context.Context, packet *Packet) (*Result, error) {
	if this.state != StateLoaded {
		return nil, &SequenceError{Opcode: packet.Opcode, State: this.state}
	}
	if !this.outputReady {
		// Results are one-shot: a second read needs a new Execute.
		return nil, &SequenceError{Opcode: packet.Opcode, State: this.state}
	}

	this.state = StateReadingOutput
	output := this.device.Output()
	payload := make([]byte, len(output))
	for i, v := range output {
		payload[i] = byte(v)
	}
	result := &Result{Output: payload, Report: this.device.LastReport()}

	this.outputReady = false
	this.state = StateLoaded
	return result, nil
}

func (this *Engine) handlePowerControl(ctx context.Context, packet *Packet) (*Result, error) {
	if this.state != StateIdle {
		return nil, &SequenceError{Opcode: packet.Opcode, State: this.state}
	}
	if len(packet.Payload) != 1 {
		return nil, &ProtocolError{Reason: fmt.Sprintf("power control payload must be 1 byte, got %d", len(packet.Payload))}
	}

	var mode misc.PowerMode
	switch packet.Payload[0] {
	case 0x00:
		mode = misc.PowerModeNominal
	case 0x01:
		mode = misc.PowerModeLow
	default:
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown operating point 0x%02x", packet.Payload[0])}
	}

	this.state = StatePowerTransition
	this.device.SetPowerMode(mode)
	this.state = StateIdle
	klog.FromContext(ctx).Info("operating point switched", "mode", string(mode))
	return &Result{}, nil
}

// CancelExecute halts a running Execute. The scheduler aborts at the next
// cycle boundary, in-flight transfers are flushed, and the engine returns to
// Loaded once the run goroutine observes the cancellation.
func (this *Engine) CancelExecute() {
	this.mu.Lock()
	cancel := this.execCancel
	this.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (this *Engine) doneChannel() chan struct{} {
	this.mu.Lock()
	defer this.mu.Unlock()
	return this.execDone
}

// Wait blocks until the most recent Execute completes, returning its error.
func (this *Engine) Wait(ctx context.Context) error {
	done := this.doneChannel()
	if done == nil {
		return nil
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	this.mu.Lock()
	defer this.mu.Unlock()
	return this.execErr
}

package protocol

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"npusim/src/mapper"
	"npusim/src/model"
	"npusim/src/simulator"
)

func testDevice() *simulator.Device {
	dev := new(simulator.Device)
	dev.Init(simulator.Params{
		Array: mapper.ArrayParams{
			Rows:                4,
			Cols:                4,
			RegisterBits:        8,
			CacheBanks:          4,
			CacheBankBytes:      4 * 1024,
			ActivationHalfBytes: 4 * 1024,
			CacheFillBandwidth:  16,
		},
		ActivationBandwidth:  16,
		FlashBandwidth:       8,
		FlashBaseLatency:     4,
		NominalClockMhz:      800,
		LowPowerClockMhz:     200,
		StallBudgetCycles:    64,
		StallRetryLimit:      3,
		EnergyPerMacPj:       0.25,
		EnergyPerBytePj:      1.5,
		ScheduleCacheEntries: 4,
	})
	return dev
}

func testResolver(t *testing.T) ModelResolver {
	t.Helper()

	weights := make([]int32, 16)
	for i := range weights {
		weights[i] = int32(i%7) - 3
	}
	desc := &model.Desc{
		Model: "proto",
		Layers: []model.LayerDesc{{
			Kind:        "matmul",
			InputShape:  model.Shape{Rows: 2, Cols: 4},
			OutputShape: model.Shape{Rows: 2, Cols: 4},
			WeightRows:  4,
			WeightCols:  4,
			Weights:     weights,
			QuantScale:  0.1,
		}},
	}

	return func(ctx context.Context, id string) (*model.Graph, error) {
		if id != "proto" {
			return nil, fmt.Errorf("unknown model %q", id)
		}
		return model.Extract(desc)
	}
}

func frame(opcode byte, address uint32, payload []byte) []byte {
	return (&Packet{Opcode: opcode, Address: address, Payload: payload}).Encode()
}

func handleOK(t *testing.T, engine *Engine, raw []byte) *Result {
	t.Helper()
	result, err := engine.Handle(context.Background(), raw)
	if err != nil {
		t.Fatalf("Handle(%s) failed: %v", OpcodeName(raw[0]), err)
	}
	return result
}

func waitDone(t *testing.T, engine *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := engine.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
}

// Initialize, WriteInput, Execute, ReadOutput in order succeeds end to end
// and yields a non-empty report; the second ReadOutput without a new Execute
// is a SequenceError.
func TestCommandSequenceEndToEnd(t *testing.T) {
	t.Parallel()

	engine := new(Engine)
	engine.Init(testDevice(), testResolver(t))
	defer engine.Fini()

	handleOK(t, engine, frame(OpInitialize, 0, []byte("proto")))
	if engine.State() != StateLoaded {
		t.Fatalf("expected loaded after initialize, got %s", engine.State())
	}

	input := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	handleOK(t, engine, frame(OpWriteInput, 0, input))

	handleOK(t, engine, frame(OpExecute, 0, nil))
	waitDone(t, engine)
	if engine.State() != StateLoaded {
		t.Fatalf("expected loaded after execute, got %s", engine.State())
	}

	result := handleOK(t, engine, frame(OpReadOutput, 0, nil))
	if len(result.Output) == 0 {
		t.Fatalf("expected a non-empty output tensor")
	}
	if result.Report == nil || result.Report.TotalCycles <= 0 {
		t.Fatalf("expected a populated report, got %+v", result.Report)
	}

	_, err := engine.Handle(context.Background(), frame(OpReadOutput, 0, nil))
	var sequence *SequenceError
	if !errors.As(err, &sequence) {
		t.Fatalf("second read must be a SequenceError, got %v", err)
	}
}

// Execute issued from Idle is rejected and the state stays Idle.
func TestExecuteFromIdleIsSequenceError(t *testing.T) {
	t.Parallel()

	engine := new(Engine)
	engine.Init(testDevice(), testResolver(t))

	_, err := engine.Handle(context.Background(), frame(OpExecute, 0, nil))
	var sequence *SequenceError
	if !errors.As(err, &sequence) {
		t.Fatalf("expected SequenceError, got %v", err)
	}
	if sequence.Opcode != OpExecute {
		t.Fatalf("error should name the offending opcode, got %s", OpcodeName(sequence.Opcode))
	}
	if engine.State() != StateIdle {
		t.Fatalf("state must stay idle, got %s", engine.State())
	}
}

// A declared length that disagrees with the observed payload is a
// ProtocolError; the packet is discarded with no state change.
func TestLengthMismatchIsProtocolError(t *testing.T) {
	t.Parallel()

	engine := new(Engine)
	engine.Init(testDevice(), testResolver(t))

	raw := frame(OpInitialize, 0, make([]byte, 10))
	raw = raw[:len(raw)-2] // 8 payload bytes behind a declared length of 10

	_, err := engine.Handle(context.Background(), raw)
	var protocol *ProtocolError
	if !errors.As(err, &protocol) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if engine.State() != StateIdle {
		t.Fatalf("malformed packet must not change state, got %s", engine.State())
	}

	if _, err := engine.Handle(context.Background(), []byte{OpExecute, 0, 0}); !errors.As(err, &protocol) {
		t.Fatalf("truncated header must be a ProtocolError, got %v", err)
	}
}

// PowerControl is legal only from Idle and validates its operand byte.
func TestPowerControlGating(t *testing.T) {
	t.Parallel()

	dev := testDevice()
	engine := new(Engine)
	engine.Init(dev, testResolver(t))

	handleOK(t, engine, frame(OpPowerControl, 0, []byte{0x01}))
	if engine.State() != StateIdle {
		t.Fatalf("power control must return to idle, got %s", engine.State())
	}

	var protocol *ProtocolError
	if _, err := engine.Handle(context.Background(), frame(OpPowerControl, 0, []byte{0x07})); !errors.As(err, &protocol) {
		t.Fatalf("unknown operating point must be a ProtocolError, got %v", err)
	}

	handleOK(t, engine, frame(OpInitialize, 0, []byte("proto")))
	var sequence *SequenceError
	if _, err := engine.Handle(context.Background(), frame(OpPowerControl, 0, []byte{0x00})); !errors.As(err, &sequence) {
		t.Fatalf("power control from loaded must be a SequenceError, got %v", err)
	}
}

// Cancelling a running Execute aborts the scheduler at a cycle boundary
// and returns the engine to Loaded, ready for another Execute.
func TestCancelExecuteReturnsToLoaded(t *testing.T) {
	t.Parallel()

	dev := testDevice()
	release := make(chan struct{})
	var gated bool
	dev.InjectTransferDelay(func(layerID, tileIndex int) int64 {
		if !gated {
			gated = true
			<-release
		}
		return 0
	})

	engine := new(Engine)
	engine.Init(dev, testResolver(t))

	handleOK(t, engine, frame(OpInitialize, 0, []byte("proto")))
	handleOK(t, engine, frame(OpWriteInput, 0, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	handleOK(t, engine, frame(OpExecute, 0, nil))

	engine.CancelExecute()
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := engine.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the run to observe the cancellation, got %v", err)
	}
	if engine.State() != StateLoaded {
		t.Fatalf("cancelled execute must return to loaded, got %s", engine.State())
	}

	// The device is intact: a fresh Execute completes normally.
	handleOK(t, engine, frame(OpWriteInput, 0, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	handleOK(t, engine, frame(OpExecute, 0, nil))
	waitDone(t, engine)
	result := handleOK(t, engine, frame(OpReadOutput, 0, nil))
	if len(result.Output) == 0 {
		t.Fatalf("expected output after the retried execute")
	}
}

func TestPacketRoundTrip(t *testing.T) {
	t.Parallel()

	packet := &Packet{Opcode: OpWriteInput, Address: 0xDEADBEEF, Payload: []byte{9, 8, 7}}
	decoded, err := DecodePacket(packet.Encode())
	if err != nil {
		t.Fatalf("DecodePacket failed: %v", err)
	}
	if !reflect.DeepEqual(packet, decoded) {
		t.Fatalf("round trip mismatch: %+v vs %+v", packet, decoded)
	}
}

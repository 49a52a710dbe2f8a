package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"

	"npusim/src/misc"
	"npusim/src/model"
	"npusim/src/protocol"
	"npusim/src/simulator"
	"npusim/src/store"
)

func main() {
	klog.InitFlags(nil)

	command_line_parser := InitCommandLineParser()
	command_line_parser.Parse(os.Args)

	if command_line_parser.IsArgSet("help") {
		fmt.Printf("%s", command_line_parser.StringifyHelpMsgs())
		return
	}

	misc.ConfigureRuntime(command_line_parser)

	command_line_validator := new(misc.CommandLineValidator)
	command_line_validator.Init(command_line_parser)
	command_line_validator.Validate()

	config_loader := new(misc.ConfigLoader)
	config_loader.Init()

	out_dirpath := command_line_parser.StringParameter("out_dirpath")

	args_file_dumper := new(misc.FileDumper)
	args_file_dumper.Init(filepath.Join(out_dirpath, "args.txt"))
	args_file_dumper.WriteLines([]string{command_line_parser.StringifyArgs()})

	options_file_dumper := new(misc.FileDumper)
	options_file_dumper.Init(filepath.Join(out_dirpath, "options.txt"))
	options_file_dumper.WriteLines([]string{command_line_parser.StringifyOptions()})

	ctx := context.Background()
	if err := run(ctx, command_line_parser, config_loader, out_dirpath); err != nil {
		klog.ErrorS(err, "simulation failed")
		klog.Flush()
		os.Exit(1)
	}
	klog.Flush()
}

func run(ctx context.Context, parser *misc.CommandLineParser, loader *misc.ConfigLoader, out_dirpath string) error {
	reader, err := store.NewReader(loader.ModelStoreKind(), loader.ModelStorePath(), loader.ModelStoreBucket())
	if err != nil {
		return fmt.Errorf("building model store: %w", err)
	}

	device := new(simulator.Device)
	device.Init(simulator.LoadParams(loader))
	defer device.Fini()

	engine := new(protocol.Engine)
	engine.Init(device, func(ctx context.Context, id string) (*model.Graph, error) {
		desc, err := store.LoadDesc(ctx, reader, id)
		if err != nil {
			return nil, err
		}
		return model.Extract(desc)
	})
	defer engine.Fini()

	power_mode, ok := misc.PowerModeFromString(parser.StringParameter("power_mode"))
	if !ok {
		return fmt.Errorf("unknown power mode %q", parser.StringParameter("power_mode"))
	}
	if power_mode == misc.PowerModeLow {
		if err := handle(ctx, engine, protocol.OpPowerControl, 0, []byte{0x01}); err != nil {
			return err
		}
	}

	model_id := parser.StringParameter("model")
	if err := handle(ctx, engine, protocol.OpInitialize, 0, []byte(model_id)); err != nil {
		return err
	}

	input, err := loadInput(parser, device)
	if err != nil {
		return err
	}
	if err := handle(ctx, engine, protocol.OpWriteInput, 0, input); err != nil {
		return err
	}

	if err := handle(ctx, engine, protocol.OpExecute, 0, nil); err != nil {
		return err
	}
	if err := engine.Wait(ctx); err != nil {
		return fmt.Errorf("executing model %q: %w", model_id, err)
	}

	result, err := engine.Handle(ctx, frame(protocol.OpReadOutput, 0, nil))
	if err != nil {
		return fmt.Errorf("reading output: %w", err)
	}

	return dumpResult(out_dirpath, result)
}

func handle(ctx context.Context, engine *protocol.Engine, opcode byte, address uint32, payload []byte) error {
	if _, err := engine.Handle(ctx, frame(opcode, address, payload)); err != nil {
		return fmt.Errorf("%s: %w", protocol.OpcodeName(opcode), err)
	}
	return nil
}

func frame(opcode byte, address uint32, payload []byte) []byte {
	packet := &protocol.Packet{Opcode: opcode, Address: address, Payload: payload}
	return packet.Encode()
}

// loadInput reads the activation tensor from the input file, or zero-fills
// the device input buffer when no file is given.
func loadInput(parser *misc.CommandLineParser, device *simulator.Device) ([]byte, error) {
	elems := device.Graph().InputShape().Elems()

	input_filepath := parser.StringParameter("input_filepath")
	if input_filepath == "" {
		return make([]byte, elems), nil
	}

	raw, err := os.ReadFile(input_filepath)
	if err != nil {
		return nil, fmt.Errorf("reading input tensor: %w", err)
	}
	if len(raw) != elems {
		return nil, fmt.Errorf("input tensor has %d bytes, model expects %d", len(raw), elems)
	}
	return raw, nil
}

func dumpResult(out_dirpath string, result *protocol.Result) error {
	report_json, err := json.MarshalIndent(result.Report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	report_file_dumper := new(misc.FileDumper)
	report_file_dumper.Init(filepath.Join(out_dirpath, "report.json"))
	report_file_dumper.WriteBytes(report_json)

	output_file_dumper := new(misc.FileDumper)
	output_file_dumper.Init(filepath.Join(out_dirpath, "output.bin"))
	output_file_dumper.WriteBytes(result.Output)

	klog.InfoS("simulation complete",
		"model", result.Report.ModelID,
		"cycles", result.Report.TotalCycles,
		"energy_pj", result.Report.EstimatedEnergyPj,
		"skip_ratio", result.Report.SkipRatio())
	return nil
}

func InitCommandLineParser() *misc.CommandLineParser {
	command_line_parser := new(misc.CommandLineParser)
	command_line_parser.Init()

	command_line_parser.AddOption(misc.STRING, "model", "mlp", "model identifier to fetch from the store")
	command_line_parser.AddOption(misc.STRING, "input_filepath", "", "raw int8 input tensor; zero-filled when empty")
	command_line_parser.AddOption(misc.STRING, "out_dirpath", "out", "directory for report and output dumps")
	command_line_parser.AddOption(
		misc.STRING,
		"power_mode",
		string(misc.DefaultPowerMode()),
		"operating point (nominal|low)",
	)

	command_line_parser.AddOption(misc.INT, "array_rows", "16", "systolic array rows")
	command_line_parser.AddOption(misc.INT, "array_cols", "16", "systolic array columns")
	command_line_parser.AddOption(misc.INT, "pe_register_bits", "8", "weight register width per processing element")

	command_line_parser.AddOption(misc.INT, "weight_cache_banks", "16", "number of weight cache banks")
	command_line_parser.AddOption(misc.INT, "weight_cache_bank_bytes", "65536", "capacity of one weight cache bank")
	command_line_parser.AddOption(misc.INT, "activation_half_bytes", "32768", "capacity of one activation buffer half")
	command_line_parser.AddOption(misc.INT, "cache_fill_bandwidth", "64", "weight cache fill bytes per cycle")
	command_line_parser.AddOption(misc.INT, "activation_bandwidth", "64", "activation DMA bytes per cycle")
	command_line_parser.AddOption(misc.INT, "flash_bandwidth", "16", "bulk storage staging bytes per cycle")
	command_line_parser.AddOption(misc.INT, "flash_base_latency", "32", "bulk storage access latency in cycles")

	command_line_parser.AddOption(misc.INT, "nominal_clock_mhz", "800", "nominal clock rate")
	command_line_parser.AddOption(misc.INT, "low_power_clock_mhz", "200", "low-power clock rate")
	command_line_parser.AddOption(misc.INT, "stall_budget_cycles", "1024", "stall cycles tolerated before back-off")
	command_line_parser.AddOption(misc.INT, "stall_retry_limit", "3", "back-off retries before a hardware fault")

	command_line_parser.AddOption(misc.FLOAT, "energy_per_mac_pj", "0.25", "energy per multiply-accumulate in picojoules")
	command_line_parser.AddOption(misc.FLOAT, "energy_per_byte_pj", "1.5", "energy per transferred byte in picojoules")

	command_line_parser.AddOption(misc.INT, "schedule_cache_size", "8", "compiled schedules kept per mapper")

	command_line_parser.AddOption(misc.STRING, "model_store", "local", "model store backend (local|gcs)")
	command_line_parser.AddOption(misc.STRING, "model_store_path", "models", "directory of the local model store")
	command_line_parser.AddOption(misc.STRING, "model_store_bucket", "", "GCS bucket of the remote model store")

	return command_line_parser
}

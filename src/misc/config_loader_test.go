package misc

import (
	"testing"
)

func runtimeParser() *CommandLineParser {
	parser := new(CommandLineParser)
	parser.Init()

	parser.AddOption(INT, "array_rows", "16", "")
	parser.AddOption(INT, "array_cols", "16", "")
	parser.AddOption(INT, "pe_register_bits", "8", "")
	parser.AddOption(INT, "weight_cache_banks", "16", "")
	parser.AddOption(INT, "weight_cache_bank_bytes", "65536", "")
	parser.AddOption(INT, "activation_half_bytes", "32768", "")
	parser.AddOption(INT, "cache_fill_bandwidth", "64", "")
	parser.AddOption(INT, "activation_bandwidth", "64", "")
	parser.AddOption(INT, "flash_bandwidth", "16", "")
	parser.AddOption(INT, "flash_base_latency", "32", "")
	parser.AddOption(INT, "nominal_clock_mhz", "800", "")
	parser.AddOption(INT, "low_power_clock_mhz", "200", "")
	parser.AddOption(INT, "stall_budget_cycles", "1024", "")
	parser.AddOption(INT, "stall_retry_limit", "3", "")
	parser.AddOption(FLOAT, "energy_per_mac_pj", "0.25", "")
	parser.AddOption(FLOAT, "energy_per_byte_pj", "1.5", "")
	parser.AddOption(INT, "schedule_cache_size", "8", "")
	parser.AddOption(STRING, "model_store", "local", "")
	parser.AddOption(STRING, "model_store_path", "models", "")
	parser.AddOption(STRING, "model_store_bucket", "", "")

	return parser
}

func TestFloatParameter(t *testing.T) {
	t.Parallel()

	parser := new(CommandLineParser)
	parser.Init()
	parser.AddOption(FLOAT, "energy_per_mac_pj", "0.25", "")
	parser.Parse([]string{"npusim", "--energy_per_mac_pj", "0.5"})

	if value := parser.FloatParameter("energy_per_mac_pj"); value != 0.5 {
		t.Fatalf("energy_per_mac_pj: %v != 0.5", value)
	}
}

func TestFloatParameterDefault(t *testing.T) {
	t.Parallel()

	parser := new(CommandLineParser)
	parser.Init()
	parser.AddOption(FLOAT, "energy_per_byte_pj", "1.5", "")

	if value := parser.FloatParameter("energy_per_byte_pj"); value != 1.5 {
		t.Fatalf("energy_per_byte_pj: %v != 1.5", value)
	}
}

func TestFloatParameterRejectsIntOption(t *testing.T) {
	t.Parallel()

	parser := new(CommandLineParser)
	parser.Init()
	parser.AddOption(INT, "array_rows", "16", "")

	defer func() {
		if recover() == nil {
			t.Fatalf("FloatParameter on an int option did not panic")
		}
	}()
	parser.FloatParameter("array_rows")
}

func TestConfigureRuntimeThreadsEnergyCoefficients(t *testing.T) {
	defer func(saved runtimeConfig) {
		globalConfig = saved
	}(globalConfig)

	parser := runtimeParser()
	parser.Parse([]string{
		"npusim",
		"--energy_per_mac_pj", "0.75",
		"--energy_per_byte_pj", "2.25",
	})

	ConfigureRuntime(parser)

	config_loader := new(ConfigLoader)
	config_loader.Init()

	if value := config_loader.EnergyPerMacPj(); value != 0.75 {
		t.Fatalf("EnergyPerMacPj: %v != 0.75", value)
	}
	if value := config_loader.EnergyPerBytePj(); value != 2.25 {
		t.Fatalf("EnergyPerBytePj: %v != 2.25", value)
	}
}

func TestValidateRejectsNonPositiveEnergy(t *testing.T) {
	parser := runtimeParser()
	parser.Parse([]string{"npusim", "--energy_per_mac_pj", "0"})

	validator := new(CommandLineValidator)
	validator.Init(parser)

	defer func() {
		if recover() == nil {
			t.Fatalf("Validate accepted energy_per_mac_pj of 0")
		}
	}()
	validator.Validate()
}

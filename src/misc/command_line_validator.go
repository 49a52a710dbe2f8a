package misc

import (
	"errors"
	"fmt"
)

type CommandLineValidator struct {
	command_line_parser *CommandLineParser
}

func (this *CommandLineValidator) Init(command_line_parser *CommandLineParser) {
	this.command_line_parser = command_line_parser
}

func (this *CommandLineValidator) Validate() {
	if this.command_line_parser.IntParameter("array_rows") <= 0 {
		err := errors.New("array_rows <= 0")
		panic(err)
	}

	if this.command_line_parser.IntParameter("array_cols") <= 0 {
		err := errors.New("array_cols <= 0")
		panic(err)
	}

	if this.command_line_parser.IntParameter("pe_register_bits") <= 0 {
		err := errors.New("pe_register_bits <= 0")
		panic(err)
	}

	if this.command_line_parser.IntParameter("weight_cache_banks") <= 0 {
		err := errors.New("weight_cache_banks <= 0")
		panic(err)
	}

	if this.command_line_parser.IntParameter("weight_cache_bank_bytes") <= 0 {
		err := errors.New("weight_cache_bank_bytes <= 0")
		panic(err)
	}

	if this.command_line_parser.IntParameter("activation_half_bytes") <= 0 {
		err := errors.New("activation_half_bytes <= 0")
		panic(err)
	}

	if this.command_line_parser.IntParameter("cache_fill_bandwidth") <= 0 {
		err := errors.New("cache_fill_bandwidth <= 0")
		panic(err)
	}

	if this.command_line_parser.IntParameter("activation_bandwidth") <= 0 {
		err := errors.New("activation_bandwidth <= 0")
		panic(err)
	}

	if this.command_line_parser.IntParameter("flash_bandwidth") <= 0 {
		err := errors.New("flash_bandwidth <= 0")
		panic(err)
	}

	if this.command_line_parser.IntParameter("nominal_clock_mhz") <= 0 {
		err := errors.New("nominal_clock_mhz <= 0")
		panic(err)
	}

	if this.command_line_parser.IntParameter("low_power_clock_mhz") <= 0 {
		err := errors.New("low_power_clock_mhz <= 0")
		panic(err)
	}

	if this.command_line_parser.IntParameter("low_power_clock_mhz") > this.command_line_parser.IntParameter("nominal_clock_mhz") {
		err := errors.New("low_power_clock_mhz > nominal_clock_mhz")
		panic(err)
	}

	if this.command_line_parser.IntParameter("stall_budget_cycles") <= 0 {
		err := errors.New("stall_budget_cycles <= 0")
		panic(err)
	}

	if this.command_line_parser.IntParameter("stall_retry_limit") < 0 {
		err := errors.New("stall_retry_limit < 0")
		panic(err)
	}

	if this.command_line_parser.FloatParameter("energy_per_mac_pj") <= 0 {
		err := errors.New("energy_per_mac_pj <= 0")
		panic(err)
	}

	if this.command_line_parser.FloatParameter("energy_per_byte_pj") <= 0 {
		err := errors.New("energy_per_byte_pj <= 0")
		panic(err)
	}

	model_store := this.command_line_parser.StringParameter("model_store")
	switch model_store {
	case "local", "gcs":
	default:
		err := fmt.Errorf("model_store %s is not supported", model_store)
		panic(err)
	}

	if model_store == "gcs" && this.command_line_parser.StringParameter("model_store_bucket") == "" {
		err := errors.New("model_store_bucket is required when model_store is gcs")
		panic(err)
	}
}

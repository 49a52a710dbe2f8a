package misc

type ConfigLoader struct{}

type runtimeConfig struct {
	arrayRows           int
	arrayCols           int
	peRegisterBits      int
	weightCacheBanks    int
	weightCacheBankSize int64
	activationHalfSize  int64
	cacheFillBandwidth  int64
	activationBandwidth int64
	flashBandwidth      int64
	flashBaseLatency    int
	nominalClockMhz     int
	lowPowerClockMhz    int
	stallBudgetCycles   int
	stallRetryLimit     int
	energyPerMacPj      float64
	energyPerBytePj     float64
	scheduleCacheSize   int
	modelStoreKind      string
	modelStorePath      string
	modelStoreBucket    string
}

// Defaults describe a 16x16 int8 array with a 16-way banked weight cache.
// Everything here can be overridden from the command line; simulator code
// never reads these values directly.
var globalConfig = runtimeConfig{
	arrayRows:           16,
	arrayCols:           16,
	peRegisterBits:      8,
	weightCacheBanks:    16,
	weightCacheBankSize: 64 * 1024,
	activationHalfSize:  32 * 1024,
	cacheFillBandwidth:  64,
	activationBandwidth: 64,
	flashBandwidth:      16,
	flashBaseLatency:    32,
	nominalClockMhz:     800,
	lowPowerClockMhz:    200,
	stallBudgetCycles:   1024,
	stallRetryLimit:     3,
	energyPerMacPj:      0.25,
	energyPerBytePj:     1.5,
	scheduleCacheSize:   8,
	modelStoreKind:      "local",
	modelStorePath:      "models",
	modelStoreBucket:    "",
}

// ConfigureRuntime copies command-line parameters into the runtime config.
func ConfigureRuntime(parser *CommandLineParser) {
	if parser == nil {
		return
	}

	globalConfig.arrayRows = int(parser.IntParameter("array_rows"))
	globalConfig.arrayCols = int(parser.IntParameter("array_cols"))
	globalConfig.peRegisterBits = int(parser.IntParameter("pe_register_bits"))
	globalConfig.weightCacheBanks = int(parser.IntParameter("weight_cache_banks"))
	globalConfig.weightCacheBankSize = parser.IntParameter("weight_cache_bank_bytes")
	globalConfig.activationHalfSize = parser.IntParameter("activation_half_bytes")
	globalConfig.cacheFillBandwidth = parser.IntParameter("cache_fill_bandwidth")
	globalConfig.activationBandwidth = parser.IntParameter("activation_bandwidth")
	globalConfig.flashBandwidth = parser.IntParameter("flash_bandwidth")
	globalConfig.flashBaseLatency = int(parser.IntParameter("flash_base_latency"))
	globalConfig.nominalClockMhz = int(parser.IntParameter("nominal_clock_mhz"))
	globalConfig.lowPowerClockMhz = int(parser.IntParameter("low_power_clock_mhz"))
	globalConfig.stallBudgetCycles = int(parser.IntParameter("stall_budget_cycles"))
	globalConfig.stallRetryLimit = int(parser.IntParameter("stall_retry_limit"))
	globalConfig.energyPerMacPj = parser.FloatParameter("energy_per_mac_pj")
	globalConfig.energyPerBytePj = parser.FloatParameter("energy_per_byte_pj")
	globalConfig.scheduleCacheSize = int(parser.IntParameter("schedule_cache_size"))
	globalConfig.modelStoreKind = parser.StringParameter("model_store")
	globalConfig.modelStorePath = parser.StringParameter("model_store_path")
	globalConfig.modelStoreBucket = parser.StringParameter("model_store_bucket")
}

func (this *ConfigLoader) Init() {}

func (this *ConfigLoader) ArrayRows() int {
	return globalConfig.arrayRows
}

func (this *ConfigLoader) ArrayCols() int {
	return globalConfig.arrayCols
}

func (this *ConfigLoader) PeRegisterBits() int {
	return globalConfig.peRegisterBits
}

func (this *ConfigLoader) WeightCacheBanks() int {
	return globalConfig.weightCacheBanks
}

func (this *ConfigLoader) WeightCacheBankSize() int64 {
	return globalConfig.weightCacheBankSize
}

func (this *ConfigLoader) ActivationHalfSize() int64 {
	return globalConfig.activationHalfSize
}

// CacheFillBandwidth is the weight-cache fill throughput in bytes per cycle.
func (this *ConfigLoader) CacheFillBandwidth() int64 {
	return globalConfig.cacheFillBandwidth
}

// ActivationBandwidth is the activation DMA throughput in bytes per cycle.
func (this *ConfigLoader) ActivationBandwidth() int64 {
	return globalConfig.activationBandwidth
}

// FlashBandwidth is the bulk-storage staging throughput in bytes per cycle.
func (this *ConfigLoader) FlashBandwidth() int64 {
	return globalConfig.flashBandwidth
}

func (this *ConfigLoader) FlashBaseLatency() int {
	return globalConfig.flashBaseLatency
}

func (this *ConfigLoader) NominalClockMhz() int {
	return globalConfig.nominalClockMhz
}

func (this *ConfigLoader) LowPowerClockMhz() int {
	return globalConfig.lowPowerClockMhz
}

func (this *ConfigLoader) StallBudgetCycles() int {
	return globalConfig.stallBudgetCycles
}

func (this *ConfigLoader) StallRetryLimit() int {
	return globalConfig.stallRetryLimit
}

func (this *ConfigLoader) EnergyPerMacPj() float64 {
	return globalConfig.energyPerMacPj
}

func (this *ConfigLoader) EnergyPerBytePj() float64 {
	return globalConfig.energyPerBytePj
}

func (this *ConfigLoader) ScheduleCacheSize() int {
	return globalConfig.scheduleCacheSize
}

func (this *ConfigLoader) ModelStoreKind() string {
	return globalConfig.modelStoreKind
}

func (this *ConfigLoader) ModelStorePath() string {
	return globalConfig.modelStorePath
}

func (this *ConfigLoader) ModelStoreBucket() string {
	return globalConfig.modelStoreBucket
}

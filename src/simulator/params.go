package simulator

import (
	"npusim/src/mapper"
	"npusim/src/misc"
)

// Params bundles every static hardware parameter of the simulated device.
// Capacities, latencies and bank counts come from configuration; nothing in
// the execution path hard-codes them.
type Params struct {
	Array mapper.ArrayParams

	ActivationBandwidth int64
	FlashBandwidth      int64
	FlashBaseLatency    int

	NominalClockMhz  int
	LowPowerClockMhz int

	StallBudgetCycles int
	StallRetryLimit   int

	EnergyPerMacPj  float64
	EnergyPerBytePj float64

	ScheduleCacheEntries int
}

// LoadParams pulls device parameters from the shared ConfigLoader.
func LoadParams(loader *misc.ConfigLoader) Params {
	params := Params{}

	params.Array.Rows = loader.ArrayRows()
	params.Array.Cols = loader.ArrayCols()
	params.Array.RegisterBits = loader.PeRegisterBits()
	params.Array.CacheBanks = loader.WeightCacheBanks()
	params.Array.CacheBankBytes = loader.WeightCacheBankSize()
	params.Array.ActivationHalfBytes = loader.ActivationHalfSize()
	params.Array.CacheFillBandwidth = loader.CacheFillBandwidth()

	params.ActivationBandwidth = loader.ActivationBandwidth()
	params.FlashBandwidth = loader.FlashBandwidth()
	params.FlashBaseLatency = loader.FlashBaseLatency()
	params.NominalClockMhz = loader.NominalClockMhz()
	params.LowPowerClockMhz = loader.LowPowerClockMhz()
	params.StallBudgetCycles = loader.StallBudgetCycles()
	params.StallRetryLimit = loader.StallRetryLimit()
	params.EnergyPerMacPj = loader.EnergyPerMacPj()
	params.EnergyPerBytePj = loader.EnergyPerBytePj()
	params.ScheduleCacheEntries = loader.ScheduleCacheSize()

	return params
}

func (p Params) dmaCycles(bytes int64) int64 {
	bandwidth := p.ActivationBandwidth
	if bandwidth <= 0 {
		bandwidth = 1
	}
	cycles := (bytes + bandwidth - 1) / bandwidth
	if cycles < 1 {
		cycles = 1
	}
	return cycles
}

// backoffPenalty is the cycle cost of one stall retry at the reduced clock.
// Throughput reduction is modeled by stretching the retry window by the
// nominal-to-low clock ratio.
func (p Params) backoffPenalty() int64 {
	budget := int64(p.StallBudgetCycles)
	if budget <= 0 {
		budget = 1
	}
	low := p.LowPowerClockMhz
	if low <= 0 {
		low = 1
	}
	ratio := int64(p.NominalClockMhz) / int64(low)
	if ratio < 1 {
		ratio = 1
	}
	return budget * ratio
}

package misc

// PowerMode selects the operating point of the simulated device. Additional
// points can be added as the power model grows.
type PowerMode string

const (
	// PowerModeNominal runs the array at the nominal clock.
	PowerModeNominal PowerMode = "nominal"
	// PowerModeLow runs the array at the reduced low-power clock.
	PowerModeLow PowerMode = "low"
)

// DefaultPowerMode returns the mode used when no explicit selection is made.
func DefaultPowerMode() PowerMode {
	return PowerModeNominal
}

// PowerModeFromString converts an arbitrary string into a PowerMode. When the
// provided value is unknown the bool return will be false.
func PowerModeFromString(value string) (PowerMode, bool) {
	switch value {
	case string(PowerModeNominal):
		return PowerModeNominal, true
	case string(PowerModeLow):
		return PowerModeLow, true
	default:
		return "", false
	}
}

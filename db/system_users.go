package db

// System actors recorded on calls excluded by the engine.
// Audit rows for automatic decisions keep a null actor; these labels only
// populate the call's excluded_by column so reports can show who acted.
const (
	// SystemActorWeather represents the weather matcher
	SystemActorWeather = "system:weather"

	// SystemActorPeakLoad represents the peak call load matcher
	SystemActorPeakLoad = "system:peak-load"

	// SystemActorEngine represents any other engine action (e.g. releases)
	SystemActorEngine = "system:auto-exclusion"
)

// GetSystemActorByStrategy returns the system actor label for a strategy key
func GetSystemActorByStrategy(strategy string) string {
	switch strategy {
	case "WEATHER":
		return SystemActorWeather
	case "PEAK_CALL_LOAD":
		return SystemActorPeakLoad
	default:
		return SystemActorEngine // Default fallback
	}
}

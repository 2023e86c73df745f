package types

// DayAdjustment holds the per-day energy totals before and after cloud
// correction.
type DayAdjustment struct {
	OriginalWh float64 `json:"originalWh"`
	AdjustedWh float64 `json:"adjustedWh"`
}

// AdjustmentStats captures diagnostics from a single cloud-correction pass.
// They describe the most recent pass only and are recomputed every cycle.
type AdjustmentStats struct {
	// AverageCloudCover is the mean cover (%) over the first 24 hourly
	// samples of the cloud feed.
	AverageCloudCover float64 `json:"averageCloudCover"`
	// TotalEnergyBeforeWh is the sum of all hourly energy values before the
	// correction was applied.
	TotalEnergyBeforeWh float64 `json:"totalEnergyBeforeWh"`
	// TotalEnergyAfterWh is the same sum after the correction.
	TotalEnergyAfterWh float64 `json:"totalEnergyAfterWh"`
	// AdjustmentPercentage is the signed percentage change of the total
	// energy, negative when the correction reduced the estimate.
	AdjustmentPercentage float64 `json:"adjustmentPercentage"`
	// DailyAdjustments maps a date (YYYY-MM-DD in the forecast's offset) to
	// the original and adjusted energy totals for that day.
	DailyAdjustments map[string]DayAdjustment `json:"dailyAdjustments"`
}

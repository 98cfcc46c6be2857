package services

import "statwatch/internal/models"

// CalculateRates converts chronologically ordered counter samples of a single device
// into one rate sample per adjacent pair.
//
// Pairs whose timestamps do not advance are skipped. A counter that went backwards
// (reset or overflow) reports a zero rate for that interval; no wrap-around
// reconstruction is attempted.
func CalculateRates(samples []models.CounterSample) []models.RateSample {
	if len(samples) < 2 {
		return []models.RateSample{}
	}

	result := make([]models.RateSample, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		prev := samples[i-1]
		curr := samples[i]

		deltaSeconds := curr.CollectedAt.Sub(prev.CollectedAt).Seconds()
		if deltaSeconds <= 0 {
			continue
		}

		rates := make(map[string]float64, len(curr.Counters))
		for name, value := range curr.Counters {
			before, ok := prev.Counters[name]
			if !ok {
				continue
			}
			rates[name] = counterRate(before, value, deltaSeconds)
		}

		result = append(result, models.RateSample{
			DeviceID:  curr.DeviceID,
			Timestamp: curr.CollectedAt,
			Rates:     rates,
		})
	}

	return result
}

// counterRate returns the per-second delta, clamped at zero
func counterRate(prev, curr uint64, seconds float64) float64 {
	if curr < prev {
		return 0
	}
	return float64(curr-prev) / seconds
}

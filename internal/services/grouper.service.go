package services

import (
	"sort"

	"statwatch/internal/models"
)

// DeviceKeyFunc extracts the device identity of a sample
type DeviceKeyFunc func(models.CounterSample) string

// SampleDeviceID is the default DeviceKeyFunc
func SampleDeviceID(s models.CounterSample) string {
	return s.DeviceID
}

// GroupAndCalculateRates partitions samples by device, restores chronological order
// inside each partition and derives rates per device independently.
// Samples without a device identity are grouped under models.UnknownDevice.
func GroupAndCalculateRates(samples []models.CounterSample, key DeviceKeyFunc) map[string][]models.RateSample {
	if key == nil {
		key = SampleDeviceID
	}

	grouped := make(map[string][]models.CounterSample)
	for _, s := range samples {
		device := key(s)
		if device == "" {
			device = models.UnknownDevice
		}
		grouped[device] = append(grouped[device], s)
	}

	result := make(map[string][]models.RateSample, len(grouped))
	for device, deviceSamples := range grouped {
		sort.SliceStable(deviceSamples, func(i, j int) bool {
			return deviceSamples[i].CollectedAt.Before(deviceSamples[j].CollectedAt)
		})
		rates := CalculateRates(deviceSamples)
		for i := range rates {
			rates[i].DeviceID = device
		}
		result[device] = rates
	}

	return result
}

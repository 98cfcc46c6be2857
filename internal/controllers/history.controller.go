package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"statwatch/internal/models"
	"statwatch/internal/services"
)

// maxHistoryRecords bounds one rate derivation request
const maxHistoryRecords = 100000

// DeriveNetworkRates turns stored interface counter rows into per-interface rates.
// POST /rates/network with []NetworkIORecord
func DeriveNetworkRates(c *gin.Context) {
	var records []models.NetworkIORecord
	if !bindRecords(c, &records) {
		return
	}

	samples := make([]models.CounterSample, len(records))
	for i, r := range records {
		samples[i] = r.CounterSample()
	}
	respondRates(c, models.MetricNetwork, len(records), samples)
}

// DeriveDiskIORates turns stored disk counter rows into per-disk rates.
// POST /rates/disk-io with []DiskIORecord
func DeriveDiskIORates(c *gin.Context) {
	var records []models.DiskIORecord
	if !bindRecords(c, &records) {
		return
	}

	samples := make([]models.CounterSample, len(records))
	for i, r := range records {
		samples[i] = r.CounterSample()
	}
	respondRates(c, models.MetricDiskIO, len(records), samples)
}

func bindRecords[T any](c *gin.Context, records *[]T) bool {
	if err := c.ShouldBindJSON(records); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid records: " + err.Error()})
		return false
	}
	if len(*records) > maxHistoryRecords {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many records"})
		return false
	}
	return true
}

func respondRates(c *gin.Context, kind models.MetricKind, count int, samples []models.CounterSample) {
	c.JSON(http.StatusOK, gin.H{
		"kind":    kind,
		"records": count,
		"data":    services.GroupAndCalculateRates(samples, services.SampleDeviceID),
	})
}

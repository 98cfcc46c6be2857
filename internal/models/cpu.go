package models

// CPUStatus represents CPU usage information
type CPUStatus struct {
	Model        string    `json:"model"`
	Cores        int       `json:"cores"`
	Frequency    float64   `json:"frequency"` // MHz
	Usage        float64   `json:"usage"`
	PerCoreUsage []float64 `json:"perCoreUsage,omitempty"`
}

// LoadAverage represents the 1/5/15 minute run-queue averages
type LoadAverage struct {
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`
}

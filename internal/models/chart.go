package models

import (
	"encoding/json"
	"time"
)

// ChartCapacity is the number of points a chart buffer retains
const ChartCapacity = 30

// ChartPoint is one plotted rate pair
type ChartPoint struct {
	Time   time.Time `json:"time"`
	Value1 float64   `json:"value1"`
	Value2 float64   `json:"value2"`
}

// ChartBuffer is a bounded sequence of chart points, oldest evicted first.
// Append returns a new buffer and never writes into the receiver's backing array,
// so a buffer stored in a published snapshot can be read without locking.
type ChartBuffer struct {
	points []ChartPoint
}

// NewChartBuffer builds a buffer from points, keeping only the newest ChartCapacity
func NewChartBuffer(points ...ChartPoint) ChartBuffer {
	if len(points) > ChartCapacity {
		points = points[len(points)-ChartCapacity:]
	}
	out := make([]ChartPoint, len(points))
	copy(out, points)
	return ChartBuffer{points: out}
}

// Append adds p, evicting the oldest point once the buffer is full
func (b ChartBuffer) Append(p ChartPoint) ChartBuffer {
	start := 0
	if len(b.points) >= ChartCapacity {
		start = len(b.points) - ChartCapacity + 1
	}
	next := make([]ChartPoint, 0, len(b.points)-start+1)
	next = append(next, b.points[start:]...)
	next = append(next, p)
	return ChartBuffer{points: next}
}

// Len returns the number of buffered points
func (b ChartBuffer) Len() int {
	return len(b.points)
}

// Points returns a copy of the buffered points in chronological order
func (b ChartBuffer) Points() []ChartPoint {
	out := make([]ChartPoint, len(b.points))
	copy(out, b.points)
	return out
}

func (b ChartBuffer) MarshalJSON() ([]byte, error) {
	if b.points == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(b.points)
}

func (b *ChartBuffer) UnmarshalJSON(data []byte) error {
	var points []ChartPoint
	if err := json.Unmarshal(data, &points); err != nil {
		return err
	}
	*b = NewChartBuffer(points...)
	return nil
}

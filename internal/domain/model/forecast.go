// Package model contains domain models passed between layers.
package model

import "time"

// DefaultHorizon is used when a request does not name a horizon.
const DefaultHorizon = 7

// MaxHorizon bounds the horizon a single request may ask for.
const MaxHorizon = 366

// Record is one raw history entry as decoded from the request.
// Numbers arrive as json.Number; fields may be missing or of any JSON type.
type Record map[string]any

// Observation is one day of revenue.
type Observation struct {
	Date  time.Time // calendar date, UTC midnight
	Value float64   // revenue; NaN when the record carried no value
}

// Series is an ascending, stable-sorted sequence of observations owned by
// exactly one forecast invocation.
type Series []Observation

// Values returns the observation values in series order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, o := range s {
		out[i] = o.Value
	}
	return out
}

// Request is the decoded worker input.
type Request struct {
	HistoricalData []Record `json:"historical_data" validate:"required,min=1"`
	Horizon        *int     `json:"horizon" validate:"omitnil,min=1,max=366"`
}

// HorizonOrDefault returns the requested horizon, or DefaultHorizon when absent.
func (r Request) HorizonOrDefault() int {
	if r.Horizon == nil {
		return DefaultHorizon
	}
	return *r.Horizon
}

// Response is the worker output envelope. Predictions is never nil so it
// always encodes as a JSON array.
type Response struct {
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Predictions []float64 `json:"predictions"`
	Model       string    `json:"model,omitempty"`
}

// Succeeded builds a success envelope for predictions produced by model.
func Succeeded(predictions []float64, model string) Response {
	if predictions == nil {
		predictions = []float64{}
	}
	return Response{Success: true, Predictions: predictions, Model: model}
}

// Failed builds a failure envelope carrying msg.
func Failed(msg string) Response {
	return Response{Success: false, Error: msg, Predictions: []float64{}}
}

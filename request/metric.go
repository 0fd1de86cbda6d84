// Package request models the JSON payload the Health Auto Export app uploads.
package request

import (
	"encoding/json"
	"fmt"
)

// MetricType decides how the samples of a metric are shaped.
type MetricType string

const (
	QtyMetricType       MetricType = "qty"
	MinMaxAvgMetricType MetricType = "min_max_avg"
	SleepMetricType     MetricType = "sleep"
)

// Auto Export metric names the gateway reads.
const (
	StepCount              = "step_count"
	HeartRate              = "heart_rate"
	ActiveEnergy           = "active_energy"
	WalkingRunningDistance = "walking_running_distance"
	SleepAnalysis          = "sleep_analysis"
	BodyMass               = "weight_body_mass"
	Height                 = "height"
)

var metricTypes = map[string]MetricType{
	HeartRate:     MinMaxAvgMetricType,
	SleepAnalysis: SleepMetricType,
}

// LookupMetricType returns the sample shape of the named metric. Anything not
// listed carries plain quantities.
func LookupMetricType(name string) MetricType {
	if t, ok := metricTypes[name]; ok {
		return t
	}
	return QtyMetricType
}

type Export struct {
	Metrics []Metric
}

type Metric struct {
	Name    string
	Unit    string
	Samples []Sample
}

// Sample is one data point of a metric.
type Sample interface {
	GetTimestamp() *Timestamp
}

type QtySample struct {
	Date   *Timestamp `json:"date"`
	Qty    float64    `json:"qty"`
	Source string     `json:"source"`
}

func (s *QtySample) GetTimestamp() *Timestamp { return s.Date }

type MinMaxAvgSample struct {
	Date   *Timestamp `json:"date"`
	Min    float64    `json:"Min"`
	Max    float64    `json:"Max"`
	Avg    float64    `json:"Avg"`
	Source string     `json:"source"`
}

func (s *MinMaxAvgSample) GetTimestamp() *Timestamp { return s.Date }

// SleepSample holds hours asleep and in bed for one night.
type SleepSample struct {
	Date        *Timestamp `json:"date"`
	Asleep      float64    `json:"asleep"`
	InBed       float64    `json:"inBed"`
	SleepSource string     `json:"sleepSource"`
	InBedSource string     `json:"inBedSource"`
}

func (s *SleepSample) GetTimestamp() *Timestamp { return s.Date }

// UnmarshalJSON also reads the aggregated sleep format, which reports
// totalSleep and leaves asleep empty.
func (s *SleepSample) UnmarshalJSON(data []byte) error {
	type sleepSampleAlias SleepSample
	temp := struct {
		*sleepSampleAlias
		TotalSleep float64 `json:"totalSleep"`
		Source     string  `json:"source"`
	}{
		sleepSampleAlias: (*sleepSampleAlias)(s),
	}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}
	if s.Asleep == 0 {
		s.Asleep = temp.TotalSleep
	}
	if s.SleepSource == "" {
		s.SleepSource = temp.Source
	}
	return nil
}

type rawExport struct {
	Data struct {
		Metrics []rawMetric `json:"metrics"`
	} `json:"data"`
}

type rawMetric struct {
	Name  string            `json:"name"`
	Units string            `json:"units"`
	Data  []json.RawMessage `json:"data"`
}

// Parse decodes an Auto Export payload. Sections other than metrics are
// ignored.
func Parse(b []byte) (*Export, error) {
	var raw rawExport
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse export: %w", err)
	}

	export := &Export{Metrics: make([]Metric, 0, len(raw.Data.Metrics))}
	for _, rm := range raw.Data.Metrics {
		metric := Metric{Name: rm.Name, Unit: rm.Units, Samples: make([]Sample, 0, len(rm.Data))}
		metricType := LookupMetricType(rm.Name)
		for i, data := range rm.Data {
			sample, err := parseSample(metricType, data)
			if err != nil {
				return nil, fmt.Errorf("metric %q sample %d: %w", rm.Name, i, err)
			}
			metric.Samples = append(metric.Samples, sample)
		}
		export.Metrics = append(export.Metrics, metric)
	}
	return export, nil
}

func parseSample(metricType MetricType, data json.RawMessage) (Sample, error) {
	var sample Sample
	switch metricType {
	case MinMaxAvgMetricType:
		sample = &MinMaxAvgSample{}
	case SleepMetricType:
		sample = &SleepSample{}
	default:
		sample = &QtySample{}
	}
	if err := json.Unmarshal(data, sample); err != nil {
		return nil, err
	}
	return sample, nil
}

// PopulatedMetrics returns the metrics that carry at least one sample.
func (e *Export) PopulatedMetrics() []Metric {
	populated := make([]Metric, 0, len(e.Metrics))
	for _, m := range e.Metrics {
		if len(m.Samples) > 0 {
			populated = append(populated, m)
		}
	}
	return populated
}

func (e *Export) TotalSamples() int {
	total := 0
	for _, m := range e.Metrics {
		total += len(m.Samples)
	}
	return total
}

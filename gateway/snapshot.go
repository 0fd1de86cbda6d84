package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// Snapshot is every metric for one calendar day, rounded for display.
type Snapshot struct {
	Date          Day     `json:"date"`
	Steps         float64 `json:"steps"`
	HeartRate     float64 `json:"heart_rate"`
	ActiveEnergy  float64 `json:"active_energy"`
	Distance      float64 `json:"distance"`
	SleepHours    float64 `json:"sleep_hours"`
	Weight        float64 `json:"weight"`
	Height        float64 `json:"height"`
	BodyMassIndex float64 `json:"body_mass_index"`
	// Err is set when the day could not be collected; every value is then zero.
	Err string `json:"error,omitempty"`
}

// Summary totals a range of snapshots.
type Summary struct {
	Days              int     `json:"days"`
	TotalSteps        float64 `json:"total_steps"`
	TotalDistance     float64 `json:"total_distance"`
	TotalActiveEnergy float64 `json:"total_active_energy"`
	TotalSleepHours   float64 `json:"total_sleep_hours"`
	AverageHeartRate  float64 `json:"average_heart_rate"`
}

// CollectDay reads all seven metrics for day concurrently. A metric with no
// data counts as zero; any other failure fails the whole day.
func (g *Gateway) CollectDay(ctx context.Context, day Day) (Snapshot, error) {
	var steps, heartRate, activeEnergy, distance, sleep, weight, height float64

	eg, ctx := errgroup.WithContext(ctx)
	read := func(kind Kind, dst *float64) {
		eg.Go(func() error {
			v, err := g.Query(ctx, kind, day)
			if err != nil && !errors.Is(err, ErrNoData) {
				return err
			}
			*dst = v
			return nil
		})
	}
	read(Steps, &steps)
	read(HeartRate, &heartRate)
	read(ActiveEnergy, &activeEnergy)
	read(Distance, &distance)
	read(Sleep, &sleep)
	read(Weight, &weight)
	read(Height, &height)

	if err := eg.Wait(); err != nil {
		return Snapshot{Date: day}, err
	}

	return Snapshot{
		Date:          day,
		Steps:         math.Round(steps),
		HeartRate:     roundTenth(heartRate),
		ActiveEnergy:  math.Round(activeEnergy),
		Distance:      math.Round(distance),
		SleepHours:    roundTenth(sleep),
		Weight:        roundTenth(weight),
		Height:        math.Round(height),
		BodyMassIndex: roundTenth(BodyMassIndex(weight, height)),
	}, nil
}

// CollectRange collects every day from start to end inclusive, one day at a
// time. It refuses to start unless health data is available and every kind is
// granted. After that, a day that fails is kept as a zero-filled snapshot
// carrying the error.
func (g *Gateway) CollectRange(ctx context.Context, start, end Day) ([]Snapshot, error) {
	if !start.Valid() || !end.Valid() {
		return nil, fmt.Errorf("invalid range %s to %s", start, end)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("range start %s is after end %s", start, end)
	}
	if err := g.ready(ctx); err != nil {
		return nil, err
	}

	var snapshots []Snapshot
	for day := start; !end.Before(day); day = day.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snapshot, err := g.CollectDay(ctx, day)
		if err != nil {
			snapshot = Snapshot{Date: day, Err: err.Error()}
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

// Summarize totals steps, distance, active energy and sleep, and averages
// heart rate over every snapshot, including zero-filled ones.
func Summarize(snapshots []Snapshot) Summary {
	s := Summary{Days: len(snapshots)}
	if len(snapshots) == 0 {
		return s
	}
	var heartRate float64
	for _, day := range snapshots {
		s.TotalSteps += day.Steps
		s.TotalDistance += day.Distance
		s.TotalActiveEnergy += day.ActiveEnergy
		s.TotalSleepHours += day.SleepHours
		heartRate += day.HeartRate
	}
	s.AverageHeartRate = roundTenth(heartRate / float64(len(snapshots)))
	return s
}

// BodyMassIndex computes kg/m² from weight in kilograms and height in
// centimetres. It is zero unless both are positive.
func BodyMassIndex(weight, height float64) float64 {
	if weight <= 0 || height <= 0 {
		return 0
	}
	m := height / 100
	return weight / (m * m)
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

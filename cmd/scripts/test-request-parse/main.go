package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joeecarter/health-gateway/request"
)

// gatewayMetrics are the Auto Export metrics the gateway reads by default.
var gatewayMetrics = []string{
	request.StepCount,
	request.HeartRate,
	request.ActiveEnergy,
	request.WalkingRunningDistance,
	request.SleepAnalysis,
	request.BodyMass,
	request.Height,
}

func main() {
	file := flag.String("file", "export.json", "Auto Export JSON file to parse")
	flag.Parse()

	jsonData, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", *file, err)
	}

	export, err := request.Parse(jsonData)
	if err != nil {
		log.Fatalf("Failed to parse request: %v", err)
	}

	fmt.Printf("Total metrics: %d (%d populated), total samples: %d\n",
		len(export.Metrics), len(export.PopulatedMetrics()), export.TotalSamples())

	byName := make(map[string]request.Metric, len(export.Metrics))
	for _, m := range export.Metrics {
		byName[m.Name] = m
	}

	for _, name := range gatewayMetrics {
		m, ok := byName[name]
		if !ok || len(m.Samples) == 0 {
			fmt.Printf("%-26s no samples\n", name)
			continue
		}
		first := m.Samples[0].GetTimestamp()
		last := m.Samples[len(m.Samples)-1].GetTimestamp()
		fmt.Printf("%-26s %5d samples (%s) type=%s", name, len(m.Samples), m.Unit, request.LookupMetricType(name))
		if first != nil && last != nil {
			fmt.Printf(" from %s to %s", first, last)
		}
		fmt.Println()
	}

	fmt.Println("Request parsed successfully!")
}

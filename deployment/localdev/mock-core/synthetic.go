package main

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/miradorstack/mirador-trainer/internal/repo"
)

type indicatorSpec struct {
	name  string
	layer string
	base  float64
	noise float64
	fault float64
}

var indicatorSpecs = []indicatorSpec{
	{name: "cpu_usage", layer: "CENTOS", base: 22, noise: 3, fault: 70},
	{name: "load_avg", layer: "CENTOS", base: 1.2, noise: 0.2, fault: 3.5},
	{name: "heap_used_mb", layer: "JVM", base: 512, noise: 24, fault: 420},
	{name: "live_threads", layer: "JVM", base: 80, noise: 4, fault: 45},
	{name: "open_sessions", layer: "APPLICATION", base: 40, noise: 6, fault: -25},
}

var services = []struct {
	name     string
	duration float64
	jitter   float64
}{
	{name: "login", duration: 1.5, jitter: 0.4},
	{name: "search", duration: 2.5, jitter: 0.6},
	{name: "checkout", duration: 3.5, jitter: 0.8},
}

// syntheticRun generates a deterministic run with faults injected at regular
// intervals. Samples inside a fault's duration drift by the indicator's fault
// offset and the calls overlapping it fail.
func syntheticRun(index, samples int, start time.Time) (repo.RunRecord, time.Time) {
	rng := rand.New(rand.NewSource(int64(index) + 1))
	id := fmt.Sprintf("exp-%d", index)
	rec := repo.RunRecord{ID: id, Name: fmt.Sprintf("synthetic experiment %d", index)}

	const faultDuration = 5
	period := 30 + 10*index
	faulty := func(sec int) bool {
		return sec >= period && sec%period < faultDuration
	}

	for sec := period; sec < samples; sec += period {
		rec.Injections = append(rec.Injections, repo.InjectionRecord{
			Timestamp:       stamp(start, sec),
			Description:     fmt.Sprintf("stress burst %d", sec/period),
			DurationSeconds: faultDuration,
		})
	}

	previous := make(map[string]float64, len(indicatorSpecs))
	for sec := 0; sec < samples; sec++ {
		for _, spec := range indicatorSpecs {
			value := spec.base + rng.NormFloat64()*spec.noise
			if faulty(sec) {
				value += spec.fault
			}
			value = math.Max(0, value)
			ts := stamp(start, sec)
			rec.Observations = append(rec.Observations, repo.ObservationRecord{
				Timestamp: ts, Indicator: spec.name, Layer: spec.layer, Category: "PLAIN",
				Value: strconv.FormatFloat(value, 'f', 3, 64),
			})
			if prev, ok := previous[spec.name]; ok {
				rec.Observations = append(rec.Observations, repo.ObservationRecord{
					Timestamp: ts, Indicator: spec.name, Layer: spec.layer, Category: "DIFFERENCE",
					Value: strconv.FormatFloat(value-prev, 'f', 3, 64),
				})
			}
			previous[spec.name] = value
		}
	}

	for i, svc := range services {
		for sec := i; sec < samples; sec += 4 + i {
			elapsed := svc.duration + rng.NormFloat64()*svc.jitter
			code := "200"
			if faulty(sec) {
				elapsed *= 3
				if rng.Intn(2) == 0 {
					code = "500"
				}
			}
			end := sec + int(math.Ceil(math.Max(1, elapsed)))
			call := repo.CallRecord{Service: svc.name, Start: stamp(start, sec), ResponseCode: code}
			if end < samples {
				call.End = stamp(start, end)
			} else {
				call.ResponseCode = ""
			}
			rec.Calls = append(rec.Calls, call)
		}

		rec.Stats = append(rec.Stats, repo.StatRecord{Service: svc.name, Avg: svc.duration, Std: svc.jitter})
		for _, spec := range indicatorSpecs {
			rec.Stats = append(rec.Stats,
				repo.StatRecord{Service: svc.name, Indicator: spec.name, Scope: "all", Avg: spec.base, Std: spec.noise},
				repo.StatRecord{Service: svc.name, Indicator: spec.name, Scope: "first", Avg: spec.base, Std: spec.noise * 1.5},
			)
		}
	}

	for _, layer := range []string{"CENTOS", "JVM", "APPLICATION"} {
		for i := 0; i < 10; i++ {
			rec.Timings = append(rec.Timings, repo.TimingRecord{Kind: "probe", Layer: layer, Value: 2 + rng.Intn(6)})
		}
	}
	return rec, start
}

func stamp(start time.Time, sec int) string {
	return start.Add(time.Duration(sec) * time.Second).UTC().Format(time.RFC3339)
}

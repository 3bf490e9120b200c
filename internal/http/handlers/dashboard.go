package handlers

import (
	"math"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/wolfman30/hmpv-lab-platform/internal/labtests"
)

const storeLatencyMetric = "hmpv_store_operation_latency_seconds"

// Dashboard is the admin overview payload.
type Dashboard struct {
	GeneratedAt  string                  `json:"generatedAt"`
	Summary      labtests.Summary        `json:"summary"`
	ByStatus     map[labtests.Status]int `json:"byStatus"`
	ByTest       map[string]int          `json:"byTest"`
	StoreLatency []OperationLatency      `json:"storeLatency"`
	Recent       []AppointmentView       `json:"recent"`
}

// OperationLatency summarises the store latency histogram for one operation.
type OperationLatency struct {
	Operation string  `json:"operation"`
	Count     int64   `json:"count"`
	P50Ms     float64 `json:"p50Ms"`
	P95Ms     float64 `json:"p95Ms"`
}

const recentAppointments = 5

func buildDashboard(appts []labtests.Appointment, gatherer prometheus.Gatherer, now time.Time) Dashboard {
	byStatus := make(map[labtests.Status]int, len(labtests.Statuses))
	for _, s := range labtests.Statuses {
		byStatus[s] = 0
	}
	byTest := map[string]int{}
	for _, a := range appts {
		byStatus[a.Status]++
		byTest[a.TestID]++
	}

	recent := make([]labtests.Appointment, len(appts))
	copy(recent, appts)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	if len(recent) > recentAppointments {
		recent = recent[:recentAppointments]
	}

	return Dashboard{
		GeneratedAt:  now.UTC().Format(time.RFC3339),
		Summary:      labtests.Summarize(appts),
		ByStatus:     byStatus,
		ByTest:       byTest,
		StoreLatency: snapshotStoreLatency(gatherer),
		Recent:       viewsOf(recent),
	}
}

func snapshotStoreLatency(gatherer prometheus.Gatherer) []OperationLatency {
	out := []OperationLatency{}
	if gatherer == nil {
		return out
	}
	mfs, err := gatherer.Gather()
	if err != nil {
		return out
	}

	var family *dto.MetricFamily
	for _, mf := range mfs {
		if mf != nil && mf.GetName() == storeLatencyMetric {
			family = mf
			break
		}
	}
	if family == nil {
		return out
	}

	for _, metric := range family.Metric {
		h := metric.GetHistogram()
		if h == nil || h.GetSampleCount() == 0 {
			continue
		}
		uppers := make([]float64, 0, len(h.Bucket))
		cumulative := make(map[float64]uint64, len(h.Bucket))
		for _, b := range h.Bucket {
			if b == nil {
				continue
			}
			uppers = append(uppers, b.GetUpperBound())
			cumulative[b.GetUpperBound()] = b.GetCumulativeCount()
		}
		sort.Float64s(uppers)
		total := h.GetSampleCount()
		out = append(out, OperationLatency{
			Operation: labelValue(metric, "operation"),
			Count:     int64(total),
			P50Ms:     histogramQuantile(0.50, total, uppers, cumulative) * 1000.0,
			P95Ms:     histogramQuantile(0.95, total, uppers, cumulative) * 1000.0,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

func labelValue(metric *dto.Metric, name string) string {
	for _, lp := range metric.Label {
		if lp != nil && lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// histogramQuantile linearly interpolates within the bucket holding rank q*total.
func histogramQuantile(q float64, total uint64, uppers []float64, cumulative map[float64]uint64) float64 {
	if total == 0 || q <= 0 || len(uppers) == 0 {
		return 0
	}
	rank := q * float64(total)
	var prevUpper float64
	var prevCount uint64
	for _, upper := range uppers {
		count := cumulative[upper]
		if float64(count) >= rank {
			if math.IsInf(upper, 1) {
				return prevUpper
			}
			inBucket := count - prevCount
			if inBucket == 0 {
				return upper
			}
			frac := (rank - float64(prevCount)) / float64(inBucket)
			return prevUpper + (upper-prevUpper)*frac
		}
		if !math.IsInf(upper, 1) {
			prevUpper = upper
		}
		prevCount = count
	}
	return prevUpper
}

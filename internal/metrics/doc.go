// Package metrics aggregates per-request measurements for reporting and thresholds.
//
// [Collector] keeps HDR histograms of request latency and schedule lag (how late a
// request started relative to its tick), plus counts by status class, status code and
// error type:
//
//	collector := metrics.NewCollector()
//	collector.Record(metrics.Sample{Latency: lat, Lag: lag, StatusCode: 200})
//	stats := collector.Stats(elapsed)
//
// [Exporter] serves the live scheduler counters and a latency histogram per status
// class in the Prometheus exposition format while a run is in progress.
//
// Both are safe for concurrent use.
package metrics

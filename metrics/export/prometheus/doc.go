// Package prometheus renders engine metrics in the Prometheus text
// exposition format. Counters are named goidentity_*_total; the single
// histogram is goidentity_login_latency_seconds. Nothing is registered in a
// global registry; callers mount Handler.
package prometheus

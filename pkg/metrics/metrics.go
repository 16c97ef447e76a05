// Package metrics exposes the Prometheus registry shared by the proxy.
// Metrics are defined in their respective packages (client, cache,
// pagination, aggregate, service, ratelimit, server) and registered
// through promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the proxy.
var Registry = prometheus.DefaultRegisterer

// Handler returns the /metrics scrape handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Metrics Documentation
//
// Upstream Metrics (pkg/client):
//   - gamepass_upstream_requests_total{host, status} (Counter): Requests by upstream host and HTTP status
//   - gamepass_upstream_request_duration_seconds{host} (Histogram): Request duration by upstream host
//   - gamepass_upstream_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - gamepass_upstream_retries_total{error_class} (Counter): Retry attempts by error class
//   - gamepass_upstream_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - gamepass_upstream_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Throttle Metrics (pkg/ratelimit):
//   - gamepass_upstream_quota_remaining (Gauge): Last reported upstream quota
//   - gamepass_rate_limit_blocks_total (Counter): Requests blocked during a 429 cooldown
//   - gamepass_rate_limit_throttles_total (Counter): Requests delayed because the quota is low
//
// Pagination Metrics (pkg/pagination):
//   - gamepass_pages_fetched_total{resource} (Counter): Pages fetched by resource
//   - gamepass_page_cap_hits_total{resource} (Counter): Walks truncated by the page cap
//   - gamepass_page_failures_total{resource, policy} (Counter): Failed pages by resource and policy
//
// Aggregation Metrics (pkg/aggregate):
//   - gamepass_aggregation_duration_seconds{kind, outcome} (Histogram): Aggregation duration
//   - gamepass_collections_per_aggregation (Histogram): Collections fanned out per aggregation
//   - gamepass_duplicates_dropped_total (Counter): Passes dropped by deduplication
//   - gamepass_collections_skipped_total (Counter): Collections skipped under the lenient policy
//
// Cache Metrics (pkg/cache):
//   - gamepass_cache_hits_total{backend} (Counter): Cache hits by backend
//   - gamepass_cache_misses_total{backend} (Counter): Cache misses by backend
//   - gamepass_cache_entries{backend} (Gauge): Stored results in the memory backend
//   - gamepass_cache_evictions_total{backend} (Counter): Expired entries removed
//   - gamepass_cache_errors_total{operation} (Counter): Cache operation errors
//
// Service Metrics (pkg/service):
//   - gamepass_lookups_total{kind, result} (Counter): Lookups by kind and result (hit, miss, error)
//   - gamepass_coalesced_requests_total{kind} (Counter): Lookups that joined an in-flight aggregation
//
// HTTP Metrics (internal/server):
//   - gamepass_http_requests_total{route, status} (Counter): Served requests
//   - gamepass_http_request_duration_seconds{route} (Histogram): Handler latency
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(gamepass_cache_hits_total[5m])) /
//   (sum(rate(gamepass_cache_hits_total[5m])) + sum(rate(gamepass_cache_misses_total[5m])))
//
//   # Truncated Walks
//   sum by (resource) (rate(gamepass_page_cap_hits_total[1h]))
//
//   # Upstream Error Rate
//   rate(gamepass_upstream_errors_total[5m])
//
//   # P95 Aggregation Latency
//   histogram_quantile(0.95, rate(gamepass_aggregation_duration_seconds_bucket[5m]))

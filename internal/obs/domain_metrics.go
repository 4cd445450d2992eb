package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// UpstreamRequestsTotal counts calls to the backend API by resource and outcome.
	UpstreamRequestsTotal *prometheus.CounterVec
	// UpstreamLatency records backend call latency in milliseconds.
	UpstreamLatency *prometheus.HistogramVec
	// DiscountResolutionsTotal counts resolved prices by the source of the winning discount.
	DiscountResolutionsTotal *prometheus.CounterVec
	// CacheLookupsTotal counts snapshot cache lookups by cache name and result.
	CacheLookupsTotal *prometheus.CounterVec
	// CatalogWarmTotal counts catalog warm-up task outcomes.
	CatalogWarmTotal *prometheus.CounterVec
	// DBQueryDuration records audit store statement latency.
	DBQueryDuration *prometheus.HistogramVec
	// RateLimitedTotal counts 429 responses per limiter.
	RateLimitedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		UpstreamRequestsTotal = registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Count of backend API calls by resource, method and result.",
		}, []string{"resource", "method", "result"}))
		UpstreamLatency = registerCollector(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_ms",
			Help:      "Latency for backend API calls in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"resource"}))
		DiscountResolutionsTotal = registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_resolutions_total",
			Help:      "Count of resolved product prices by discount source.",
		}, []string{"source"}))
		CacheLookupsTotal = registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Count of snapshot cache lookups by cache and result.",
		}, []string{"cache", "result"}))
		CatalogWarmTotal = registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_warm_total",
			Help:      "Count of catalog warm-up task outcomes.",
		}, []string{"result"}))
		DBQueryDuration = registerCollector(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_ms",
			Help:      "Postgres statement latency in milliseconds by operation.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 1000},
		}, []string{"operation", "result"}))
		RateLimitedTotal = registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limiter.",
		}, []string{"limiter"}))
	})
}

// ObserveUpstream records a backend call. Safe to call before registration.
func ObserveUpstream(resource, method, result string, millis float64) {
	if UpstreamRequestsTotal != nil {
		UpstreamRequestsTotal.WithLabelValues(resource, method, result).Inc()
	}
	if UpstreamLatency != nil {
		UpstreamLatency.WithLabelValues(resource).Observe(millis)
	}
}

// ObserveResolution records the source of a resolved price.
func ObserveResolution(source string) {
	if DiscountResolutionsTotal != nil {
		DiscountResolutionsTotal.WithLabelValues(source).Inc()
	}
}

// ObserveCache records a cache hit or miss.
func ObserveCache(cache string, hit bool) {
	if CacheLookupsTotal == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// ObserveWarm records a catalog warm-up outcome.
func ObserveWarm(result string) {
	if CatalogWarmTotal != nil {
		CatalogWarmTotal.WithLabelValues(result).Inc()
	}
}

// ObserveQuery records a Postgres statement duration.
func ObserveQuery(operation string, failed bool, millis float64) {
	if DBQueryDuration == nil {
		return
	}
	result := "ok"
	if failed {
		result = "error"
	}
	DBQueryDuration.WithLabelValues(operation, result).Observe(millis)
}

// ObserveRateLimited records one rejected request for limiter.
func ObserveRateLimited(limiter string) {
	if RateLimitedTotal == nil {
		return
	}
	if limiter == "" {
		limiter = "default"
	}
	RateLimitedTotal.WithLabelValues(limiter).Inc()
}

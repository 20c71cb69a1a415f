package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteComputeTotal counts quote computations by outcome.
	QuoteComputeTotal *prometheus.CounterVec
	// QuoteInvalidLines counts order lines rejected during quote computation.
	QuoteInvalidLines prometheus.Counter
	// IngestRowsTotal tracks catalog ingestion rows by result.
	IngestRowsTotal *prometheus.CounterVec
	// IngestBatchRetries counts retried catalog upload batches.
	IngestBatchRetries prometheus.Counter
	// ReindexRunsTotal counts search reindex runs by outcome.
	ReindexRunsTotal *prometheus.CounterVec
	// SearchFallbackTotal counts style searches served from the database because
	// the Redis index was unavailable.
	SearchFallbackTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteComputeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_compute_total",
			Help:      "Count of quote computations by outcome.",
		}, []string{"result"})
		QuoteInvalidLines = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_invalid_lines_total",
			Help:      "Number of order lines that failed style/color resolution.",
		})
		IngestRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_rows_total",
			Help:      "Catalog ingestion rows processed, by result.",
		}, []string{"result"})
		IngestBatchRetries = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_batch_retries_total",
			Help:      "Number of catalog upload batches that were retried.",
		})
		ReindexRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_reindex_runs_total",
			Help:      "Search index rebuild runs by outcome.",
		}, []string{"result"})
		SearchFallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_db_fallback_total",
			Help:      "Style searches answered from Postgres because Redis was unavailable.",
		})

		mustRegisterCollector(reg, QuoteComputeTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuoteComputeTotal = v
			}
		})
		mustRegisterCollector(reg, QuoteInvalidLines, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				QuoteInvalidLines = v
			}
		})
		mustRegisterCollector(reg, IngestRowsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				IngestRowsTotal = v
			}
		})
		mustRegisterCollector(reg, IngestBatchRetries, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				IngestBatchRetries = v
			}
		})
		mustRegisterCollector(reg, ReindexRunsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ReindexRunsTotal = v
			}
		})
		mustRegisterCollector(reg, SearchFallbackTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				SearchFallbackTotal = v
			}
		})
	})
}

// Package progress reports indexing and query-time progress, both to an
// in-process subscriber (for a CLI progress bar) and to a Prometheus
// registry for long-running daemon deployments.
package progress

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stage identifies which phase of the indexing pipeline a report describes.
type Stage string

const (
	StageScanning  Stage = "scanning"
	StageChunking  Stage = "chunking"
	StageEmbedding Stage = "embedding"
	StageUpserting Stage = "upserting"
)

// IndexReport is one progress update emitted during an indexing run.
type IndexReport struct {
	RepoID        string
	Stage         Stage
	FilesTotal    int
	FilesDone     int
	ChunksIndexed int
}

// QueryReport is one completed query, used for both the Prometheus
// histogram and the zero-result rate callers may want to surface.
type QueryReport struct {
	TenantID    string
	Latency     time.Duration
	ResultCount int
}

// Reporter fans indexing and query events out to both an optional
// in-process subscriber channel and the Prometheus collectors registered
// at construction.
type Reporter struct {
	ch chan IndexReport

	filesIndexed   *prometheus.CounterVec
	chunksIndexed  *prometheus.CounterVec
	queryLatency   *prometheus.HistogramVec
	queryResults   *prometheus.HistogramVec
	zeroResultHits *prometheus.CounterVec
	syncState      *prometheus.GaugeVec
}

// NewReporter builds a Reporter and registers its collectors with reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer in production.
func NewReporter(reg prometheus.Registerer) *Reporter {
	r := &Reporter{
		ch: make(chan IndexReport, 256),
		filesIndexed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codectx",
			Subsystem: "index",
			Name:      "files_indexed_total",
			Help:      "Files successfully indexed, by repository.",
		}, []string{"repo_id"}),
		chunksIndexed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codectx",
			Subsystem: "index",
			Name:      "chunks_indexed_total",
			Help:      "Chunks embedded and upserted, by repository.",
		}, []string{"repo_id"}),
		queryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "codectx",
			Subsystem: "query",
			Name:      "latency_seconds",
			Help:      "Search latency, by tenant.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5},
		}, []string{"tenant_id"}),
		queryResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "codectx",
			Subsystem: "query",
			Name:      "result_count",
			Help:      "Result count per search, by tenant.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}, []string{"tenant_id"}),
		zeroResultHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codectx",
			Subsystem: "query",
			Name:      "zero_result_total",
			Help:      "Searches that returned no hits, by tenant.",
		}, []string{"tenant_id"}),
		syncState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "codectx",
			Subsystem: "sync",
			Name:      "repo_state",
			Help:      "1 if the repository is currently in the named sync state, else 0.",
		}, []string{"repo_id", "state"}),
	}

	if reg != nil {
		reg.MustRegister(r.filesIndexed, r.chunksIndexed, r.queryLatency, r.queryResults, r.zeroResultHits, r.syncState)
	}

	return r
}

// Events returns the channel IndexReports are published to. Callers that
// don't consume it (e.g. non-interactive daemon runs) are fine: Publish
// never blocks on a full or unread channel.
func (r *Reporter) Events() <-chan IndexReport {
	return r.ch
}

// PublishIndex records an indexing progress update against Prometheus and
// forwards it to Events(), dropping the update if no one is listening.
func (r *Reporter) PublishIndex(rep IndexReport) {
	r.filesIndexed.WithLabelValues(rep.RepoID).Add(float64(rep.FilesDone))
	r.chunksIndexed.WithLabelValues(rep.RepoID).Add(float64(rep.ChunksIndexed))

	select {
	case r.ch <- rep:
	default:
	}
}

// PublishQuery records a completed query's latency and result count.
func (r *Reporter) PublishQuery(rep QueryReport) {
	r.queryLatency.WithLabelValues(rep.TenantID).Observe(rep.Latency.Seconds())
	r.queryResults.WithLabelValues(rep.TenantID).Observe(float64(rep.ResultCount))
	if rep.ResultCount == 0 {
		r.zeroResultHits.WithLabelValues(rep.TenantID).Inc()
	}
}

// SetSyncState zeroes every other known state for repoID and sets state to
// 1, so a Prometheus query for the active state is a simple equality
// filter rather than a max-over-time.
func (r *Reporter) SetSyncState(repoID string, state string, knownStates []string) {
	for _, s := range knownStates {
		if s == state {
			r.syncState.WithLabelValues(repoID, s).Set(1)
		} else {
			r.syncState.WithLabelValues(repoID, s).Set(0)
		}
	}
}

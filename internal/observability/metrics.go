package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	proofAnchoredGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "proof_service",
		Subsystem: "persistence",
		Name:      "last_proof_anchored_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity record persisted after ledger acceptance.",
	})
	submitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "proof_service",
		Subsystem: "ledger",
		Name:      "submit_duration_seconds",
		Help:      "Time spent anchoring a fingerprint, including finality wait.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
	submitFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proof_service",
		Subsystem: "ledger",
		Name:      "submit_failures_total",
		Help:      "Ledger submission failures by kind (unavailable, rejected, timeout, orphaned).",
	}, []string{"kind"})
	verifyVerdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proof_service",
		Subsystem: "verifier",
		Name:      "verdicts_total",
		Help:      "Verification verdicts by outcome (valid, tampered, missing_anchor).",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(proofAnchoredGauge, submitDuration, submitFailures, verifyVerdicts)
}

// RecordProofAnchored updates the anchoring watermark gauge.
func RecordProofAnchored(ts time.Time) {
	if ts.IsZero() {
		return
	}
	proofAnchoredGauge.Set(float64(ts.Unix()))
}

// ObserveSubmit records the latency of one ledger submission.
func ObserveSubmit(d time.Duration) {
	submitDuration.Observe(d.Seconds())
}

// RecordSubmitFailure counts a failed submission by failure kind.
func RecordSubmitFailure(kind string) {
	submitFailures.WithLabelValues(kind).Inc()
}

// RecordVerdict counts a verification outcome. A record that fails the local
// recompute is "tampered"; one whose fingerprint never reached the ledger is
// "missing_anchor".
func RecordVerdict(result bool, existsInLedger bool) {
	switch {
	case result:
		verifyVerdicts.WithLabelValues("valid").Inc()
	case !existsInLedger:
		verifyVerdicts.WithLabelValues("missing_anchor").Inc()
	default:
		verifyVerdicts.WithLabelValues("tampered").Inc()
	}
}

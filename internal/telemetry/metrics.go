package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/trustedge/signhub"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Key pool metrics
	KeysLeasedTotal    metric.Int64Counter
	KeysReleasedTotal  metric.Int64Counter
	KeysDestroyedTotal metric.Int64Counter
	PoolExhaustedTotal metric.Int64Counter
	KeysGeneratedTotal metric.Int64Counter
	KeysReclaimedTotal metric.Int64Counter

	// Session metrics
	SessionsCreatedTotal metric.Int64Counter
	SessionsCleanedTotal metric.Int64Counter
	SessionExpiryRejects metric.Int64Counter

	// Signing metrics
	SignRequestsTotal        metric.Int64Counter
	SignFailuresTotal        metric.Int64Counter
	SignDuration             metric.Float64Histogram
	SignatureCountMismatches metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.KeysLeasedTotal, _ = meter.Int64Counter("signhub.keypool.leased.total",
		metric.WithDescription("Total pool keys leased"))
	m.KeysReleasedTotal, _ = meter.Int64Counter("signhub.keypool.released.total",
		metric.WithDescription("Total pool keys released back to their pool"))
	m.KeysDestroyedTotal, _ = meter.Int64Counter("signhub.keypool.destroyed.total",
		metric.WithDescription("Total one-time keys destroyed after use"))
	m.PoolExhaustedTotal, _ = meter.Int64Counter("signhub.keypool.exhausted.total",
		metric.WithDescription("Lease attempts that found no free key"))
	m.KeysGeneratedTotal, _ = meter.Int64Counter("signhub.keypool.generated.total",
		metric.WithDescription("Keys generated by replenishment"))
	m.KeysReclaimedTotal, _ = meter.Int64Counter("signhub.keypool.reclaimed.total",
		metric.WithDescription("Stale leases reclaimed by the background sweep"))

	m.SessionsCreatedTotal, _ = meter.Int64Counter("signhub.sessions.created.total",
		metric.WithDescription("Signing sessions created"))
	m.SessionsCleanedTotal, _ = meter.Int64Counter("signhub.sessions.cleaned.total",
		metric.WithDescription("Expired signing sessions cleaned up"))
	m.SessionExpiryRejects, _ = meter.Int64Counter("signhub.sessions.expiry_rejects.total",
		metric.WithDescription("Capacity checks rejected because the session expired"))

	m.SignRequestsTotal, _ = meter.Int64Counter("signhub.sign.requests.total",
		metric.WithDescription("Signing requests processed"))
	m.SignFailuresTotal, _ = meter.Int64Counter("signhub.sign.failures.total",
		metric.WithDescription("Signing requests that failed"))
	m.SignDuration, _ = meter.Float64Histogram("signhub.sign.duration.seconds",
		metric.WithDescription("End-to-end signing request duration"))
	m.SignatureCountMismatches, _ = meter.Int64Counter("signhub.sign.count_mismatches.total",
		metric.WithDescription("Backend responses with a signature count mismatch"))

	return m
}

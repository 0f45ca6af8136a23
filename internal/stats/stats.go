// Package stats tracks the Orchestrator's runtime counters (spec §4.8)
// and republishes them as OpenTelemetry observable gauges, following
// MrWong99-glyphoxa's otel/sdk/metric wiring rather than inventing a
// bespoke metrics endpoint.
package stats

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Stats holds the Orchestrator's process-local counters. All fields are
// accessed via sync/atomic so increments never need a lock; per spec §9
// these counters are explicitly process-local and not aggregated across
// a multi-process deployment.
//
// Field names follow spec §4.8 exactly (messagesSaved, requestsSent,
// translationsReceived, errors, poolFullRejections); the remaining
// counters are ambient additions the audio pipeline and caches need and
// have no named spec counterpart.
type Stats struct {
	startedAt time.Time

	messagesSaved         atomic.Int64
	requestsSent          atomic.Int64
	translationsReceived  atomic.Int64
	errors                atomic.Int64
	poolFullRejections    atomic.Int64
	processingTimeTotalMs atomic.Int64 // sum, for avgProcessingTime

	duplicatesIgnored  atomic.Int64
	audioJobsStarted   atomic.Int64
	audioJobsCompleted atomic.Int64
	consentDenials     atomic.Int64
	cacheHits          atomic.Int64
	cacheMisses        atomic.Int64
}

// New builds a Stats tracker with its clock started now.
func New() *Stats {
	return &Stats{startedAt: time.Now()}
}

// IncMessagesSaved counts one message persisted by handleNewMessage.
func (s *Stats) IncMessagesSaved() { s.messagesSaved.Add(1) }

// IncRequestsSent counts one dispatch to the bus (translation or audio job).
func (s *Stats) IncRequestsSent() { s.requestsSent.Add(1) }

// IncTranslationsReceived counts one successfully processed
// translationCompleted event, recording its reported processing time for
// the avgProcessingTime derived metric.
func (s *Stats) IncTranslationsReceived(processingTimeMs float64) {
	s.translationsReceived.Add(1)
	s.processingTimeTotalMs.Add(int64(processingTimeMs))
}

func (s *Stats) IncErrors()             { s.errors.Add(1) }
func (s *Stats) IncPoolFullRejections() { s.poolFullRejections.Add(1) }
func (s *Stats) IncDuplicatesIgnored()  { s.duplicatesIgnored.Add(1) }
func (s *Stats) IncAudioJobsStarted()   { s.audioJobsStarted.Add(1) }
func (s *Stats) IncAudioJobsCompleted() { s.audioJobsCompleted.Add(1) }
func (s *Stats) IncConsentDenials()     { s.consentDenials.Add(1) }
func (s *Stats) IncCacheHit()           { s.cacheHits.Add(1) }
func (s *Stats) IncCacheMiss()          { s.cacheMisses.Add(1) }

// AvgProcessingTimeMs is the derived metric spec §4.8 names:
// processingTimeTotalMs / translationsReceived, or zero if none yet.
func (s *Stats) AvgProcessingTimeMs() float64 {
	received := s.translationsReceived.Load()
	if received == 0 {
		return 0
	}
	return float64(s.processingTimeTotalMs.Load()) / float64(received)
}

// UptimeSeconds reports how long this Stats tracker has been running.
func (s *Stats) UptimeSeconds() float64 {
	return time.Since(s.startedAt).Seconds()
}

// MemoryUsageMB reports current heap usage via runtime.MemStats.
func (s *Stats) MemoryUsageMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.HeapAlloc) / (1024 * 1024)
}

// Snapshot is a point-in-time copy of every counter, suitable for
// logging or serving from a debug endpoint.
type Snapshot struct {
	MessagesSaved        int64
	RequestsSent         int64
	TranslationsReceived int64
	Errors               int64
	PoolFullRejections   int64
	AvgProcessingTimeMs  float64
	UptimeSeconds        float64
	MemoryUsageMB        float64

	DuplicatesIgnored  int64
	AudioJobsStarted   int64
	AudioJobsCompleted int64
	ConsentDenials     int64
	CacheHits          int64
	CacheMisses        int64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		MessagesSaved:        s.messagesSaved.Load(),
		RequestsSent:         s.requestsSent.Load(),
		TranslationsReceived: s.translationsReceived.Load(),
		Errors:               s.errors.Load(),
		PoolFullRejections:   s.poolFullRejections.Load(),
		AvgProcessingTimeMs:  s.AvgProcessingTimeMs(),
		UptimeSeconds:        s.UptimeSeconds(),
		MemoryUsageMB:        s.MemoryUsageMB(),
		DuplicatesIgnored:    s.duplicatesIgnored.Load(),
		AudioJobsStarted:     s.audioJobsStarted.Load(),
		AudioJobsCompleted:   s.audioJobsCompleted.Load(),
		ConsentDenials:       s.consentDenials.Load(),
		CacheHits:            s.cacheHits.Load(),
		CacheMisses:          s.cacheMisses.Load(),
	}
}

// RegisterOtelGauges exposes uptime and heap usage as OTel observable
// gauges on the given Meter, per SPEC_FULL.md §4's ambient metrics
// extension. Count-style counters stay plain struct fields rather than
// OTel counters, since spec §4.8 defines them as a queryable snapshot, not
// a push-metrics surface.
func (s *Stats) RegisterOtelGauges(meter metric.Meter) error {
	uptime, err := meter.Float64ObservableGauge("orchestrator_uptime_seconds")
	if err != nil {
		return err
	}
	heap, err := meter.Float64ObservableGauge("orchestrator_heap_alloc_mb")
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveFloat64(uptime, s.UptimeSeconds())
		o.ObserveFloat64(heap, s.MemoryUsageMB())
		return nil
	}, uptime, heap)
	return err
}

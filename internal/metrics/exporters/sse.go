// Package exporters pushes collected process resource samples to clients of
// the event stream.
package exporters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/streamproc/internal/events"
	"github.com/smazurov/streamproc/internal/metrics/collectors"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SampleSource provides the latest resource samples.
type SampleSource interface {
	Latest() []collectors.Sample
}

// SSEExporter publishes a ProcessStatsEvent per sampled process on every tick.
type SSEExporter struct {
	eventBus EventPublisher
	source   SampleSource
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus EventPublisher, source SampleSource, interval time.Duration) *SSEExporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &SSEExporter{
		eventBus: eventBus,
		source:   source,
		interval: interval,
	}
}

// Start begins the SSE export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop stops the SSE exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.publishSamples()
		}
	}
}

func (s *SSEExporter) publishSamples() {
	now := time.Now().Format(time.RFC3339)
	for _, sample := range s.source.Latest() {
		s.eventBus.Publish(events.ProcessStatsEvent{
			Name:       sample.Name,
			PID:        sample.PID,
			Stage:      sample.Stage,
			RSSBytes:   sample.RSSBytes,
			CPUSeconds: strconv.FormatFloat(sample.CPUSeconds, 'f', 2, 64),
			OpenFDs:    sample.OpenFDs,
			Timestamp:  now,
		})
	}
}

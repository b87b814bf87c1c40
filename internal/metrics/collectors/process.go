// Package collectors samples resource usage of supervised processes.
package collectors

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/procfs"
	"github.com/smazurov/streamproc/internal/logging"
	"github.com/smazurov/streamproc/internal/metrics"
	"github.com/smazurov/streamproc/internal/procs"
)

// Source lists the processes to sample.
type Source interface {
	Snapshot() []procs.Record
}

// Sample is the resource usage of one process at one point in time.
type Sample struct {
	Name       string
	Stage      int
	PID        int
	RSSBytes   int
	CPUSeconds float64
	OpenFDs    int
}

// ProcessCollector periodically reads /proc for every supervised process.
type ProcessCollector struct {
	logger   logging.Logger
	source   Source
	fs       procfs.FS
	interval time.Duration

	mu     sync.RWMutex
	latest []Sample

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessCollector creates a collector reading the procfs mounted at
// mountPoint (procfs.DefaultMountPoint when empty).
func NewProcessCollector(source Source, mountPoint string, interval time.Duration) (*ProcessCollector, error) {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ProcessCollector{
		logger:   logging.GetLogger("collector"),
		source:   source,
		fs:       fs,
		interval: interval,
	}, nil
}

// Start begins collecting.
func (c *ProcessCollector) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run()
}

// Stop stops the collector and waits for the loop to exit.
func (c *ProcessCollector) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// Latest returns the samples of the most recent pass.
func (c *ProcessCollector) Latest() []Sample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.latest)
}

func (c *ProcessCollector) run() {
	defer c.wg.Done()
	c.logger.Info("Starting process resource collection", "interval", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}

// Collect samples every supervised process once and updates the gauges.
// Processes that vanish between listing and reading are skipped.
func (c *ProcessCollector) Collect() []Sample {
	records := c.source.Snapshot()
	samples := make([]Sample, 0, len(records))
	for _, rec := range records {
		sample, err := c.sample(rec)
		if err != nil {
			c.logger.Debug("Failed to sample process", "pid", rec.PID, "name", rec.Name, "error", err)
			continue
		}
		samples = append(samples, sample)
	}

	metrics.ResetProcessResources()
	for _, s := range samples {
		metrics.SetProcessResources(s.Name, s.Stage, float64(s.RSSBytes), s.CPUSeconds, s.OpenFDs)
	}

	c.mu.Lock()
	c.latest = samples
	c.mu.Unlock()
	return slices.Clone(samples)
}

func (c *ProcessCollector) sample(rec procs.Record) (Sample, error) {
	proc, err := c.fs.Proc(rec.PID)
	if err != nil {
		return Sample{}, err
	}
	stat, err := proc.Stat()
	if err != nil {
		return Sample{}, err
	}
	fds, err := proc.FileDescriptorsLen()
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		Name:       rec.Name,
		Stage:      rec.Stage,
		PID:        rec.PID,
		RSSBytes:   stat.ResidentMemory(),
		CPUSeconds: stat.CPUTime(),
		OpenFDs:    fds,
	}, nil
}

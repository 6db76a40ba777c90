package metrics

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/procfs"

	"github.com/delegation-marketplace/stx-delegator/common/logging"
)

const (
	MetricCPUUTimeSeconds   = "delegator_node_cpu_utime_seconds"
	MetricCPUSTimeSeconds   = "delegator_node_cpu_stime_seconds"
	MetricMemRSSBytes       = "delegator_node_mem_rss_bytes"
	MetricOpenFileDescCount = "delegator_node_open_fds"

	// ClockTicks is getconf CLK_TCK
	ClockTicks = 100
)

var (
	utimeGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricCPUUTimeSeconds,
			Help: "CPU user time spent by the node as reported by /proc/<PID>/stat (seconds).",
		},
	)
	stimeGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricCPUSTimeSeconds,
			Help: "CPU system time spent by the node as reported by /proc/<PID>/stat (seconds).",
		},
	)
	rssGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricMemRSSBytes,
			Help: "Resident set size of the node as reported by /proc/<PID>/stat (bytes).",
		},
	)
	fdGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricOpenFileDescCount,
			Help: "Number of open file descriptors of the node.",
		},
	)

	resourceCollectors = []prometheus.Collector{utimeGauge, stimeGauge, rssGauge, fdGauge}
	resourceOnce       sync.Once
)

// ResourceCollector is a periodically updated resource metric source.
type ResourceCollector interface {
	// Name returns the collector name.
	Name() string

	// Update updates the collector's metrics.
	Update() error
}

type procCollector struct {
	pid int
}

func (c *procCollector) Name() string {
	return "proc"
}

func (c *procCollector) Update() error {
	proc, err := procfs.NewProc(c.pid)
	if err != nil {
		return fmt.Errorf("proc metric: failed to obtain proc object for PID %d: %w", c.pid, err)
	}
	procStat, err := proc.Stat()
	if err != nil {
		return fmt.Errorf("proc metric: failed to obtain procStat object %d: %w", c.pid, err)
	}

	utimeGauge.Set(float64(procStat.UTime) / float64(ClockTicks))
	stimeGauge.Set(float64(procStat.STime) / float64(ClockTicks))
	rssGauge.Set(float64(procStat.ResidentMemory()))

	fds, err := proc.FileDescriptorsLen()
	if err != nil {
		return fmt.Errorf("proc metric: failed to count file descriptors %d: %w", c.pid, err)
	}
	fdGauge.Set(float64(fds))

	return nil
}

// NewProcCollector constructs a new process resource collector reading
// from procfs.
func NewProcCollector() ResourceCollector {
	resourceOnce.Do(func() {
		prometheus.MustRegister(resourceCollectors...)
	})

	return &procCollector{
		pid: os.Getpid(),
	}
}

// resourceService periodically updates the resource collectors.
type resourceService struct {
	logger *logging.Logger

	interval   time.Duration
	collectors []ResourceCollector

	stopOnce sync.Once
	stopCh   chan struct{}
}

func (s *resourceService) Start() error {
	go s.worker()
	return nil
}

func (s *resourceService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *resourceService) worker() {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		for _, c := range s.collectors {
			if err := c.Update(); err != nil {
				s.logger.Debug("failed to update resource metrics",
					"collector", c.Name(),
					"err", err,
				)
			}
		}

		select {
		case <-s.stopCh:
			return
		case <-t.C:
		}
	}
}

func newResourceService(interval time.Duration) *resourceService {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &resourceService{
		logger:     logging.GetLogger("metrics/resource"),
		interval:   interval,
		collectors: []ResourceCollector{NewProcCollector()},
		stopCh:     make(chan struct{}),
	}
}

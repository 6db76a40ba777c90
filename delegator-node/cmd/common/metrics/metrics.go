// Package metrics implements a prometheus metrics service.
package metrics

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/delegation-marketplace/stx-delegator/common/service"
	"github.com/delegation-marketplace/stx-delegator/common/version"
	"github.com/delegation-marketplace/stx-delegator/config"
	metricsConfig "github.com/delegation-marketplace/stx-delegator/delegator-node/cmd/common/metrics/config"
)

const (
	// MetricUp is the name of the metric set while the node is running.
	MetricUp = "delegator_up"

	MetricsLabelSoftwareVersion = "software_version"

	MetricsModeNone = "none"
	MetricsModePull = "pull"
	MetricsModePush = "push"
)

// UpGauge is set to 1 while the node is running.
var UpGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: MetricUp,
		Help: "Is the delegator node running.",
	},
	[]string{MetricsLabelSoftwareVersion},
)

func newStubService() (service.BackgroundService, error) {
	return service.NewBaseBackgroundService("metrics"), nil
}

type pullService struct {
	service.BaseBackgroundService

	ln net.Listener
	s  *http.Server

	errCh chan error

	rsvc *resourceService
}

func (s *pullService) Start() error {
	if err := s.rsvc.Start(); err != nil {
		return err
	}

	go func() {
		if err := s.s.Serve(s.ln); err != nil && err != http.ErrServerClosed {
			s.errCh <- err
		}
	}()
	return nil
}

func (s *pullService) Stop() {
	s.rsvc.Stop()

	if s.s != nil {
		select {
		case err := <-s.errCh:
			if err != nil {
				s.Logger.Error("metrics terminated uncleanly",
					"err", err,
				)
			}
		default:
		}
		_ = s.s.Close()
		s.s = nil
		s.BaseBackgroundService.Stop()
	}
}

func (s *pullService) Cleanup() {
	if s.ln != nil {
		_ = s.ln.Close()
		s.ln = nil
	}
}

func newPullService(cfg *metricsConfig.Config) (service.BackgroundService, error) {
	svc := *service.NewBaseBackgroundService("metrics")

	svc.Logger.Debug("Metrics Server Params",
		"mode", MetricsModePull,
		"addr", cfg.Address,
	)

	ln, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, err
	}

	return &pullService{
		BaseBackgroundService: svc,
		ln:                    ln,
		s:                     &http.Server{Handler: promhttp.Handler(), ReadTimeout: 5 * time.Second},
		errCh:                 make(chan error, 1),
		rsvc:                  newResourceService(cfg.Interval),
	}, nil
}

type pushService struct {
	service.BaseBackgroundService

	pusher *push.Pusher

	addr     string
	jobName  string
	labels   map[string]string
	interval time.Duration

	rsvc *resourceService

	stopCh chan struct{}
	quitCh chan struct{}
}

func (s *pushService) Start() error {
	if err := s.rsvc.Start(); err != nil {
		return err
	}

	go s.worker()
	return nil
}

func (s *pushService) Stop() {
	close(s.stopCh)
}

func (s *pushService) Quit() <-chan struct{} {
	return s.quitCh
}

func (s *pushService) worker() {
	defer func() {
		s.rsvc.Stop()
		close(s.quitCh)
	}()

	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
		}

		if err := s.pusher.Push(); err != nil {
			s.Logger.Warn("Push: failed",
				"err", err,
			)

			// Once a pusher fails to push, it fails forever,
			// so re-create the pusher.
			s.initPusher(true)
		}
	}
}

func (s *pushService) initPusher(isReinit bool) {
	if !isReinit {
		s.Logger.Debug("initializing metrics push service",
			"mode", MetricsModePush,
			"addr", s.addr,
			"job_name", s.jobName,
			"labels", s.labels,
			"push_interval", s.interval,
		)
	}

	pusher := push.New(s.addr, s.jobName).Gatherer(prometheus.DefaultGatherer)
	for k, v := range s.labels {
		pusher = pusher.Grouping(k, v)
	}
	s.pusher = pusher
}

func newPushService(cfg *metricsConfig.Config) (service.BackgroundService, error) {
	svc := &pushService{
		BaseBackgroundService: *service.NewBaseBackgroundService("metrics"),
		addr:                  cfg.Address,
		jobName:               cfg.JobName,
		labels:                cfg.Labels,
		interval:              cfg.Interval,
		rsvc:                  newResourceService(cfg.Interval),
		stopCh:                make(chan struct{}),
		quitCh:                make(chan struct{}),
	}

	if svc.jobName == "" {
		return nil, fmt.Errorf("metrics: job_name required for push mode")
	}
	if svc.labels["instance"] == "" {
		return nil, fmt.Errorf("metrics: at least 'instance' key should be set for labels. Provided labels: %v", svc.labels)
	}

	svc.initPusher(false)

	return svc, nil
}

// New constructs a new metrics service.
func New() (service.BackgroundService, error) {
	cfg := config.GlobalConfig.Metrics

	mode := strings.ToLower(cfg.Mode)
	switch mode {
	case MetricsModeNone:
		return newStubService()
	case MetricsModePull:
		return newPullService(&cfg)
	case MetricsModePush:
		return newPushService(&cfg)
	default:
		return nil, fmt.Errorf("metrics: unsupported mode: '%v'", mode)
	}
}

// Enabled returns if metrics are enabled.
func Enabled() bool {
	return config.GlobalConfig.Metrics.Mode != MetricsModeNone
}

// MarkUp sets the up gauge for the running software version.
func MarkUp() {
	UpGauge.With(prometheus.Labels{MetricsLabelSoftwareVersion: version.SoftwareVersion}).Set(1)
}

func init() {
	prometheus.MustRegister(UpGauge)
}

// Package background implements utilities for managing background
// services.
package background

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"

	"github.com/delegation-marketplace/stx-delegator/common/logging"
	"github.com/delegation-marketplace/stx-delegator/common/service"
)

// ServiceManager manages a group of background services.
type ServiceManager struct {
	Ctx context.Context

	services []service.BackgroundService
	cleanups []service.BackgroundService
	termCh   chan service.BackgroundService
	termSvc  service.BackgroundService
	stopCh   chan struct{}

	cancelCtx context.CancelFunc

	logger *logging.Logger
}

// Register registers a background service.
func (m *ServiceManager) Register(srv service.BackgroundService) {
	m.services = append(m.services, srv)
}

// RegisterCleanupOnly registers a cleanup only background service.
func (m *ServiceManager) RegisterCleanupOnly(svc service.CleanupAble, name string) {
	m.cleanups = append(m.cleanups, service.NewCleanupOnlyService(svc, name))
}

// Start starts all registered services in registration order. Failures
// are collected and the remaining services are still started.
func (m *ServiceManager) Start() error {
	var result error
	for _, svc := range m.services {
		if err := svc.Start(); err != nil {
			m.logger.Error("failed to start service",
				"svc", svc.Name(),
				"err", err,
			)
			result = multierror.Append(result, err)
			continue
		}

		s := svc
		go func() {
			<-s.Quit()
			select {
			case m.termCh <- s:
			default:
			}
		}()
	}
	return result
}

// Wait waits for interruption via Stop, a signal, or a service
// terminating on its own, and then stops all services.
func (m *ServiceManager) Wait() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case m.termSvc = <-m.termCh:
		m.logger.Info("background task terminated, propagating")
	case <-sigCh:
		m.logger.Info("user requested termination")
	case <-m.stopCh:
		m.logger.Info("termination requested")
	}

	m.cancelCtx()

	// Stop in reverse registration order.
	for i := len(m.services) - 1; i >= 0; i-- {
		svc := m.services[i]
		if svc != m.termSvc {
			m.logger.Debug("stopping service",
				"svc", svc.Name(),
			)
			svc.Stop()
		}
	}
}

// Stop requests termination of all services.
func (m *ServiceManager) Stop() {
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
}

// Cleanup cleans up after all registered services.
func (m *ServiceManager) Cleanup() {
	m.logger.Debug("terminating, beginning cleanup")

	for i := len(m.services) - 1; i >= 0; i-- {
		m.services[i].Cleanup()
	}
	for i := len(m.cleanups) - 1; i >= 0; i-- {
		m.cleanups[i].Cleanup()
	}

	m.logger.Debug("finished cleanup")
}

// NewServiceManager creates a new ServiceManager.
func NewServiceManager(logger *logging.Logger) *ServiceManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &ServiceManager{
		Ctx:       ctx,
		termCh:    make(chan service.BackgroundService, 1),
		stopCh:    make(chan struct{}),
		cancelCtx: cancel,
		logger:    logger,
	}
}

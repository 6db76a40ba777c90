// Package service provides the lifecycle primitives shared by the node's
// background services.
package service

import (
	"sync"

	"github.com/delegation-marketplace/stx-delegator/common/logging"
)

// CleanupAble provides a Cleanup method.
type CleanupAble interface {
	// Cleanup performs the service specific post-termination cleanup.
	Cleanup()
}

// BackgroundService is a background service.
type BackgroundService interface {
	// Name returns the service name.
	Name() string

	// Start starts the service.
	Start() error

	// Stop halts the service. Stopping an already stopped service is a no-op.
	Stop()

	// Quit returns a channel that will be closed when the service terminates.
	Quit() <-chan struct{}

	CleanupAble
}

// BaseBackgroundService is a base implementation of BackgroundService.
type BaseBackgroundService struct {
	name        string
	quitChannel chan struct{}
	stopOnce    *sync.Once
	Logger      *logging.Logger
}

// Name returns the service name.
func (b *BaseBackgroundService) Name() string {
	return b.name
}

// Start starts the service.
func (b *BaseBackgroundService) Start() error {
	return nil
}

// Stop halts the service.
func (b *BaseBackgroundService) Stop() {
	b.stopOnce.Do(func() {
		close(b.quitChannel)
	})
}

// Quit returns a channel that will be closed when the service terminates.
func (b *BaseBackgroundService) Quit() <-chan struct{} {
	return b.quitChannel
}

// Cleanup performs the service specific post-termination cleanup.
func (b *BaseBackgroundService) Cleanup() {}

// NewBaseBackgroundService creates a new base background service implementation.
//
// The returned value may be copied into an embedding struct, the copies share
// the quit channel.
func NewBaseBackgroundService(name string) *BaseBackgroundService {
	return &BaseBackgroundService{
		name:        name,
		quitChannel: make(chan struct{}),
		stopOnce:    new(sync.Once),
		Logger:      logging.GetLogger(name),
	}
}

// cleanupOnlyService has nothing to run, so it is terminated from the start.
type cleanupOnlyService struct {
	BaseBackgroundService

	svc CleanupAble
}

func (s *cleanupOnlyService) Cleanup() {
	s.svc.Cleanup()
}

// NewCleanupOnlyService wraps a service as a cleanup only service.
func NewCleanupOnlyService(svc CleanupAble, name string) BackgroundService {
	s := &cleanupOnlyService{
		BaseBackgroundService: *NewBaseBackgroundService(name),
		svc:                   svc,
	}
	s.Stop()
	return s
}

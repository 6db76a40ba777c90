// Package grpc implements common gRPC related services and utilities.
package grpc

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/grpclog"
	"google.golang.org/grpc/keepalive"

	"github.com/delegation-marketplace/stx-delegator/common/logging"
	"github.com/delegation-marketplace/stx-delegator/common/service"
)

const (
	maxRecvMsgSize = 16 * 1024 * 1024
	maxSendMsgSize = 16 * 1024 * 1024
)

var (
	grpcMetricsOnce      sync.Once
	grpcGlobalLoggerOnce sync.Once

	grpcServerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delegator_grpc_server_calls",
			Help: "Number of gRPC calls.",
		},
		[]string{"call"},
	)
	grpcServerLatency = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "delegator_grpc_server_latency",
			Help: "gRPC call latency (seconds).",
		},
		[]string{"call"},
	)
	grpcServerStreamWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delegator_grpc_server_stream_writes",
			Help: "Number of gRPC stream writes.",
		},
		[]string{"call"},
	)
	grpcClientCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delegator_grpc_client_calls",
			Help: "Number of gRPC calls.",
		},
		[]string{"call"},
	)

	grpcCollectors = []prometheus.Collector{
		grpcClientCalls,
		grpcServerCalls,
		grpcServerLatency,
		grpcServerStreamWrites,
	}

	serverKeepAliveParams = keepalive.ServerParameters{
		MaxConnectionIdle: 600 * time.Second,
	}

	_ grpclog.LoggerV2          = (*grpcLogAdapter)(nil)
	_ service.BackgroundService = (*Server)(nil)
)

type grpcLogAdapter struct {
	logger    *logging.Logger
	reqLogger *logging.Logger

	verbosity int
	reqSeq    uint64
	streamSeq uint64
	isDebug   bool
}

func (l *grpcLogAdapter) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}

func (l *grpcLogAdapter) Infoln(args ...interface{}) {
	l.logger.Info(fmt.Sprintln(args...))
}

func (l *grpcLogAdapter) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *grpcLogAdapter) Warning(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}

func (l *grpcLogAdapter) Warningln(args ...interface{}) {
	l.logger.Warn(fmt.Sprintln(args...))
}

func (l *grpcLogAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *grpcLogAdapter) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}

func (l *grpcLogAdapter) Errorln(args ...interface{}) {
	l.logger.Error(fmt.Sprintln(args...))
}

func (l *grpcLogAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *grpcLogAdapter) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...),
		"fatal", true,
	)
}

func (l *grpcLogAdapter) Fatalln(args ...interface{}) {
	l.logger.Error(fmt.Sprintln(args...),
		"fatal", true,
	)
}

func (l *grpcLogAdapter) Fatalf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...),
		"fatal", true,
	)
}

func (l *grpcLogAdapter) V(level int) bool {
	return l.verbosity >= level
}

func (l *grpcLogAdapter) unaryLogger(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	seq := atomic.AddUint64(&l.reqSeq, 1)
	if l.isDebug {
		l.reqLogger.Debug("request",
			"method", info.FullMethod,
			"req_seq", seq,
			"req", req,
		)
	}

	grpcServerCalls.With(prometheus.Labels{"call": info.FullMethod}).Inc()

	start := time.Now()
	resp, err = handler(ctx, req)
	grpcServerLatency.With(prometheus.Labels{"call": info.FullMethod}).Observe(time.Since(start).Seconds())
	switch err {
	case nil:
		if l.isDebug {
			l.reqLogger.Debug("request succeeded",
				"method", info.FullMethod,
				"req_seq", seq,
				"resp", resp,
			)
		}
	default:
		// Rejected calls are part of normal operation.
		l.reqLogger.Debug("request failed",
			"method", info.FullMethod,
			"req_seq", seq,
			"err", err,
		)
	}

	return
}

func (l *grpcLogAdapter) streamLogger(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	seq := atomic.AddUint64(&l.streamSeq, 1)
	if l.isDebug {
		l.reqLogger.Debug("stream",
			"method", info.FullMethod,
			"stream_seq", seq,
		)
	}

	stream := &grpcStreamLogger{
		ServerStream: ss,
		logAdapter:   l,
		method:       info.FullMethod,
		seq:          seq,
	}

	grpcServerCalls.With(prometheus.Labels{"call": info.FullMethod}).Inc()

	err := handler(srv, stream)
	switch err {
	case nil:
		if l.isDebug {
			l.reqLogger.Debug("stream closed",
				"method", info.FullMethod,
				"stream_seq", seq,
			)
		}
	default:
		l.reqLogger.Error("stream closed (failure)",
			"method", info.FullMethod,
			"stream_seq", seq,
			"err", err,
		)
	}

	return err
}

func (l *grpcLogAdapter) unaryClientLogger(
	ctx context.Context,
	method string,
	req, rsp interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	seq := atomic.AddUint64(&l.reqSeq, 1)
	if l.isDebug {
		l.reqLogger.Debug("request",
			"method", method,
			"req_seq", seq,
			"req", req,
		)
	}

	grpcClientCalls.With(prometheus.Labels{"call": method}).Inc()

	err := invoker(ctx, method, req, rsp, cc, opts...)
	if err != nil && l.isDebug {
		l.reqLogger.Debug("request failed",
			"method", method,
			"req_seq", seq,
			"err", err,
		)
	}
	return err
}

func newGrpcLogAdapter(baseLogger *logging.Logger) *grpcLogAdapter {
	return &grpcLogAdapter{
		logger:    logging.GetLogger("grpc"),
		reqLogger: baseLogger,
		verbosity: 2,
		isDebug:   logging.GetLevel() == logging.LevelDebug,
	}
}

type grpcStreamLogger struct {
	grpc.ServerStream

	logAdapter *grpcLogAdapter

	method string
	seq    uint64
}

func (s *grpcStreamLogger) SendMsg(m interface{}) error {
	grpcServerStreamWrites.With(prometheus.Labels{"call": s.method}).Inc()
	err := s.ServerStream.SendMsg(m)

	if s.logAdapter.isDebug {
		switch err {
		case nil:
			s.logAdapter.reqLogger.Debug("SendMsg",
				"method", s.method,
				"stream_seq", s.seq,
				"message", m,
			)
		default:
			s.logAdapter.reqLogger.Debug("SendMsg failed",
				"method", s.method,
				"stream_seq", s.seq,
				"message", m,
				"err", err,
			)
		}
	}

	return err
}

// Server is a gRPC server service.
type Server struct {
	sync.Mutex
	service.BaseBackgroundService

	listenerCfgs     []listenerConfig
	listener         net.Listener
	startedListeners []net.Listener
	server           *grpc.Server
	errCh            chan error
}

// ServerConfig holds the configuration used for creating a server.
type ServerConfig struct {
	// Name of the server being constructed.
	Name string
	// Address is the interface address used for TCP servers.
	Address string
	// Port is the port used for TCP servers.
	Port uint16
	// Path is the path for a local UNIX socket server. Leave empty to
	// create a TCP server.
	Path string
	// Listener is an already bound listener to serve on instead of any
	// configured address.
	Listener net.Listener
	// CustomOptions is an array of extra options for the grpc server.
	CustomOptions []grpc.ServerOption
}

type listenerConfig struct {
	network string
	address string
}

// Start starts the Server.
func (s *Server) Start() error {
	s.Lock()
	defer s.Unlock()

	if s.server == nil {
		// Could happen if Stop is called before Start.
		return fmt.Errorf("gRPC server has already been stopped")
	}
	server := s.server

	s.Logger.Info("starting gRPC server")

	listeners := []net.Listener{}
	if s.listener != nil {
		listeners = append(listeners, s.listener)
	}
	for _, cfg := range s.listenerCfgs {
		ln, err := net.Listen(cfg.network, cfg.address)
		if err != nil {
			s.Logger.Error("error starting gRPC server",
				"err", err,
			)
			for _, started := range listeners {
				_ = started.Close()
			}
			return err
		}
		listeners = append(listeners, ln)
	}

	for _, v := range listeners {
		ln := v
		s.Logger.Info("gRPC server started",
			"network", ln.Addr().Network(),
			"address", ln.Addr().String(),
		)
		s.startedListeners = append(s.startedListeners, ln)

		go func() {
			if err := server.Serve(ln); err != nil {
				s.errCh <- err
			}
		}()
	}

	return nil
}

// Stop stops the Server.
func (s *Server) Stop() {
	s.Lock()
	defer s.Unlock()

	if s.server != nil {
		select {
		case err := <-s.errCh:
			// Only the first error will get logged.
			if err != nil {
				s.Logger.Error("gRPC server terminated uncleanly",
					"err", err,
				)
			}
		default:
		}
		s.server.GracefulStop()
		s.server = nil
		s.BaseBackgroundService.Stop()
	}
}

// Cleanup cleans up after the Server.
func (s *Server) Cleanup() {
	s.Lock()
	defer s.Unlock()

	for _, v := range s.startedListeners {
		_ = v.Close()
	}
	s.startedListeners = nil
}

// Server returns the underlying gRPC server instance.
func (s *Server) Server() *grpc.Server {
	return s.server
}

// Addresses returns the addresses of all started listeners.
func (s *Server) Addresses() []net.Addr {
	s.Lock()
	defer s.Unlock()

	addrs := make([]net.Addr, 0, len(s.startedListeners))
	for _, ln := range s.startedListeners {
		addrs = append(addrs, ln.Addr())
	}
	return addrs
}

// NewServer constructs a new gRPC server service listening on
// a specific TCP address, a local socket path or a provided listener.
func NewServer(config *ServerConfig) (*Server, error) {
	var listenerParams []listenerConfig

	switch {
	case config.Listener != nil:
	case config.Path != "":
		// Remove any existing socket files first.
		_ = os.Remove(config.Path)

		listenerParams = append(listenerParams, listenerConfig{
			network: "unix",
			address: config.Path,
		})
	default:
		listenerParams = append(listenerParams, listenerConfig{
			network: "tcp",
			address: net.JoinHostPort(config.Address, strconv.Itoa(int(config.Port))),
		})
	}

	registerMetrics()
	setupGlobalLogger()

	name := fmt.Sprintf("grpc/%s", config.Name)
	svc := *service.NewBaseBackgroundService(name)
	logAdapter := newGrpcLogAdapter(svc.Logger)

	sOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(logAdapter.unaryLogger, serverUnaryErrorMapper),
		grpc.ChainStreamInterceptor(logAdapter.streamLogger, serverStreamErrorMapper),
		grpc.MaxRecvMsgSize(maxRecvMsgSize),
		grpc.MaxSendMsgSize(maxSendMsgSize),
		grpc.KeepaliveParams(serverKeepAliveParams),
		grpc.ForceServerCodec(&CBORCodec{}),
	}
	sOpts = append(sOpts, config.CustomOptions...)

	return &Server{
		BaseBackgroundService: svc,
		listenerCfgs:          listenerParams,
		listener:              config.Listener,
		startedListeners:      []net.Listener{},
		server:                grpc.NewServer(sOpts...),
		errCh:                 make(chan error, len(listenerParams)+1),
	}, nil
}

// Dial creates a client connection to the given target.
//
// Unless overridden by opts, the connection is made without transport
// security.
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	registerMetrics()

	logger := logging.GetLogger("grpc/client")
	logAdapter := newGrpcLogAdapter(logger)
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(&CBORCodec{})),
		grpc.WithChainUnaryInterceptor(logAdapter.unaryClientLogger, clientUnaryErrorMapper),
		grpc.WithChainStreamInterceptor(clientStreamErrorMapper),
	}
	dialOpts = append(dialOpts, opts...)
	return grpc.Dial(target, dialOpts...)
}

func registerMetrics() {
	grpcMetricsOnce.Do(func() {
		prometheus.MustRegister(grpcCollectors...)
	})
}

func setupGlobalLogger() {
	grpcGlobalLoggerOnce.Do(func() {
		grpclog.SetLoggerV2(newGrpcLogAdapter(logging.GetLogger("grpc")))
	})
}

package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	cmnGrpc "github.com/delegation-marketplace/stx-delegator/common/grpc"
	"github.com/delegation-marketplace/stx-delegator/common/pubsub"
)

var (
	// serviceName is the gRPC service name.
	serviceName = cmnGrpc.NewServiceName("Delegator")

	// methodOwner is the Owner method.
	methodOwner = serviceName.NewMethod("Owner", nil)
	// methodMarketplaceContract is the MarketplaceContract method.
	methodMarketplaceContract = serviceName.NewMethod("MarketplaceContract", nil)
	// methodSetMarketplaceContract is the SetMarketplaceContract method.
	methodSetMarketplaceContract = serviceName.NewMethod("SetMarketplaceContract", SetMarketplaceContractRequest{})
	// methodDelegateToPox is the DelegateToPox method.
	methodDelegateToPox = serviceName.NewMethod("DelegateToPox", DelegateToPoxRequest{})
	// methodRevokeDelegation is the RevokeDelegation method.
	methodRevokeDelegation = serviceName.NewMethod("RevokeDelegation", RevokeDelegationRequest{})
	// methodGetEvents is the GetEvents method.
	methodGetEvents = serviceName.NewMethod("GetEvents", nil)

	// methodWatchEvents is the WatchEvents method.
	methodWatchEvents = serviceName.NewMethod("WatchEvents", nil)

	// serviceDesc is the gRPC service descriptor.
	serviceDesc = grpc.ServiceDesc{
		ServiceName: string(serviceName),
		HandlerType: (*Backend)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: methodOwner.ShortName(),
				Handler:    handlerOwner,
			},
			{
				MethodName: methodMarketplaceContract.ShortName(),
				Handler:    handlerMarketplaceContract,
			},
			{
				MethodName: methodSetMarketplaceContract.ShortName(),
				Handler:    handlerSetMarketplaceContract,
			},
			{
				MethodName: methodDelegateToPox.ShortName(),
				Handler:    handlerDelegateToPox,
			},
			{
				MethodName: methodRevokeDelegation.ShortName(),
				Handler:    handlerRevokeDelegation,
			},
			{
				MethodName: methodGetEvents.ShortName(),
				Handler:    handlerGetEvents,
			},
		},
		Streams: []grpc.StreamDesc{
			{
				StreamName:    methodWatchEvents.ShortName(),
				Handler:       handlerWatchEvents,
				ServerStreams: true,
			},
		},
	}
)

func handlerOwner( // nolint: golint
	srv interface{},
	ctx context.Context,
	dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	if interceptor == nil {
		return srv.(Backend).Owner(ctx)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodOwner.FullName(),
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Backend).Owner(ctx)
	}
	return interceptor(ctx, nil, info, handler)
}

func handlerMarketplaceContract( // nolint: golint
	srv interface{},
	ctx context.Context,
	dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	if interceptor == nil {
		return srv.(Backend).MarketplaceContract(ctx)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodMarketplaceContract.FullName(),
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Backend).MarketplaceContract(ctx)
	}
	return interceptor(ctx, nil, info, handler)
}

func handlerSetMarketplaceContract( // nolint: golint
	srv interface{},
	ctx context.Context,
	dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	var req SetMarketplaceContractRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Backend).SetMarketplaceContract(ctx, &req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodSetMarketplaceContract.FullName(),
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Backend).SetMarketplaceContract(ctx, req.(*SetMarketplaceContractRequest))
	}
	return interceptor(ctx, &req, info, handler)
}

func handlerDelegateToPox( // nolint: golint
	srv interface{},
	ctx context.Context,
	dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	var req DelegateToPoxRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return nil, srv.(Backend).DelegateToPox(ctx, &req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodDelegateToPox.FullName(),
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, srv.(Backend).DelegateToPox(ctx, req.(*DelegateToPoxRequest))
	}
	return interceptor(ctx, &req, info, handler)
}

func handlerRevokeDelegation( // nolint: golint
	srv interface{},
	ctx context.Context,
	dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	var req RevokeDelegationRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return nil, srv.(Backend).RevokeDelegation(ctx, &req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodRevokeDelegation.FullName(),
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, srv.(Backend).RevokeDelegation(ctx, req.(*RevokeDelegationRequest))
	}
	return interceptor(ctx, &req, info, handler)
}

func handlerGetEvents( // nolint: golint
	srv interface{},
	ctx context.Context,
	dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	if interceptor == nil {
		return srv.(Backend).GetEvents(ctx)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodGetEvents.FullName(),
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Backend).GetEvents(ctx)
	}
	return interceptor(ctx, nil, info, handler)
}

func handlerWatchEvents(srv interface{}, stream grpc.ServerStream) error {
	if err := stream.RecvMsg(nil); err != nil {
		return err
	}

	ctx := stream.Context()
	ch, sub, err := srv.(Backend).WatchEvents(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	// Signal that the subscription is in place.
	if err = stream.SendHeader(metadata.MD{}); err != nil {
		return err
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return nil
			}

			if err := stream.SendMsg(ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RegisterService registers a new delegator service with the given gRPC server.
func RegisterService(server *grpc.Server, service Backend) {
	server.RegisterService(&serviceDesc, service)
}

type delegatorClient struct {
	conn *grpc.ClientConn
}

func (c *delegatorClient) Owner(ctx context.Context) (Principal, error) {
	var rsp Principal
	if err := c.conn.Invoke(ctx, methodOwner.FullName(), nil, &rsp); err != nil {
		return "", err
	}
	return rsp, nil
}

func (c *delegatorClient) MarketplaceContract(ctx context.Context) (Principal, error) {
	var rsp Principal
	if err := c.conn.Invoke(ctx, methodMarketplaceContract.FullName(), nil, &rsp); err != nil {
		return "", err
	}
	return rsp, nil
}

func (c *delegatorClient) SetMarketplaceContract(ctx context.Context, req *SetMarketplaceContractRequest) (Principal, error) {
	var rsp Principal
	if err := c.conn.Invoke(ctx, methodSetMarketplaceContract.FullName(), req, &rsp); err != nil {
		return "", err
	}
	return rsp, nil
}

func (c *delegatorClient) DelegateToPox(ctx context.Context, req *DelegateToPoxRequest) error {
	return c.conn.Invoke(ctx, methodDelegateToPox.FullName(), req, nil)
}

func (c *delegatorClient) RevokeDelegation(ctx context.Context, req *RevokeDelegationRequest) error {
	return c.conn.Invoke(ctx, methodRevokeDelegation.FullName(), req, nil)
}

func (c *delegatorClient) GetEvents(ctx context.Context) ([]*Event, error) {
	var rsp []*Event
	if err := c.conn.Invoke(ctx, methodGetEvents.FullName(), nil, &rsp); err != nil {
		return nil, err
	}
	return rsp, nil
}

func (c *delegatorClient) WatchEvents(ctx context.Context) (<-chan *Event, pubsub.ClosableSubscription, error) {
	ctx, sub := pubsub.NewContextSubscription(ctx)

	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], methodWatchEvents.FullName())
	if err != nil {
		sub.Close()
		return nil, nil, err
	}
	if err = stream.SendMsg(nil); err != nil {
		sub.Close()
		return nil, nil, err
	}
	if err = stream.CloseSend(); err != nil {
		sub.Close()
		return nil, nil, err
	}
	// Wait for the server to subscribe, so that events broadcast after
	// this returns are delivered.
	if _, err = stream.Header(); err != nil {
		sub.Close()
		return nil, nil, err
	}

	ch := make(chan *Event)
	go func() {
		defer close(ch)

		for {
			var ev Event
			if serr := stream.RecvMsg(&ev); serr != nil {
				return
			}

			select {
			case ch <- &ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, sub, nil
}

func (c *delegatorClient) Cleanup() {
}

// NewDelegatorClient creates a new gRPC delegator client service.
func NewDelegatorClient(c *grpc.ClientConn) Backend {
	return &delegatorClient{c}
}

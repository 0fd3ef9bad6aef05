package api

import (
	"context"
	"fmt"

	"github.com/cuemby/raftkit/pkg/raftnode"
	"google.golang.org/grpc"
)

const serviceName = "raftkit.Admin"

func proposeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(ProposeRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	b := srv.(backend)
	run := func(ctx context.Context, req interface{}) (interface{}, error) {
		r := req.(*ProposeRequest)
		wait := raftnode.WaitCommitted
		if r.WaitApplied {
			wait = raftnode.WaitApplied
		}
		index, err := b.AddEntry(ctx, r.Data, wait)
		if err != nil {
			return nil, err
		}
		return &ProposeResponse{Index: index}, nil
	}
	if interceptor == nil {
		return run(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Propose"}
	return interceptor(ctx, req, info, run)
}

func setConfigurationHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(SetConfigurationRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	b := srv.(backend)
	run := func(ctx context.Context, req interface{}) (interface{}, error) {
		r := req.(*SetConfigurationRequest)
		if err := b.SetConfiguration(ctx, r.Servers); err != nil {
			return nil, err
		}
		return &SetConfigurationResponse{}, nil
	}
	if interceptor == nil {
		return run(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SetConfiguration"}
	return interceptor(ctx, req, info, run)
}

func readBarrierHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(ReadBarrierRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	b := srv.(backend)
	run := func(ctx context.Context, _ interface{}) (interface{}, error) {
		if err := b.ReadBarrier(ctx); err != nil {
			return nil, err
		}
		return &ReadBarrierResponse{}, nil
	}
	if interceptor == nil {
		return run(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ReadBarrier"}
	return interceptor(ctx, req, info, run)
}

func stepdownHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(StepdownRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	b := srv.(backend)
	run := func(ctx context.Context, req interface{}) (interface{}, error) {
		r := req.(*StepdownRequest)
		if err := b.Stepdown(ctx, r.TimeoutTicks); err != nil {
			return nil, err
		}
		return &StepdownResponse{}, nil
	}
	if interceptor == nil {
		return run(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Stepdown"}
	return interceptor(ctx, req, info, run)
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(StatusRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	b := srv.(backend)
	run := func(ctx context.Context, _ interface{}) (interface{}, error) {
		s, err := b.GetStatus(ctx)
		if err != nil {
			return nil, err
		}
		return statusToResponse(s), nil
	}
	if interceptor == nil {
		return run(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Status"}
	return interceptor(ctx, req, info, run)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*backend)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Propose", Handler: proposeHandler},
		{MethodName: "SetConfiguration", Handler: setConfigurationHandler},
		{MethodName: "ReadBarrier", Handler: readBarrierHandler},
		{MethodName: "Stepdown", Handler: stepdownHandler},
		{MethodName: "Status", Handler: statusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "raftkit/admin.proto",
}

func methodPath(name string) string {
	return fmt.Sprintf("/%s/%s", serviceName, name)
}

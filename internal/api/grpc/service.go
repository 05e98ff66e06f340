package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type unaryCall func(srv RecorderControlServer, ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RecorderControlServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RecorderControlServer), ctx, req.(*emptypb.Empty))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchTranscriptHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RecorderControlServer).WatchTranscript(in, stream)
}

// ServiceDesc is the grpc.ServiceDesc for the recorder control service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RecorderControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "StartRecording",
			Handler: unaryHandler("StartRecording", func(srv RecorderControlServer, ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
				return srv.StartRecording(ctx, in)
			}),
		},
		{
			MethodName: "StopRecording",
			Handler: unaryHandler("StopRecording", func(srv RecorderControlServer, ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
				return srv.StopRecording(ctx, in)
			}),
		},
		{
			MethodName: "CancelProcessing",
			Handler: unaryHandler("CancelProcessing", func(srv RecorderControlServer, ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
				return srv.CancelProcessing(ctx, in)
			}),
		},
		{
			MethodName: "GetStatus",
			Handler: unaryHandler("GetStatus", func(srv RecorderControlServer, ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
				return srv.GetStatus(ctx, in)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchTranscript",
			Handler:       watchTranscriptHandler,
			ServerStreams: true,
		},
	},
}

// Client calls the recorder control service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a client over an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// StartRecording starts a session and returns its session ID and device name.
func (c *Client) StartRecording(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "StartRecording", opts...)
}

// StopRecording stops the processing session.
func (c *Client) StopRecording(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "StopRecording", opts...)
}

// CancelProcessing cancels the processing session.
func (c *Client) CancelProcessing(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "CancelProcessing", opts...)
}

// GetStatus returns the processing state.
func (c *Client) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetStatus", opts...)
}

// TranscriptStream receives transcript messages.
type TranscriptStream interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

// WatchTranscript opens a transcript stream.
func (c *Client) WatchTranscript(ctx context.Context, opts ...grpc.CallOption) (TranscriptStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/WatchTranscript", opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &watchTranscriptClient{ClientStream: stream}, nil
}

type watchTranscriptClient struct {
	grpc.ClientStream
}

func (w *watchTranscriptClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := w.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Package grpcapi serves the recorder control service over gRPC. Messages
// are the well-known Empty and Struct types, so no generated code is needed.
package grpcapi

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"realtime-transcription-service/internal/service/device"
	"realtime-transcription-service/internal/service/session"
	"realtime-transcription-service/internal/service/transcript"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "realtime.transcription.v1.RecorderControl"

// Controller is the recording control surface served over gRPC.
type Controller interface {
	Start(ctx context.Context) (session.StartResult, error)
	Stop(ctx context.Context) (session.StopResult, error)
	Cancel(ctx context.Context) (session.StopResult, error)
	Status() session.Status
	Transcript() session.Transcript
	Subscribe(buffer int) (<-chan transcript.Update, func())
}

// RecorderControlServer is the server API for the recorder control service.
type RecorderControlServer interface {
	StartRecording(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	StopRecording(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	CancelProcessing(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	WatchTranscript(*emptypb.Empty, grpc.ServerStream) error
}

// Server implements RecorderControlServer over a Controller.
type Server struct {
	ctrl Controller
}

// Register registers the recorder control service on g.
func Register(g *grpc.Server, ctrl Controller) {
	g.RegisterService(&ServiceDesc, &Server{ctrl: ctrl})
}

func (s *Server) StartRecording(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	res, err := s.ctrl.Start(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{
		"sessionId":  res.SessionID,
		"deviceName": res.DeviceName,
	})
}

func (s *Server) StopRecording(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	res, err := s.ctrl.Stop(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return stopStruct(res)
}

func (s *Server) CancelProcessing(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	res, err := s.ctrl.Cancel(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return stopStruct(res)
}

func (s *Server) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st := s.ctrl.Status()
	return toStruct(map[string]any{
		"state":         st.State.String(),
		"mode":          st.Mode,
		"progress":      st.Progress,
		"hasTranscript": st.HasTranscript,
		"metadata":      metadataValue(st.Metadata),
		"sessionId":     st.SessionID,
		"deviceName":    st.DeviceName,
		"windows":       st.Windows,
	})
}

// WatchTranscript sends the current transcript, then every append until
// the client goes away.
func (s *Server) WatchTranscript(_ *emptypb.Empty, stream grpc.ServerStream) error {
	updates, cancel := s.ctrl.Subscribe(32)
	defer cancel()

	t := s.ctrl.Transcript()
	first, err := toStruct(map[string]any{
		"type":       "snapshot",
		"transcript": t.Text,
		"metadata":   metadataValue(t.Metadata),
	})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(first); err != nil {
		return err
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			msg, err := toStruct(map[string]any{
				"type":       "append",
				"appended":   u.Appended,
				"transcript": u.Text,
				"metadata":   metadataValue(u.Metadata),
			})
			if err != nil {
				return err
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func stopStruct(res session.StopResult) (*structpb.Struct, error) {
	return toStruct(map[string]any{
		"sessionId":        res.SessionID,
		"durationSeconds":  res.DurationSeconds,
		"transcriptLength": res.TranscriptLength,
		"joinTimedOut":     res.JoinTimedOut,
	})
}

func metadataValue(m *transcript.Metadata) any {
	if m == nil {
		return nil
	}
	return map[string]any{
		"language":             m.Language,
		"language_probability": m.LanguageProbability,
		"duration":             m.DurationSeconds,
	}
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}

// toStatus maps control errors onto gRPC status codes.
func toStatus(err error) error {
	var de *device.DeviceError
	switch {
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrNotProcessing):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &de):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// Command recorderctl drives the recorder control service over gRPC.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	grpcapi "realtime-transcription-service/internal/api/grpc"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	addr    string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "recorderctl",
		Short:        "Control the realtime transcription service",
		Long:         "Start, stop and cancel recording sessions, query processing status and follow the live transcript.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", envOr("RECORDER_ADDR", "localhost:50051"), "gRPC address of the service")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "timeout for control calls")

	root.AddCommand(
		unaryCmd(opts, "start", "Start a recording session", (*grpcapi.Client).StartRecording),
		unaryCmd(opts, "stop", "Stop the recording session and wait for the final transcript", (*grpcapi.Client).StopRecording),
		unaryCmd(opts, "cancel", "Cancel the recording session", (*grpcapi.Client).CancelProcessing),
		unaryCmd(opts, "status", "Show processing status", (*grpcapi.Client).GetStatus),
		watchCmd(opts),
	)
	return root
}

type unaryFunc func(c *grpcapi.Client, ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error)

func unaryCmd(opts *options, use, short string, call unaryFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeConn, err := connect(opts.addr)
			if err != nil {
				return err
			}
			defer closeConn()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			res, err := call(client, ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", use, err)
			}
			return printStruct(cmd.OutOrStdout(), res)
		},
	}
}

func watchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the live transcript until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeConn, err := connect(opts.addr)
			if err != nil {
				return err
			}
			defer closeConn()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stream, err := client.WatchTranscript(ctx)
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			for {
				msg, err := stream.Recv()
				if errors.Is(err, io.EOF) || ctx.Err() != nil {
					return nil
				}
				if err != nil {
					return fmt.Errorf("watch: %w", err)
				}
				if appended := msg.Fields["appended"].GetStringValue(); appended != "" {
					fmt.Fprintln(cmd.OutOrStdout(), appended)
					continue
				}
				if text := msg.Fields["transcript"].GetStringValue(); text != "" {
					fmt.Fprintln(cmd.OutOrStdout(), text)
				}
			}
		},
	}
}

func connect(addr string) (*grpcapi.Client, func(), error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return grpcapi.NewClient(conn), func() { _ = conn.Close() }, nil
}

func printStruct(w io.Writer, s *structpb.Struct) error {
	b, err := protojson.MarshalOptions{Multiline: true}.Marshal(s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

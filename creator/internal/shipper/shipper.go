package shipper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/qtcstream/qtcstream/creator/internal/config"
	"github.com/qtcstream/qtcstream/pkg/resultrpc"
	"github.com/qtcstream/qtcstream/pkg/types"
)

const sendTimeout = 10 * time.Second

// Shipper buffers result batches and ships them to the collector over gRPC.
// Publish never blocks; when the buffer is full the oldest batch is evicted.
// Run must be called in a goroutine to drain the buffer.
type Shipper struct {
	cfg     config.ShipperConfig
	buf     chan *types.Batch
	pending *types.Batch // owned by Run; retried first after a reconnect
	dialFn  dialFunc
}

type dialFunc func(ctx context.Context, cfg config.ShipperConfig) (*grpc.ClientConn, error)

// New creates a Shipper for cfg.
func New(cfg config.ShipperConfig) *Shipper {
	size := cfg.BufferSize
	if size <= 0 {
		size = config.DefaultBufferSize
	}
	return &Shipper{
		cfg:    cfg,
		buf:    make(chan *types.Batch, size),
		dialFn: defaultDial,
	}
}

// Name identifies the sink in logs and metrics.
func (s *Shipper) Name() string { return "grpc" }

// Publish enqueues b for delivery. It only returns an error for a nil batch.
func (s *Shipper) Publish(_ context.Context, b *types.Batch) error {
	if b == nil {
		return fmt.Errorf("shipper: nil batch")
	}
	select {
	case s.buf <- b:
	default:
		select {
		case old := <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest batch",
				"seq", old.Seq, "buffer_cap", cap(s.buf))
		default:
		}
		select {
		case s.buf <- b:
		default:
			slog.Warn("shipper: buffer contended, dropping batch", "seq", b.Seq)
		}
	}
	return nil
}

// Len returns the number of buffered batches.
func (s *Shipper) Len() int {
	return len(s.buf)
}

// Run drains the buffer, reconnecting with exponential backoff when the
// connection is lost. It blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialFn(ctx, s.cfg)
		if err != nil {
			wait := bo.next()
			slog.Error("shipper: dial failed, will retry",
				"endpoint", s.cfg.Endpoint, "err", err, "retry_in", wait)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		slog.Info("shipper: connected", "endpoint", s.cfg.Endpoint)
		bo.reset()

		err = s.drain(ctx, resultrpc.NewResultServiceClient(conn))
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("shipper: connection lost, will reconnect",
			"endpoint", s.cfg.Endpoint, "err", err, "retry_in", wait)
		if !sleep(ctx, wait) {
			return
		}
	}
}

// drain sends batches until a transient send error or ctx is cancelled.
func (s *Shipper) drain(ctx context.Context, client *resultrpc.ResultServiceClient) error {
	for {
		b := s.pending
		if b == nil {
			select {
			case <-ctx.Done():
				return nil
			case b = <-s.buf:
			}
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		if s.cfg.Auth.Mode == "apikey" {
			sendCtx = metadata.AppendToOutgoingContext(sendCtx, s.cfg.Auth.Header, s.cfg.Auth.Key())
		}
		ack, err := client.Publish(sendCtx, b)
		cancel()

		if err != nil {
			if isPermanentError(err) {
				slog.Error("shipper: permanent send error, discarding batch",
					"seq", b.Seq, "err", err)
				s.pending = nil
				continue
			}
			s.pending = b
			return fmt.Errorf("send: %w", err)
		}
		s.pending = nil

		if !ack.OK {
			slog.Warn("shipper: collector rejected batch", "seq", b.Seq, "message", ack.Message)
		} else {
			slog.Debug("shipper: batch delivered", "seq", b.Seq, "results", len(b.Results))
		}
	}
}

// isPermanentError reports gRPC errors that retrying the same batch cannot
// fix.
func isPermanentError(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied, codes.Unimplemented:
		return true
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func defaultDial(ctx context.Context, cfg config.ShipperConfig) (*grpc.ClientConn, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	return grpc.DialContext(ctx, cfg.Endpoint, opts...) //nolint:staticcheck // grpc.NewClient needs grpc >= 1.63
}

// dialOptions builds the transport credentials for the configured auth mode.
func dialOptions(cfg config.ShipperConfig) ([]grpc.DialOption, error) {
	if cfg.Auth.Mode == "mtls" {
		creds, err := buildMTLSCreds(cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("shipper: build mtls creds: %w", err)
		}
		return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil
	}
	// apikey sends the key per call; none is for local development.
	return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
}

// buildMTLSCreds loads the client certificate and optional CA.
func buildMTLSCreds(auth config.AuthConfig) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}}

	if auth.CAFile != "" {
		caPEM, err := os.ReadFile(auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	return credentials.NewTLS(tlsCfg), nil
}

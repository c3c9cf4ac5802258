package relay

import (
	"context"
	"io"

	"github.com/Rrens/chat-relay/internal/stream"
	"github.com/rs/zerolog/log"
)

// Local serves relay calls in-process
type Local struct {
	svc *Service
}

// NewLocal wraps svc so it can stand in for a remote relay
func NewLocal(svc *Service) *Local {
	return &Local{svc: svc}
}

// Complete calls the service directly
func (l *Local) Complete(ctx context.Context, req Request) (*Completion, error) {
	return l.svc.Complete(ctx, req)
}

// Stream runs the service on its own goroutine and returns the encoded event stream.
// Closing the reader stops the producer at its next write.
func (l *Local) Stream(ctx context.Context, req Request) (io.ReadCloser, error) {
	pr, pw := io.Pipe()
	go func() {
		err := l.svc.Stream(ctx, req, stream.NewWriter(pw))
		if err != nil {
			log.Warn().Err(err).Str("session_id", req.SessionID.String()).Msg("Local relay stream ended with error")
		}
		pw.Close()
	}()
	return pr, nil
}

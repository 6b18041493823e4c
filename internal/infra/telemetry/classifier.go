package telemetry

import (
	"context"
	"errors"
	"net"
	"net/url"

	"github.com/rs/zerolog"

	"iap-sync-engine/internal/domain/ports/adapter"
	derror "iap-sync-engine/internal/error"
)

var _ adapter.ErrorClassifier = (*Classifier)(nil)

// Classifier is the crash-reporting collaborator's classification contract:
// every raw error is recorded and mapped to a stable code for failure events.
type Classifier struct {
	log *zerolog.Logger
}

func NewClassifier(logger *zerolog.Logger) *Classifier {
	return &Classifier{log: logger}
}

func (c *Classifier) Classify(err error) derror.Code {
	code := classify(err)
	c.log.Error().Err(err).Str("error_code", string(code)).Msg("purchase error recorded")
	return code
}

func classify(err error) derror.Code {
	if err == nil {
		return derror.CodeUnknown
	}
	switch {
	case errors.Is(err, derror.ErrNotSignedIn):
		return derror.CodeNotSignedIn
	case errors.Is(err, derror.ErrServer):
		return derror.CodeServer
	case errors.Is(err, derror.ErrConnectionInited):
		return derror.CodeConnection
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return derror.CodeNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return derror.CodeNetwork
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return derror.CodeNetwork
	}
	return derror.CodeUnknown
}

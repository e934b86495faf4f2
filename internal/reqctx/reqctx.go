// Package reqctx carries the id of one bot command through the services and
// the Riot client so their log lines can be joined with the command log.
package reqctx

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

type ctxKey string

const requestIDKey ctxKey = "riotlink.requestID"

// WithRequestID stores the id correlating all log lines of one command.
func WithRequestID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromCtx fetches the command request id from context.
func RequestIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(requestIDKey)
	if v == nil {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// Field returns the request_id log field, or a no-op field when ctx has none.
func Field(ctx context.Context) zap.Field {
	id, ok := RequestIDFromCtx(ctx)
	if !ok {
		return zap.Skip()
	}
	return zap.String("request_id", id.String())
}

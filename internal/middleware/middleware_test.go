package middleware_test

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsn0918/dentalrag/internal/middleware"
)

type chatRequest struct {
	UserID  int64  `validate:"required,gt=0"`
	Message string `validate:"required,max=10"`
}

type empty struct{}

func echo(seen *string) connect.UnaryFunc {
	return func(ctx context.Context, _ connect.AnyRequest) (connect.AnyResponse, error) {
		if seen != nil {
			*seen = middleware.RequestID(ctx)
		}
		return connect.NewResponse(&empty{}), nil
	}
}

func TestHTTPValidator(t *testing.T) {
	handler := middleware.HTTPValidator()(echo(nil))
	ctx := context.Background()

	_, err := handler(ctx, connect.NewRequest(&chatRequest{UserID: 1, Message: "牙疼"}))
	require.NoError(t, err)

	_, err = handler(ctx, connect.NewRequest(&chatRequest{Message: "牙疼"}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	assert.Contains(t, err.Error(), "field 'UserID': failed on 'required'")

	_, err = handler(ctx, connect.NewRequest(&chatRequest{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple validation errors")
}

func TestRequestLogger(t *testing.T) {
	var seen string
	handler := middleware.RequestLogger()(echo(&seen))

	resp, err := handler(context.Background(), connect.NewRequest(&empty{}))
	require.NoError(t, err)
	_, parseErr := uuid.Parse(seen)
	assert.NoError(t, parseErr)
	assert.Equal(t, seen, resp.Header().Get(middleware.RequestIDHeader))

	req := connect.NewRequest(&empty{})
	given := uuid.NewString()
	req.Header().Set(middleware.RequestIDHeader, given)
	_, err = handler(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, given, seen)
}

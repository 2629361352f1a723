package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"github.com/go-playground/validator/v10"
)

// HTTPValidator creates a Connect interceptor that validates request
// messages by their `validate` struct tags.
func HTTPValidator() connect.UnaryInterceptorFunc {
	validate := validator.New(validator.WithRequiredStructEnabled())

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if err := validate.StructCtx(ctx, req.Any()); err != nil {
				var invalid *validator.InvalidValidationError
				if errors.As(err, &invalid) {
					// 非结构体消息不做校验
					return next(ctx, req)
				}
				return nil, connect.NewError(
					connect.CodeInvalidArgument,
					fmt.Errorf("validation failed: %s", formatValidationError(err)),
				)
			}
			return next(ctx, req)
		}
	}
}

// formatValidationError 格式化验证错误信息
func formatValidationError(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err.Error()
	}

	messages := make([]string, 0, len(errs))
	for _, fe := range errs {
		msg := fmt.Sprintf("field '%s': failed on '%s'", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg += fmt.Sprintf(" (%s)", fe.Param())
		}
		messages = append(messages, msg)
	}
	if len(messages) == 1 {
		return messages[0]
	}

	var b strings.Builder
	b.WriteString("multiple validation errors:")
	for i, msg := range messages {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, msg)
	}
	return b.String()
}

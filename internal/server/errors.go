package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"connectrpc.com/connect"
	"git.netflux.io/rob/mtxdash/internal/domain"
	"git.netflux.io/rob/mtxdash/internal/globalconfig"
	"git.netflux.io/rob/mtxdash/internal/mediaserver"
)

// toConnectError maps an error returned by an engine to a connect error with
// the appropriate code.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}

	var (
		validationErrs domain.ValidationErrors
		apiErr         *mediaserver.APIError
		urlErr         *url.Error
		netErr         net.Error
	)

	var code connect.Code
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = connect.CodeNotFound
	case errors.As(err, &validationErrs):
		code = connect.CodeInvalidArgument
	case errors.Is(err, domain.ErrAlreadyExists):
		code = connect.CodeAlreadyExists
	case errors.Is(err, globalconfig.ErrNoStoredConfig):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest:
		code = connect.CodeInvalidArgument
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		code = connect.CodeFailedPrecondition
	case errors.As(err, &apiErr), errors.As(err, &urlErr), errors.As(err, &netErr):
		code = connect.CodeUnavailable
	default:
		code = connect.CodeInternal
	}

	return connect.NewError(code, err)
}

package connectapi

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"github.com/mcdev12/planningroom/go/internal/directory"
)

const (
	validationFieldHeader  = "Planningroom-Validation-Field"
	validationReasonHeader = "Planningroom-Validation-Reason"
)

// toConnectError maps directory errors onto connect codes.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var verr *directory.ValidationError
	switch {
	case errors.As(err, &verr):
		cerr := connect.NewError(connect.CodeInvalidArgument, err)
		cerr.Meta().Set(validationFieldHeader, verr.Field)
		cerr.Meta().Set(validationReasonHeader, verr.Reason)
		return cerr
	case errors.Is(err, directory.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, directory.ErrUnauthorized):
		return connect.NewError(connect.CodePermissionDenied, err)
	case errors.Is(err, directory.ErrInvalidPassword):
		return connect.NewError(connect.CodeUnauthenticated, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// fromConnectError maps connect codes back onto directory errors, so callers can
// use errors.Is the same way they would with an in-process directory.
func fromConnectError(err error) error {
	if err == nil {
		return nil
	}
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return err
	}
	msg := cerr.Message()
	switch cerr.Code() {
	case connect.CodeInvalidArgument:
		field := cerr.Meta().Get(validationFieldHeader)
		if field == "" {
			return fmt.Errorf("%s: %w", msg, directory.ErrValidation)
		}
		return &directory.ValidationError{Field: field, Reason: cerr.Meta().Get(validationReasonHeader)}
	case connect.CodeNotFound:
		return fmt.Errorf("%s: %w", msg, directory.ErrNotFound)
	case connect.CodePermissionDenied:
		return fmt.Errorf("%s: %w", msg, directory.ErrUnauthorized)
	case connect.CodeUnauthenticated:
		return fmt.Errorf("%s: %w", msg, directory.ErrInvalidPassword)
	case connect.CodeUnavailable:
		return fmt.Errorf("%s: %w", msg, directory.ErrConnectionDegraded)
	default:
		return err
	}
}

package grpcsvc

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
)

var invalidArgumentErrors = []error{
	domain.ErrUnknownLocation,
	domain.ErrUserRequired,
	domain.ErrProductRequired,
	domain.ErrItemsRequired,
	domain.ErrInvalidQuantity,
	domain.ErrInvalidPrice,
	domain.ErrInvalidCost,
	domain.ErrInvalidDiscount,
	domain.ErrInvalidPaymentMethod,
	domain.ErrInvalidTimeRange,
	domain.ErrInvalidShiftEdit,
	domain.ErrReasonRequired,
}

var failedPreconditionErrors = []error{
	domain.ErrInsufficientStock,
	domain.ErrShiftAlreadyClosed,
	domain.ErrShiftNotClosed,
	domain.ErrOrderAlreadyRefunded,
	domain.ErrLocationNotAssigned,
}

// toStatus переводит доменную ошибку в gRPC status. Порядок проверок важен:
// ErrOrderPersistFailed оборачивает причину, которая сама может быть
// доменной ошибкой.
func (s *LedgerService) toStatus(err error, operation string) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codeOf(err)
	msg := err.Error()
	if code == codes.Internal {
		s.logger.WithError(err).WithField("operation", operation).Error("ledger operation failed")
		msg = operation + " failed"
		if errors.Is(err, domain.ErrOrderPersistFailed) {
			msg = domain.ErrOrderPersistFailed.Error()
		}
	} else {
		s.logger.WithFields(log.Fields{
			"operation": operation,
			"code":      code.String(),
		}).WithError(err).Debug("ledger operation rejected")
	}
	return status.Error(code, msg)
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, domain.ErrOrderPersistFailed):
		return codes.Internal
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoActiveShift):
		return codes.NotFound
	case errors.Is(err, domain.ErrShiftAlreadyActive):
		return codes.AlreadyExists
	case errors.Is(err, domain.ErrVersionConflict):
		return codes.Aborted
	case errors.Is(err, domain.ErrSequenceExhausted):
		return codes.ResourceExhausted
	}
	for _, target := range invalidArgumentErrors {
		if errors.Is(err, target) {
			return codes.InvalidArgument
		}
	}
	for _, target := range failedPreconditionErrors {
		if errors.Is(err, target) {
			return codes.FailedPrecondition
		}
	}
	return codes.Internal
}

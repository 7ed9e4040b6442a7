package payment

import (
	"net/http"

	apperrors "github.com/vpio/server/internal/utils/errors"
)

// Module errors.
var (
	ErrPaymentNotFound = apperrors.NewAppError("PAYMENT_NOT_FOUND", "Payment not found", http.StatusNotFound, apperrors.ErrNotFound)
	ErrIntentNotCached = apperrors.NewAppError("INTENT_NOT_CACHED", "Payment intent not found or expired", http.StatusNotFound, apperrors.ErrNotFound)
	ErrSaveFailed      = apperrors.NewAppError("PAYMENT_SAVE_FAILED", "Could not write payment to store", http.StatusInternalServerError, apperrors.ErrInternal)
)

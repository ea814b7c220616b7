package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/utafrali/posledger/internal/domain"
	apperrors "github.com/utafrali/posledger/pkg/errors"
)

// toAppError converts ledger errors into API errors. Anything it does not
// recognise is returned unchanged for httputil.WriteError to classify.
func toAppError(err error) error {
	var (
		insufficient *domain.InsufficientStockError
		unknown      *domain.UnknownProductError
	)

	switch {
	case errors.Is(err, domain.ErrStockRaceDetected):
		e := apperrors.Conflict("STOCK_RACE_DETECTED", "stock changed during checkout, retry the request")
		e.Retryable = true
		return e
	case errors.As(err, &insufficient):
		return apperrors.Conflict("INSUFFICIENT_STOCK",
			fmt.Sprintf("insufficient stock for product %s", insufficient.ProductID)).
			WithDetail("product_id", insufficient.ProductID).
			WithDetail("requested", insufficient.Requested).
			WithDetail("available", insufficient.Available)
	case errors.As(err, &unknown):
		if unknown.ProductID == "" {
			return &apperrors.AppError{
				Code:    "INVALID_INPUT",
				Message: "product_id is required",
				Status:  http.StatusBadRequest,
				Err:     apperrors.ErrInvalidInput,
			}
		}
		return (&apperrors.AppError{
			Code:    "UNKNOWN_PRODUCT",
			Message: fmt.Sprintf("product %s does not exist", unknown.ProductID),
			Status:  http.StatusNotFound,
			Err:     apperrors.ErrNotFound,
		}).WithDetail("product_id", unknown.ProductID)
	case errors.Is(err, domain.ErrEmptyCart):
		return &apperrors.AppError{
			Code:    "EMPTY_CART",
			Message: "cart has no items",
			Status:  http.StatusBadRequest,
			Err:     apperrors.ErrInvalidInput,
		}
	case errors.Is(err, domain.ErrInvalidQuantity):
		return &apperrors.AppError{
			Code:    "INVALID_QUANTITY",
			Message: err.Error(),
			Status:  http.StatusBadRequest,
			Err:     apperrors.ErrInvalidInput,
		}
	case errors.Is(err, domain.ErrAmountOutOfRange):
		return &apperrors.AppError{
			Code:    "AMOUNT_OUT_OF_RANGE",
			Message: err.Error(),
			Status:  http.StatusBadRequest,
			Err:     apperrors.ErrInvalidInput,
		}
	case errors.Is(err, domain.ErrCheckoutInProgress):
		e := apperrors.Conflict("CHECKOUT_IN_PROGRESS", "a checkout with this idempotency key is still running")
		e.Retryable = true
		return e
	}
	return err
}

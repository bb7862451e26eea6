// Package errors provides structured error handling with i18n support.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Catalog errors
	CodeProductInvalidCategory         Code = "PRODUCT_INVALID_CATEGORY"
	CodeProductInvalidAttendeeCategory Code = "PRODUCT_INVALID_ATTENDEE_CATEGORY"
	CodeProductInactive                Code = "PRODUCT_INACTIVE"

	// Attendee errors
	CodeAttendeeEmptyName       Code = "ATTENDEE_EMPTY_NAME"
	CodeAttendeeInvalidCategory Code = "ATTENDEE_INVALID_CATEGORY"

	// Discount errors
	CodeDiscountNotBetter    Code = "DISCOUNT_NOT_BETTER"
	CodeDiscountOutOfRange   Code = "DISCOUNT_OUT_OF_RANGE"
	CodeDiscountWrongEvent   Code = "DISCOUNT_WRONG_EVENT"
	CodeCouponInvalid        Code = "COUPON_INVALID"
	CodeCouponLookupFailed   Code = "COUPON_LOOKUP_FAILED"
	CodeCouponRequestPending Code = "COUPON_REQUEST_PENDING"

	// Selection errors
	CodeSelectionNotHydrated       Code = "SELECTION_NOT_HYDRATED"
	CodeSelectionEmpty             Code = "SELECTION_EMPTY"
	CodeDayQuantityBelowPurchased  Code = "DAY_QUANTITY_BELOW_PURCHASED"
	CodeDayQuantityExceedsRange    Code = "DAY_QUANTITY_EXCEEDS_RANGE"
	CodeVariableAmountOutOfRange   Code = "VARIABLE_AMOUNT_OUT_OF_RANGE"
	CodeEditRequiresPurchasedItem  Code = "EDIT_REQUIRES_PURCHASED_ITEM"
	CodeHousingInvalidDateRange    Code = "HOUSING_INVALID_DATE_RANGE"
	CodeMerchInvalidQuantity       Code = "MERCH_INVALID_QUANTITY"
	CodePatronProductNotAvailable  Code = "PATRON_PRODUCT_NOT_AVAILABLE"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"

	// Upstream errors
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"

	// Payment errors
	CodePaymentFailed         Code = "PAYMENT_FAILED"
	CodePaymentRequestPending Code = "PAYMENT_REQUEST_PENDING"
	CodePaymentNoApplication  Code = "PAYMENT_NO_APPLICATION"
)

// HTTPStatus maps domain codes to HTTP status codes for client responses.
func (c Code) HTTPStatus() int {
	switch c {
	// Unprocessable input - validation failures, bad values
	case CodeProductInvalidCategory,
		CodeProductInvalidAttendeeCategory,
		CodeAttendeeEmptyName,
		CodeAttendeeInvalidCategory,
		CodeDiscountOutOfRange,
		CodeDiscountWrongEvent,
		CodeCouponInvalid,
		CodeDayQuantityBelowPurchased,
		CodeDayQuantityExceedsRange,
		CodeVariableAmountOutOfRange,
		CodeHousingInvalidDateRange,
		CodeMerchInvalidQuantity:
		return http.StatusUnprocessableEntity

	// Conflict - state doesn't allow the operation
	case CodeDiscountNotBetter,
		CodeProductInactive,
		CodeSelectionNotHydrated,
		CodeSelectionEmpty,
		CodeEditRequiresPurchasedItem,
		CodePatronProductNotAvailable,
		CodeCouponRequestPending,
		CodePaymentRequestPending,
		CodePaymentNoApplication:
		return http.StatusConflict

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return http.StatusNotFound

	// Upstream dependency failed - retriable by re-action
	case CodeUpstreamUnavailable,
		CodeCouponLookupFailed:
		return http.StatusBadGateway

	// Payment rejected - blocking, user stays on the current step
	case CodePaymentFailed:
		return http.StatusPaymentRequired

	default:
		return http.StatusInternalServerError
	}
}

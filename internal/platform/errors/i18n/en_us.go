package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnknown                        = "UNKNOWN"
	CodeProductInvalidCategory         = "PRODUCT_INVALID_CATEGORY"
	CodeProductInvalidAttendeeCategory = "PRODUCT_INVALID_ATTENDEE_CATEGORY"
	CodeProductInactive                = "PRODUCT_INACTIVE"
	CodeAttendeeEmptyName              = "ATTENDEE_EMPTY_NAME"
	CodeAttendeeInvalidCategory        = "ATTENDEE_INVALID_CATEGORY"
	CodeDiscountNotBetter              = "DISCOUNT_NOT_BETTER"
	CodeDiscountOutOfRange             = "DISCOUNT_OUT_OF_RANGE"
	CodeDiscountWrongEvent             = "DISCOUNT_WRONG_EVENT"
	CodeCouponInvalid                  = "COUPON_INVALID"
	CodeCouponLookupFailed             = "COUPON_LOOKUP_FAILED"
	CodeCouponRequestPending           = "COUPON_REQUEST_PENDING"
	CodeSelectionNotHydrated           = "SELECTION_NOT_HYDRATED"
	CodeSelectionEmpty                 = "SELECTION_EMPTY"
	CodeDayQuantityBelowPurchased      = "DAY_QUANTITY_BELOW_PURCHASED"
	CodeDayQuantityExceedsRange        = "DAY_QUANTITY_EXCEEDS_RANGE"
	CodeVariableAmountOutOfRange       = "VARIABLE_AMOUNT_OUT_OF_RANGE"
	CodeEditRequiresPurchasedItem      = "EDIT_REQUIRES_PURCHASED_ITEM"
	CodeHousingInvalidDateRange        = "HOUSING_INVALID_DATE_RANGE"
	CodeMerchInvalidQuantity           = "MERCH_INVALID_QUANTITY"
	CodePatronProductNotAvailable      = "PATRON_PRODUCT_NOT_AVAILABLE"
	CodeNotFound                       = "NOT_FOUND"
	CodeUpstreamUnavailable            = "UPSTREAM_UNAVAILABLE"
	CodePaymentFailed                  = "PAYMENT_FAILED"
	CodePaymentRequestPending          = "PAYMENT_REQUEST_PENDING"
	CodePaymentNoApplication           = "PAYMENT_NO_APPLICATION"
)

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		CodeUnknown: "Something went wrong, please try again",

		// Catalog errors
		CodeProductInvalidCategory:         "Invalid product category specified",
		CodeProductInvalidAttendeeCategory: "Product does not apply to any attendee category",
		CodeProductInactive:                "This product is no longer available",

		// Attendee errors
		CodeAttendeeEmptyName:       "Attendee name cannot be empty",
		CodeAttendeeInvalidCategory: "Invalid attendee category specified",

		// Discount errors
		CodeDiscountNotBetter:    "You already have an equal or better discount ({{.Applied}}%)",
		CodeDiscountOutOfRange:   "Discount value must be between 0 and 100",
		CodeDiscountWrongEvent:   "This discount belongs to a different event",
		CodeCouponInvalid:        "This coupon code is not valid",
		CodeCouponLookupFailed:   "Could not validate the coupon code, please try again",
		CodeCouponRequestPending: "A coupon check is already in progress",

		// Selection errors
		CodeSelectionNotHydrated:      "Your selections are still loading, please try again",
		CodeSelectionEmpty:            "Please select at least one pass",
		CodeDayQuantityBelowPurchased: "You already purchased {{.Purchased}} days for this pass",
		CodeDayQuantityExceedsRange:   "This pass covers at most {{.Max}} days",
		CodeVariableAmountOutOfRange:  "Amount must be between {{.Min}} and {{.Max}}",
		CodeEditRequiresPurchasedItem: "Only purchased passes can be surrendered for credit",
		CodeHousingInvalidDateRange:   "Check-out must be after check-in",
		CodeMerchInvalidQuantity:      "Quantity must be at least 1",
		CodePatronProductNotAvailable: "Patron contributions are not available for this event",

		// Storage errors
		CodeNotFound: "The requested resource was not found",

		// Upstream errors
		CodeUpstreamUnavailable: "A required service is temporarily unavailable, please retry",

		// Payment errors
		CodePaymentFailed:         "Your payment could not be processed, please try again",
		CodePaymentRequestPending: "A payment is already being processed",
		CodePaymentNoApplication:  "No application found for this event",
	},
}

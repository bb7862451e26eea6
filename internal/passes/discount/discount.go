// Package discount arbitrates between competing discount sources so only
// the best percentage applies to a checkout.
package discount

import (
	"strconv"

	apperrors "github.com/louisbranch/popup.city/internal/platform/errors"
)

// Origin identifies where a discount proposal came from.
type Origin int

const (
	// OriginUnspecified represents an unknown discount origin.
	OriginUnspecified Origin = iota
	// OriginCoupon is a code the payer entered.
	OriginCoupon
	// OriginScholarship is a discount assigned to the application.
	OriginScholarship
	// OriginBuilder is the builder-tier discount.
	OriginBuilder
	// OriginGroup is a volume discount for large groups.
	OriginGroup
)

// String returns a readable name for the origin.
func (o Origin) String() string {
	switch o {
	case OriginCoupon:
		return "coupon"
	case OriginScholarship:
		return "scholarship"
	case OriginBuilder:
		return "builder"
	case OriginGroup:
		return "group"
	default:
		return "unspecified"
	}
}

// Source is one discount proposal.
type Source struct {
	// Value is the discount percentage, 0 to 100.
	Value  float64
	Origin Origin
	// Code is set for coupon discounts.
	Code string
	// EventID scopes the discount to a single event.
	EventID int64
}

// Resolver holds the currently applied discount for one event. A proposal
// replaces it only when strictly better; ties keep the incumbent.
type Resolver struct {
	eventID int64
	applied Source
}

// NewResolver returns a resolver scoped to the given event with no
// discount applied.
func NewResolver(eventID int64) *Resolver {
	return &Resolver{eventID: eventID}
}

// Applied returns the discount currently in effect. The zero Source means
// no discount.
func (r *Resolver) Applied() Source {
	return r.applied
}

// Percent returns the applied discount percentage.
func (r *Resolver) Percent() float64 {
	return r.applied.Value
}

// Propose offers a new discount. It returns an error when the value is
// out of range, scoped to another event, or not strictly better than the
// applied discount.
func (r *Resolver) Propose(s Source) error {
	if s.Value < 0 || s.Value > 100 {
		return apperrors.WithMetadata(apperrors.CodeDiscountOutOfRange, "discount percentage must be between 0 and 100", map[string]string{
			"Value": strconv.FormatFloat(s.Value, 'f', -1, 64),
		})
	}
	if s.EventID != 0 && s.EventID != r.eventID {
		return apperrors.New(apperrors.CodeDiscountWrongEvent, "discount belongs to another event")
	}
	if s.Value <= r.applied.Value {
		return apperrors.WithMetadata(apperrors.CodeDiscountNotBetter, "a better or equal discount is already applied", map[string]string{
			"Applied":  strconv.FormatFloat(r.applied.Value, 'f', -1, 64),
			"Proposed": strconv.FormatFloat(s.Value, 'f', -1, 64),
		})
	}
	r.applied = s
	return nil
}

// Reset clears the applied discount and rescopes the resolver, used when
// the checkout switches events.
func (r *Resolver) Reset(eventID int64) {
	r.eventID = eventID
	r.applied = Source{}
}

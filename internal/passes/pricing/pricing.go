// Package pricing derives the effective unit price of a product from the
// application tier, patron status, and the applied discount.
package pricing

import (
	"math"
	"strings"

	"github.com/louisbranch/popup.city/internal/passes/catalog"
)

// TicketTier is the pricing tier assigned to an application.
type TicketTier int

const (
	// TierUnspecified represents an unknown tier and prices as standard.
	TierUnspecified TicketTier = iota
	// TierStandard pays full price.
	TierStandard
	// TierBuilder pays the product's builder price when one exists.
	TierBuilder
	// TierScholarship pays nothing for eligible passes.
	TierScholarship
)

// ParseTier maps upstream tier strings to a TicketTier.
func ParseTier(s string) TicketTier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard":
		return TierStandard
	case "builder":
		return TierBuilder
	case "scholarship":
		return TierScholarship
	default:
		return TierUnspecified
	}
}

// String returns the wire name for the tier.
func (t TicketTier) String() string {
	switch t {
	case TierStandard:
		return "standard"
	case TierBuilder:
		return "builder"
	case TierScholarship:
		return "scholarship"
	default:
		return "unspecified"
	}
}

// Round rounds a monetary amount to two decimal places, half away
// from zero.
func Round(v float64) float64 {
	return math.Round(v*100) / 100
}

// Price returns the effective unit price for a product. Rules apply in
// priority order: an active patron pass zeroes every non-patron product,
// scholarship tier zeroes eligible passes, builder tier substitutes the
// builder price, and otherwise the percentage discount applies to the
// list price.
func Price(p catalog.Product, tier TicketTier, patronActive bool, discountPercent float64) float64 {
	if patronActive && p.Category != catalog.ProductCategoryPatron {
		return 0
	}
	base := p.OriginalPrice()
	if tier == TierScholarship && p.Category.IsPass() {
		return 0
	}
	if tier == TierBuilder && p.BuilderPrice != nil {
		// The builder price already embeds a discount against the list
		// price. A percentage discount only wins when it cuts deeper.
		builderCut := 0.0
		if base > 0 {
			builderCut = (1 - *p.BuilderPrice/base) * 100
		}
		if discountPercent > builderCut {
			return Round(base * (1 - discountPercent/100))
		}
		return Round(*p.BuilderPrice)
	}
	if discountPercent > 0 {
		return Round(base * (1 - discountPercent/100))
	}
	return Round(base)
}

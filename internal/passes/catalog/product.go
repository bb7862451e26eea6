// Package catalog defines the event product and attendee model shared by
// the selection, pricing, and cart packages.
package catalog

import (
	"math"
	"sort"
	"strings"
	"time"
)

// ProductCategory describes the kind of product being sold.
type ProductCategory int

// AttendeeCategory describes which group member a product applies to.
type AttendeeCategory int

const (
	// ProductCategoryUnspecified represents an unknown product category.
	ProductCategoryUnspecified ProductCategory = iota
	// ProductCategoryMonth covers the whole event period.
	ProductCategoryMonth
	// ProductCategoryWeek covers a single week slot of the event.
	ProductCategoryWeek
	// ProductCategoryDay covers individual days, sold by quantity.
	ProductCategoryDay
	// ProductCategoryPatron is a supporter pass that zeroes group prices.
	ProductCategoryPatron
	// ProductCategoryHousing is lodging priced per night.
	ProductCategoryHousing
	// ProductCategoryMerch is merchandise priced per unit.
	ProductCategoryMerch
	// ProductCategoryExclusiveVariant is a standalone pass variant such
	// as a local week or resident pass, toggled with a plain flip.
	ProductCategoryExclusiveVariant
)

const (
	// AttendeeCategoryUnspecified represents an unknown attendee category.
	AttendeeCategoryUnspecified AttendeeCategory = iota
	// AttendeeCategoryMain is the primary ticket holder.
	AttendeeCategoryMain
	// AttendeeCategorySpouse is the partner of the main holder.
	AttendeeCategorySpouse
	// AttendeeCategoryKid is a child attendee.
	AttendeeCategoryKid
	// AttendeeCategoryTeen is a teenage attendee.
	AttendeeCategoryTeen
	// AttendeeCategoryBaby is an infant attendee.
	AttendeeCategoryBaby
)

// defaultRangeDays is used when a day product carries no explicit date range.
const defaultRangeDays = 30

// ParseProductCategory maps upstream category strings to a ProductCategory.
// Unknown values map to ProductCategoryUnspecified so a partially understood
// catalog still loads.
func ParseProductCategory(s string) ProductCategory {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "month":
		return ProductCategoryMonth
	case "week":
		return ProductCategoryWeek
	case "day":
		return ProductCategoryDay
	case "patreon", "patron", "supporter":
		return ProductCategoryPatron
	case "house", "housing":
		return ProductCategoryHousing
	case "merch", "merchandise":
		return ProductCategoryMerch
	case "exclusive", "exclusive-variant", "local week", "local month", "local day":
		return ProductCategoryExclusiveVariant
	default:
		return ProductCategoryUnspecified
	}
}

// ParseAttendeeCategory maps upstream attendee category strings.
func ParseAttendeeCategory(s string) AttendeeCategory {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "main":
		return AttendeeCategoryMain
	case "spouse":
		return AttendeeCategorySpouse
	case "kid":
		return AttendeeCategoryKid
	case "teen":
		return AttendeeCategoryTeen
	case "baby":
		return AttendeeCategoryBaby
	default:
		return AttendeeCategoryUnspecified
	}
}

// String returns the wire name for the product category.
func (c ProductCategory) String() string {
	switch c {
	case ProductCategoryMonth:
		return "month"
	case ProductCategoryWeek:
		return "week"
	case ProductCategoryDay:
		return "day"
	case ProductCategoryPatron:
		return "patreon"
	case ProductCategoryHousing:
		return "house"
	case ProductCategoryMerch:
		return "merch"
	case ProductCategoryExclusiveVariant:
		return "exclusive"
	default:
		return "unspecified"
	}
}

// String returns the wire name for the attendee category.
func (c AttendeeCategory) String() string {
	switch c {
	case AttendeeCategoryMain:
		return "main"
	case AttendeeCategorySpouse:
		return "spouse"
	case AttendeeCategoryKid:
		return "kid"
	case AttendeeCategoryTeen:
		return "teen"
	case AttendeeCategoryBaby:
		return "baby"
	default:
		return "unspecified"
	}
}

// IsPass reports whether the category is a time-boxed event pass.
func (c ProductCategory) IsPass() bool {
	switch c {
	case ProductCategoryMonth, ProductCategoryWeek, ProductCategoryDay:
		return true
	default:
		return false
	}
}

// Product is a purchasable item scoped to one attendee category.
type Product struct {
	ID               int64
	Name             string
	Category         ProductCategory
	AttendeeCategory AttendeeCategory
	// Price is the current sale price.
	Price float64
	// ComparePrice is the pre-discount list price; zero when the product
	// is not on sale.
	ComparePrice float64
	// BuilderPrice is the reduced price for builder-tier applications.
	BuilderPrice *float64
	// MinPrice and MaxPrice bound a payer-chosen amount. A product with
	// MinPrice set accepts a custom amount instead of its fixed price.
	MinPrice *float64
	MaxPrice *float64
	// InsurancePercent is the refund-insurance rate for this product.
	InsurancePercent *float64
	StartDate        *time.Time
	EndDate          *time.Time
	// Exclusive products deselect their siblings when picked.
	Exclusive bool
	Active    bool
}

// VariablePrice reports whether the payer chooses the amount.
func (p Product) VariablePrice() bool {
	return p.MinPrice != nil
}

// OriginalPrice returns the undiscounted list price.
func (p Product) OriginalPrice() float64 {
	if p.ComparePrice > 0 {
		return p.ComparePrice
	}
	return p.Price
}

// DateRangeDays returns the inclusive number of days covered by the
// product's date range, which bounds day-pass quantities.
func (p Product) DateRangeDays() int {
	if p.StartDate == nil || p.EndDate == nil {
		return defaultRangeDays
	}
	diff := p.EndDate.Sub(*p.StartDate)
	if diff < 0 {
		return defaultRangeDays
	}
	return int(math.Ceil(diff.Hours()/24)) + 1
}

// Attendee is one member of the purchasing group.
type Attendee struct {
	ID       int64
	Name     string
	Email    string
	Category AttendeeCategory
}

// SortAttendees orders a group with the main holder first, then spouses,
// then remaining members by ID so rendering and payloads are stable.
func SortAttendees(attendees []Attendee) {
	rank := func(c AttendeeCategory) int {
		switch c {
		case AttendeeCategoryMain:
			return 0
		case AttendeeCategorySpouse:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(attendees, func(i, j int) bool {
		ri, rj := rank(attendees[i].Category), rank(attendees[j].Category)
		if ri != rj {
			return ri < rj
		}
		return attendees[i].ID < attendees[j].ID
	})
}

// ProductsFor filters the catalog down to the active products that apply
// to one attendee category, preserving catalog order.
func ProductsFor(products []Product, category AttendeeCategory) []Product {
	var out []Product
	for _, p := range products {
		if !p.Active || p.Category == ProductCategoryUnspecified {
			continue
		}
		if p.AttendeeCategory != category {
			continue
		}
		out = append(out, p)
	}
	return out
}

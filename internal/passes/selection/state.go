// Package selection holds the per-attendee pass selection state and the
// toggle rules that move it between valid configurations.
package selection

import (
	"github.com/louisbranch/popup.city/internal/passes/catalog"
	"github.com/louisbranch/popup.city/internal/passes/pricing"
)

// Line is the selection state of one product for one attendee.
type Line struct {
	Product catalog.Product
	// Selected marks the product as part of the current selection.
	Selected bool
	// Mirrored marks a week that is selected because the month covers
	// it. Mirrored weeks render selected but are never charged.
	Mirrored bool
	// Quantity is the day count for day passes.
	Quantity int
	// CustomAmount is the payer-chosen amount for variable-price
	// products, nil until the product is selected.
	CustomAmount *float64
	// Purchased marks a product already paid for in a prior checkout.
	Purchased bool
	// Covered marks a week included in a purchased month. Covered
	// weeks are locked and never charged or refunded on their own.
	Covered bool
	// PurchasedQuantity is the paid day count for day passes.
	PurchasedQuantity int
	// Edit marks a purchased line the payer wants refunded as credit.
	Edit bool
	// Disabled blocks toggling, set on purchased lines outside edit
	// mode.
	Disabled bool
	// Price is the effective unit price under the current tier, patron,
	// and discount context.
	Price float64
}

// ChargeableQuantity returns how many units of the line are owed in the
// current checkout. Purchased units are never re-charged.
func (l Line) ChargeableQuantity() int {
	if !l.Selected || l.Mirrored || l.Covered {
		return 0
	}
	if l.Product.Category == catalog.ProductCategoryDay {
		q := l.Quantity - l.PurchasedQuantity
		if q < 0 {
			return 0
		}
		return q
	}
	if l.Purchased {
		return 0
	}
	return 1
}

// UnitPrice returns the amount charged per unit, honoring payer-chosen
// amounts on variable-price products.
func (l Line) UnitPrice() float64 {
	if l.Product.VariablePrice() && l.CustomAmount != nil {
		return *l.CustomAmount
	}
	return l.Price
}

// OriginalUnitPrice returns the undiscounted amount per unit, used for
// subtotals and insurance.
func (l Line) OriginalUnitPrice() float64 {
	if l.Product.VariablePrice() && l.CustomAmount != nil {
		return *l.CustomAmount
	}
	return l.Product.OriginalPrice()
}

// AttendeeState pairs an attendee with their product lines.
type AttendeeState struct {
	Attendee catalog.Attendee
	Lines    []Line
}

// State is the full selection for a purchasing group.
type State struct {
	Attendees []AttendeeState
	// Tier and DiscountPercent are the pricing context the line prices
	// were derived under.
	Tier            pricing.TicketTier
	DiscountPercent float64
	// Editing is true while the payer swaps purchased passes for
	// credit.
	Editing bool
}

// Clone returns a deep copy so toggle operations never mutate their
// input.
func (s State) Clone() State {
	out := s
	out.Attendees = make([]AttendeeState, len(s.Attendees))
	for i, a := range s.Attendees {
		copied := a
		copied.Lines = make([]Line, len(a.Lines))
		copy(copied.Lines, a.Lines)
		for j := range copied.Lines {
			if ca := copied.Lines[j].CustomAmount; ca != nil {
				v := *ca
				copied.Lines[j].CustomAmount = &v
			}
		}
		out.Attendees[i] = copied
	}
	return out
}

// PatronActive reports whether any attendee has a patron pass selected.
func (s State) PatronActive() bool {
	for _, a := range s.Attendees {
		for _, l := range a.Lines {
			if l.Product.Category == catalog.ProductCategoryPatron && l.Selected {
				return true
			}
		}
	}
	return false
}

// HasPurchases reports whether any line was paid for in a prior
// checkout.
func (s State) HasPurchases() bool {
	for _, a := range s.Attendees {
		for _, l := range a.Lines {
			if l.Purchased {
				return true
			}
		}
	}
	return false
}

// EditCredit sums the value of purchased passes surrendered for refund:
// flagged lines, plus each paid day removed from a day pass.
func (s State) EditCredit() float64 {
	var credit float64
	for _, a := range s.Attendees {
		for _, l := range a.Lines {
			if l.Product.Category == catalog.ProductCategoryDay {
				if surrendered := l.PurchasedQuantity - l.Quantity; surrendered > 0 {
					credit += l.Price * float64(surrendered)
				}
				continue
			}
			if l.Edit && l.Purchased {
				credit += l.Price
			}
		}
	}
	return pricing.Round(credit)
}

func (s *State) attendee(attendeeID int64) *AttendeeState {
	for i := range s.Attendees {
		if s.Attendees[i].Attendee.ID == attendeeID {
			return &s.Attendees[i]
		}
	}
	return nil
}

func (a *AttendeeState) line(productID int64) *Line {
	for i := range a.Lines {
		if a.Lines[i].Product.ID == productID {
			return &a.Lines[i]
		}
	}
	return nil
}

func (a *AttendeeState) lineByCategory(c catalog.ProductCategory) *Line {
	for i := range a.Lines {
		if a.Lines[i].Product.Category == c {
			return &a.Lines[i]
		}
	}
	return nil
}

// reprice rederives every line price from the current pricing context.
func (s *State) reprice() {
	patron := s.PatronActive()
	for i := range s.Attendees {
		for j := range s.Attendees[i].Lines {
			l := &s.Attendees[i].Lines[j]
			l.Price = pricing.Price(l.Product, s.Tier, patron, s.DiscountPercent)
		}
	}
}

// refreshDisabled recomputes the Disabled flag after edit mode changes.
func (s *State) refreshDisabled() {
	for i := range s.Attendees {
		for j := range s.Attendees[i].Lines {
			l := &s.Attendees[i].Lines[j]
			l.Disabled = (l.Purchased && !s.Editing) || l.Covered
		}
	}
}

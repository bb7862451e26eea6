package selection

import (
	"strconv"

	"github.com/louisbranch/popup.city/internal/passes/catalog"
	apperrors "github.com/louisbranch/popup.city/internal/platform/errors"
)

// toggleStrategy applies one category's selection rules after the
// shared covered/purchased gating in Toggle.
type toggleStrategy func(next *State, att *AttendeeState, line *Line)

// Categories missing from the table (housing, merch, unspecified) are
// not per-attendee toggles and leave the state untouched.
var toggleStrategies = map[catalog.ProductCategory]toggleStrategy{
	catalog.ProductCategoryPatron:           togglePatron,
	catalog.ProductCategoryMonth:            toggleMonth,
	catalog.ProductCategoryWeek:             toggleWeek,
	catalog.ProductCategoryDay:              toggleDay,
	catalog.ProductCategoryExclusiveVariant: toggleFlip,
}

// Toggle flips a product for an attendee and applies the category's
// selection rules. In edit mode a purchased line toggles its refund flag
// instead. Unknown attendee or product references are stale client
// state and return the input snapshot unchanged. The input state is
// never mutated.
func Toggle(s State, attendeeID, productID int64) (State, error) {
	next := s.Clone()
	att := next.attendee(attendeeID)
	if att == nil {
		return s, nil
	}
	line := att.line(productID)
	if line == nil {
		return s, nil
	}

	if line.Covered {
		// Weeks inside a purchased month are managed through the month.
		return s, nil
	}
	if line.Purchased {
		if !next.Editing {
			// Owned passes stay locked outside edit mode.
			return s, nil
		}
		line.Edit = !line.Edit
		if line.Product.Category == catalog.ProductCategoryDay {
			// Flagging a day pass surrenders every purchased day;
			// unflagging restores the paid baseline.
			if line.Edit {
				line.Quantity = 0
			} else {
				line.Quantity = line.PurchasedQuantity
			}
			line.Selected = line.Quantity > 0
		}
		return next, nil
	}

	strategy, ok := toggleStrategies[line.Product.Category]
	if !ok {
		return s, nil
	}
	strategy(&next, att, line)

	if line.Exclusive() && line.Selected {
		deselectSiblingExclusives(att, line.Product.ID)
	}
	syncCustomAmount(line)
	next.reprice()
	return next, nil
}

// Exclusive reports whether selecting the line must deselect its
// exclusive siblings.
func (l Line) Exclusive() bool {
	return l.Product.Exclusive
}

func togglePatron(s *State, att *AttendeeState, line *Line) {
	line.Selected = !line.Selected
	if !line.Selected {
		// Deselecting restores baseline prices on reprice; prior
		// selections stay cleared.
		return
	}
	// One patron pass covers the group: everything else comes off,
	// including patron passes on other attendees.
	for i := range s.Attendees {
		for j := range s.Attendees[i].Lines {
			l := &s.Attendees[i].Lines[j]
			if l.Product.ID == line.Product.ID && s.Attendees[i].Attendee.ID == att.Attendee.ID {
				continue
			}
			if l.Purchased {
				continue
			}
			l.Selected = false
			l.Mirrored = false
			l.Quantity = l.PurchasedQuantity
			if l.Product.VariablePrice() {
				l.CustomAmount = nil
			}
		}
	}
}

func toggleMonth(_ *State, att *AttendeeState, line *Line) {
	line.Selected = !line.Selected
	for i := range att.Lines {
		l := &att.Lines[i]
		if l.Product.Category != catalog.ProductCategoryWeek || l.Purchased || l.Covered {
			continue
		}
		// Selected weeks stay visible when the month comes off, but
		// only a direct re-confirm makes them chargeable again.
		l.Selected = true
		l.Mirrored = true
	}
}

func toggleWeek(_ *State, att *AttendeeState, line *Line) {
	month := att.lineByCategory(catalog.ProductCategoryMonth)

	if month != nil && month.Selected && !month.Purchased {
		// Breaking one week out of the month drops the month; the
		// other weeks keep their mirrored, unpriced selection.
		month.Selected = false
		line.Selected = false
		line.Mirrored = false
		return
	}

	if line.Mirrored {
		line.Mirrored = false
	} else {
		line.Selected = !line.Selected
	}

	promoteWeeksToMonth(att, month)
}

// promoteWeeksToMonth selects the month when every week slot is
// individually confirmed, so the payer is never charged weeks past a
// full month.
func promoteWeeksToMonth(att *AttendeeState, month *Line) {
	if month == nil || month.Selected || month.Purchased {
		return
	}
	weeks := 0
	for i := range att.Lines {
		l := &att.Lines[i]
		if l.Product.Category != catalog.ProductCategoryWeek {
			continue
		}
		weeks++
		if l.Purchased {
			if l.Edit {
				// A week surrendered for refund is an open slot, not a
				// held one.
				return
			}
			continue
		}
		if l.Covered {
			continue
		}
		if !l.Selected || l.Mirrored {
			return
		}
	}
	if weeks == 0 {
		return
	}
	month.Selected = true
	for i := range att.Lines {
		l := &att.Lines[i]
		if l.Product.Category == catalog.ProductCategoryWeek && !l.Purchased {
			l.Selected = true
			l.Mirrored = true
		}
	}
}

// toggleFlip is the plain selection flip for standalone variants; any
// exclusivity is handled by the shared sibling deselection in Toggle.
func toggleFlip(_ *State, _ *AttendeeState, line *Line) {
	line.Selected = !line.Selected
}

func toggleDay(_ *State, _ *AttendeeState, line *Line) {
	if line.Selected && line.Quantity > line.PurchasedQuantity {
		line.Quantity = line.PurchasedQuantity
		line.Selected = line.Quantity > 0
		return
	}
	line.Quantity = line.PurchasedQuantity + 1
	line.Selected = true
}

func deselectSiblingExclusives(att *AttendeeState, keepProductID int64) {
	for i := range att.Lines {
		l := &att.Lines[i]
		if l.Product.ID == keepProductID || !l.Product.Exclusive || l.Purchased {
			continue
		}
		l.Selected = false
		l.Mirrored = false
		if l.Product.VariablePrice() {
			l.CustomAmount = nil
		}
	}
}

// syncCustomAmount seeds or clears the payer-chosen amount when a
// variable-price line changes selection.
func syncCustomAmount(line *Line) {
	if !line.Product.VariablePrice() {
		return
	}
	if line.Selected && line.CustomAmount == nil {
		seed := line.Product.Price
		if min := line.Product.MinPrice; min != nil && seed < *min {
			seed = *min
		}
		line.CustomAmount = &seed
	}
	if !line.Selected {
		line.CustomAmount = nil
	}
}

// IncrementDay raises a day-pass quantity by one, bounded by the
// product's date range.
func IncrementDay(s State, attendeeID, productID int64) (State, error) {
	next := s.Clone()
	line, err := dayLine(&next, attendeeID, productID)
	if err != nil {
		return s, err
	}
	max := line.Product.DateRangeDays()
	if line.Quantity >= max {
		return s, apperrors.WithMetadata(apperrors.CodeDayQuantityExceedsRange, "day quantity exceeds the event date range", map[string]string{
			"Max": strconv.Itoa(max),
		})
	}
	line.Quantity++
	line.Selected = true
	next.reprice()
	return next, nil
}

// DecrementDay lowers a day-pass quantity by one. Paid days cannot be
// removed outside edit mode; in edit mode each removed paid day becomes
// credit, down to zero.
func DecrementDay(s State, attendeeID, productID int64) (State, error) {
	next := s.Clone()
	line, err := dayLine(&next, attendeeID, productID)
	if err != nil {
		return s, err
	}
	floor := line.PurchasedQuantity
	if next.Editing {
		floor = 0
	}
	if line.Quantity <= floor {
		return s, apperrors.WithMetadata(apperrors.CodeDayQuantityBelowPurchased, "cannot remove already purchased days", map[string]string{
			"Purchased": strconv.Itoa(line.PurchasedQuantity),
		})
	}
	line.Quantity--
	line.Selected = line.Quantity > 0
	next.reprice()
	return next, nil
}

// ResetDay drops a day-pass back to its purchased quantity.
func ResetDay(s State, attendeeID, productID int64) (State, error) {
	next := s.Clone()
	line, err := dayLine(&next, attendeeID, productID)
	if err != nil {
		return s, err
	}
	line.Quantity = line.PurchasedQuantity
	line.Selected = line.Quantity > 0
	next.reprice()
	return next, nil
}

func dayLine(s *State, attendeeID, productID int64) (*Line, error) {
	att := s.attendee(attendeeID)
	if att == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "attendee not found")
	}
	line := att.line(productID)
	if line == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "product not found for attendee")
	}
	if line.Product.Category != catalog.ProductCategoryDay {
		return nil, apperrors.New(apperrors.CodeProductInvalidCategory, "quantity only applies to day passes")
	}
	return line, nil
}

// SetCustomAmount sets the payer-chosen amount on a variable-price line
// and selects it, enforcing the product's bounds.
func SetCustomAmount(s State, attendeeID, productID int64, amount float64) (State, error) {
	next := s.Clone()
	att := next.attendee(attendeeID)
	if att == nil {
		return s, apperrors.New(apperrors.CodeNotFound, "attendee not found")
	}
	line := att.line(productID)
	if line == nil {
		return s, apperrors.New(apperrors.CodeNotFound, "product not found for attendee")
	}
	if !line.Product.VariablePrice() {
		return s, apperrors.New(apperrors.CodeProductInvalidCategory, "product does not accept a custom amount")
	}
	if err := validateCustomAmount(line.Product, amount); err != nil {
		return s, err
	}
	if line.Product.Category == catalog.ProductCategoryPatron && !line.Selected {
		line.Selected = false
		togglePatron(&next, att, line)
	}
	line.Selected = true
	line.CustomAmount = &amount
	if line.Exclusive() {
		deselectSiblingExclusives(att, line.Product.ID)
	}
	next.reprice()
	return next, nil
}

func validateCustomAmount(p catalog.Product, amount float64) error {
	meta := map[string]string{
		"Amount": strconv.FormatFloat(amount, 'f', -1, 64),
	}
	if p.MinPrice != nil {
		meta["Min"] = strconv.FormatFloat(*p.MinPrice, 'f', -1, 64)
	}
	if p.MaxPrice != nil {
		meta["Max"] = strconv.FormatFloat(*p.MaxPrice, 'f', -1, 64)
	}
	if p.MinPrice != nil && amount < *p.MinPrice {
		return apperrors.WithMetadata(apperrors.CodeVariableAmountOutOfRange, "amount is below the product minimum", meta)
	}
	if p.MaxPrice != nil && amount > *p.MaxPrice {
		return apperrors.WithMetadata(apperrors.CodeVariableAmountOutOfRange, "amount is above the product maximum", meta)
	}
	return nil
}

// SetEditing turns edit mode on or off. Entering requires a prior
// purchase; leaving clears pending refund flags.
func SetEditing(s State, editing bool) (State, error) {
	if editing && !s.HasPurchases() {
		return s, apperrors.New(apperrors.CodeEditRequiresPurchasedItem, "nothing purchased to edit")
	}
	next := s.Clone()
	next.Editing = editing
	if !editing {
		for i := range next.Attendees {
			for j := range next.Attendees[i].Lines {
				l := &next.Attendees[i].Lines[j]
				l.Edit = false
				if l.Product.Category == catalog.ProductCategoryDay && l.Quantity < l.PurchasedQuantity {
					l.Quantity = l.PurchasedQuantity
					l.Selected = l.Quantity > 0
				}
			}
		}
	}
	next.refreshDisabled()
	return next, nil
}

// SetDiscount reprices the whole state under a new discount percentage.
func SetDiscount(s State, percent float64) State {
	next := s.Clone()
	next.DiscountPercent = percent
	next.reprice()
	return next
}

// Clear drops every unpurchased selection back to baseline.
func Clear(s State) State {
	next := s.Clone()
	for i := range next.Attendees {
		for j := range next.Attendees[i].Lines {
			l := &next.Attendees[i].Lines[j]
			l.Edit = false
			if l.Purchased {
				continue
			}
			l.Selected = false
			l.Mirrored = false
			l.Quantity = l.PurchasedQuantity
			l.CustomAmount = nil
		}
	}
	next.reprice()
	return next
}

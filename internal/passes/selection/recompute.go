package selection

import (
	"github.com/louisbranch/popup.city/internal/passes/catalog"
	"github.com/louisbranch/popup.city/internal/passes/pricing"
)

// Purchase is one line item from a settled payment.
type Purchase struct {
	AttendeeID int64
	ProductID  int64
	Quantity   int
}

// Restored is one persisted selection being replayed into a fresh state.
type Restored struct {
	AttendeeID   int64
	ProductID    int64
	Quantity     int
	CustomAmount *float64
}

// Inputs carries everything needed to build a selection state from
// upstream data.
type Inputs struct {
	Products  []catalog.Product
	Attendees []catalog.Attendee
	Tier      pricing.TicketTier
	// DiscountPercent is the winning discount at build time.
	DiscountPercent float64
	// History is the group's settled purchases for this event.
	History []Purchase
	// Restored is the persisted in-progress selection, applied on top
	// of history.
	Restored []Restored
	Editing  bool
}

// Recompute builds a fresh State from upstream data. Purchased lines are
// locked, purchased months cover their weeks, persisted selections are
// replayed where still valid, and every price is rederived.
func Recompute(in Inputs) State {
	attendees := make([]catalog.Attendee, len(in.Attendees))
	copy(attendees, in.Attendees)
	catalog.SortAttendees(attendees)

	s := State{
		Tier:            in.Tier,
		DiscountPercent: in.DiscountPercent,
		Editing:         in.Editing,
	}

	purchased := make(map[[2]int64]int, len(in.History))
	for _, p := range in.History {
		key := [2]int64{p.AttendeeID, p.ProductID}
		qty := p.Quantity
		if qty <= 0 {
			qty = 1
		}
		purchased[key] += qty
	}
	restored := make(map[[2]int64]Restored, len(in.Restored))
	for _, r := range in.Restored {
		restored[[2]int64{r.AttendeeID, r.ProductID}] = r
	}

	for _, att := range attendees {
		products := catalog.ProductsFor(in.Products, att.Category)
		state := AttendeeState{Attendee: att, Lines: make([]Line, 0, len(products))}
		for _, p := range products {
			line := Line{Product: p}
			if qty, ok := purchased[[2]int64{att.ID, p.ID}]; ok {
				line.Purchased = true
				if p.Category == catalog.ProductCategoryDay {
					line.PurchasedQuantity = qty
					line.Quantity = qty
				}
			}
			state.Lines = append(state.Lines, line)
		}
		applyMonthCoverage(&state)
		replayRestored(&state, restored)
		markMirroredWeeks(&state)
		s.Attendees = append(s.Attendees, state)
	}

	s.refreshDisabled()
	s.reprice()
	return s
}

// applyMonthCoverage locks week lines covered by a purchased month so
// they cannot be bought twice.
func applyMonthCoverage(att *AttendeeState) {
	month := att.lineByCategory(catalog.ProductCategoryMonth)
	if month == nil || !month.Purchased {
		return
	}
	for i := range att.Lines {
		l := &att.Lines[i]
		if l.Product.Category == catalog.ProductCategoryWeek {
			l.Covered = true
		}
	}
}

// replayRestored reapplies a persisted selection onto the live lines.
// Fully bought non-day lines are skipped; partially purchased day
// passes keep the larger of the restored and the purchased quantity.
func replayRestored(att *AttendeeState, restored map[[2]int64]Restored) {
	for i := range att.Lines {
		l := &att.Lines[i]
		r, ok := restored[[2]int64{att.Attendee.ID, l.Product.ID}]
		if !ok {
			continue
		}
		if l.Purchased && l.Product.Category != catalog.ProductCategoryDay {
			continue
		}
		l.Selected = true
		if l.Product.Category == catalog.ProductCategoryDay {
			qty := r.Quantity
			if qty < l.PurchasedQuantity {
				qty = l.PurchasedQuantity
			}
			if max := l.Product.DateRangeDays(); qty > max {
				qty = max
			}
			l.Quantity = qty
			l.Selected = l.Quantity > 0
		}
		if l.Product.VariablePrice() && r.CustomAmount != nil {
			if validateCustomAmount(l.Product, *r.CustomAmount) == nil {
				v := *r.CustomAmount
				l.CustomAmount = &v
			}
		}
		syncCustomAmount(l)
	}
}

// markMirroredWeeks rebuilds the mirrored flag on weeks covered by a
// selected month.
func markMirroredWeeks(att *AttendeeState) {
	month := att.lineByCategory(catalog.ProductCategoryMonth)
	if month == nil || !month.Selected {
		return
	}
	for i := range att.Lines {
		l := &att.Lines[i]
		if l.Product.Category == catalog.ProductCategoryWeek && !l.Purchased {
			l.Selected = true
			l.Mirrored = true
		}
	}
}

// Package cart aggregates a selection, housing, merch, and patron
// extras into the totals a payer sees at checkout.
package cart

import (
	"math"
	"time"

	"github.com/louisbranch/popup.city/internal/passes/catalog"
	"github.com/louisbranch/popup.city/internal/passes/pricing"
	"github.com/louisbranch/popup.city/internal/passes/selection"
)

// HousingItem is a lodging choice priced per night.
type HousingItem struct {
	Product  catalog.Product
	CheckIn  time.Time
	CheckOut time.Time
}

// Nights returns the billable night count, never less than one.
func (h HousingItem) Nights() int {
	diff := h.CheckOut.Sub(h.CheckIn)
	nights := int(math.Ceil(diff.Hours() / 24))
	if nights < 1 {
		return 1
	}
	return nights
}

// MerchItem is merchandise priced per unit.
type MerchItem struct {
	Product  catalog.Product
	Quantity int
}

// Input is everything the aggregator needs to price a checkout.
type Input struct {
	Selection selection.State
	Housing   *HousingItem
	Merch     []MerchItem
	// InsuranceEnabled charges refund insurance; the potential amount
	// is reported either way.
	InsuranceEnabled bool
	// AccountCredit is a balance applied against the total.
	AccountCredit float64
}

// LineItem is one charged row in the summary.
type LineItem struct {
	AttendeeID  int64
	ProductID   int64
	Name        string
	Quantity    int
	UnitPrice   float64
	Total       float64
	CustomPrice bool
}

// Summary is the aggregated cart.
type Summary struct {
	Passes  []LineItem
	Housing *LineItem
	Merch   []LineItem

	// Subtotal is the undiscounted total across all sections.
	Subtotal float64
	// DiscountAmount is how much the applied discount removes.
	DiscountAmount float64
	// InsurancePotential is what insurance would cost; always
	// reported so the payer can opt in.
	InsurancePotential float64
	// InsuranceSubtotal is the charged insurance amount.
	InsuranceSubtotal float64
	// EditCredit is the value of purchased passes flagged for refund.
	EditCredit float64
	// UpgradeCredit offsets a month purchase by the weeks and days
	// already paid for.
	UpgradeCredit float64
	// AccountCredit echoes the applied balance.
	AccountCredit float64
	// GrandTotal is the amount owed now, floored at zero.
	GrandTotal float64
	ItemCount  int
}

// Aggregate prices the whole cart. The subtotal uses undiscounted
// prices; the discount shows as a separate reduction.
func Aggregate(in Input) Summary {
	var sum Summary
	var original, charged, insurable float64

	for _, att := range in.Selection.Attendees {
		for _, line := range att.Lines {
			qty := line.ChargeableQuantity()
			if qty == 0 {
				continue
			}
			item := LineItem{
				AttendeeID:  att.Attendee.ID,
				ProductID:   line.Product.ID,
				Name:        line.Product.Name,
				Quantity:    qty,
				UnitPrice:   line.UnitPrice(),
				Total:       pricing.Round(line.UnitPrice() * float64(qty)),
				CustomPrice: line.Product.VariablePrice() && line.CustomAmount != nil,
			}
			sum.Passes = append(sum.Passes, item)
			sum.ItemCount++

			lineOriginal := line.OriginalUnitPrice() * float64(qty)
			original += lineOriginal
			charged += item.Total
			if line.Product.InsurancePercent != nil {
				insurable += lineOriginal * *line.Product.InsurancePercent / 100
			}
		}
	}

	if in.Housing != nil {
		nights := in.Housing.Nights()
		total := pricing.Round(in.Housing.Product.Price * float64(nights))
		sum.Housing = &LineItem{
			ProductID: in.Housing.Product.ID,
			Name:      in.Housing.Product.Name,
			Quantity:  nights,
			UnitPrice: in.Housing.Product.Price,
			Total:     total,
		}
		sum.ItemCount++
		original += total
		charged += total
		if pct := in.Housing.Product.InsurancePercent; pct != nil {
			insurable += total * *pct / 100
		}
	}

	for _, m := range in.Merch {
		if m.Quantity <= 0 {
			continue
		}
		total := pricing.Round(m.Product.Price * float64(m.Quantity))
		sum.Merch = append(sum.Merch, LineItem{
			ProductID: m.Product.ID,
			Name:      m.Product.Name,
			Quantity:  m.Quantity,
			UnitPrice: m.Product.Price,
			Total:     total,
		})
		sum.ItemCount++
		original += total
		charged += total
		if pct := m.Product.InsurancePercent; pct != nil {
			insurable += total * *pct / 100
		}
	}

	sum.Subtotal = pricing.Round(original)
	sum.DiscountAmount = pricing.Round(original - charged)
	sum.InsurancePotential = pricing.Round(insurable)
	if in.InsuranceEnabled {
		sum.InsuranceSubtotal = sum.InsurancePotential
	}

	if in.Selection.Editing {
		sum.EditCredit = in.Selection.EditCredit()
	} else {
		sum.UpgradeCredit = upgradeCredit(in.Selection)
	}
	sum.AccountCredit = pricing.Round(in.AccountCredit)

	total := charged + sum.InsuranceSubtotal - sum.EditCredit - sum.UpgradeCredit - sum.AccountCredit
	if total < 0 {
		total = 0
	}
	sum.GrandTotal = pricing.Round(total)
	return sum
}

// upgradeCredit refunds already-purchased weeks and days when the payer
// upgrades to a month, so the upgrade costs the difference. A patron
// selection suppresses it since nothing else is charged.
func upgradeCredit(s selection.State) float64 {
	if s.PatronActive() {
		return 0
	}
	var credit float64
	for _, att := range s.Attendees {
		month := monthLine(att)
		if month == nil || !month.Selected || month.Purchased {
			continue
		}
		for _, l := range att.Lines {
			if !l.Purchased || l.Product.Category == catalog.ProductCategoryPatron {
				continue
			}
			switch l.Product.Category {
			case catalog.ProductCategoryWeek:
				credit += l.Product.OriginalPrice()
			case catalog.ProductCategoryDay:
				credit += l.Product.OriginalPrice() * float64(l.PurchasedQuantity)
			}
		}
	}
	return pricing.Round(credit)
}

func monthLine(att selection.AttendeeState) *selection.Line {
	for i := range att.Lines {
		if att.Lines[i].Product.Category == catalog.ProductCategoryMonth {
			return &att.Lines[i]
		}
	}
	return nil
}

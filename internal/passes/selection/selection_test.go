package selection

import (
	"testing"
	"time"

	"github.com/louisbranch/popup.city/internal/passes/catalog"
	"github.com/louisbranch/popup.city/internal/passes/pricing"
	apperrors "github.com/louisbranch/popup.city/internal/platform/errors"
)

func fptr(v float64) *float64 { return &v }

const (
	attendeeMain int64 = 1

	productMonth  int64 = 10
	productWeek1  int64 = 11
	productWeek2  int64 = 12
	productWeek3  int64 = 13
	productWeek4  int64 = 14
	productDay    int64 = 15
	productPatron int64 = 16
)

func testProducts() []catalog.Product {
	start := time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.October, 10, 0, 0, 0, 0, time.UTC)
	return []catalog.Product{
		{ID: productMonth, Name: "Full Month", Category: catalog.ProductCategoryMonth, AttendeeCategory: catalog.AttendeeCategoryMain, Price: 1000, Active: true},
		{ID: productWeek1, Name: "Week 1", Category: catalog.ProductCategoryWeek, AttendeeCategory: catalog.AttendeeCategoryMain, Price: 300, Active: true},
		{ID: productWeek2, Name: "Week 2", Category: catalog.ProductCategoryWeek, AttendeeCategory: catalog.AttendeeCategoryMain, Price: 300, Active: true},
		{ID: productWeek3, Name: "Week 3", Category: catalog.ProductCategoryWeek, AttendeeCategory: catalog.AttendeeCategoryMain, Price: 300, Active: true},
		{ID: productWeek4, Name: "Week 4", Category: catalog.ProductCategoryWeek, AttendeeCategory: catalog.AttendeeCategoryMain, Price: 300, Active: true},
		{ID: productDay, Name: "Day Pass", Category: catalog.ProductCategoryDay, AttendeeCategory: catalog.AttendeeCategoryMain, Price: 60, Active: true, StartDate: &start, EndDate: &end},
		{ID: productPatron, Name: "Patron", Category: catalog.ProductCategoryPatron, AttendeeCategory: catalog.AttendeeCategoryMain, Price: 500, MinPrice: fptr(500), MaxPrice: fptr(5000), Active: true},
	}
}

func testState(t *testing.T, in Inputs) State {
	t.Helper()
	if in.Products == nil {
		in.Products = testProducts()
	}
	if in.Attendees == nil {
		in.Attendees = []catalog.Attendee{{ID: attendeeMain, Name: "Ada", Category: catalog.AttendeeCategoryMain}}
	}
	if in.Tier == pricing.TierUnspecified {
		in.Tier = pricing.TierStandard
	}
	return Recompute(in)
}

func mustToggle(t *testing.T, s State, attendeeID, productID int64) State {
	t.Helper()
	next, err := Toggle(s, attendeeID, productID)
	if err != nil {
		t.Fatalf("Toggle(%d, %d) returned error: %v", attendeeID, productID, err)
	}
	return next
}

func findLine(t *testing.T, s State, attendeeID, productID int64) Line {
	t.Helper()
	att := s.attendee(attendeeID)
	if att == nil {
		t.Fatalf("attendee %d not in state", attendeeID)
	}
	line := att.line(productID)
	if line == nil {
		t.Fatalf("product %d not in attendee %d lines", productID, attendeeID)
	}
	return *line
}

func TestToggleIsInvolutory(t *testing.T) {
	s := testState(t, Inputs{})

	once := mustToggle(t, s, attendeeMain, productWeek1)
	if !findLine(t, once, attendeeMain, productWeek1).Selected {
		t.Fatal("week not selected after first toggle")
	}

	twice := mustToggle(t, once, attendeeMain, productWeek1)
	if findLine(t, twice, attendeeMain, productWeek1).Selected {
		t.Fatal("week still selected after second toggle")
	}
	if twice.PatronActive() {
		t.Fatal("patron active on untouched state")
	}
}

func TestMonthMirrorsWeeks(t *testing.T) {
	s := testState(t, Inputs{})
	s = mustToggle(t, s, attendeeMain, productMonth)

	for _, id := range []int64{productWeek1, productWeek2, productWeek3, productWeek4} {
		l := findLine(t, s, attendeeMain, id)
		if !l.Selected || !l.Mirrored {
			t.Fatalf("week %d selected=%v mirrored=%v, want both true", id, l.Selected, l.Mirrored)
		}
		if l.ChargeableQuantity() != 0 {
			t.Fatalf("mirrored week %d is chargeable", id)
		}
	}
	if findLine(t, s, attendeeMain, productMonth).ChargeableQuantity() != 1 {
		t.Fatal("month not chargeable")
	}
}

func TestWeekBreaksMonth(t *testing.T) {
	s := testState(t, Inputs{})
	s = mustToggle(t, s, attendeeMain, productMonth)
	s = mustToggle(t, s, attendeeMain, productWeek2)

	if findLine(t, s, attendeeMain, productMonth).Selected {
		t.Fatal("month still selected after breaking a week out")
	}
	if findLine(t, s, attendeeMain, productWeek2).Selected {
		t.Fatal("broken week still selected")
	}
	// Remaining weeks stay visible but unpriced until re-confirmed.
	for _, id := range []int64{productWeek1, productWeek3, productWeek4} {
		l := findLine(t, s, attendeeMain, id)
		if !l.Selected || !l.Mirrored {
			t.Fatalf("week %d selected=%v mirrored=%v, want mirrored", id, l.Selected, l.Mirrored)
		}
	}
}

func TestAllWeeksPromoteToMonth(t *testing.T) {
	s := testState(t, Inputs{})
	for _, id := range []int64{productWeek1, productWeek2, productWeek3} {
		s = mustToggle(t, s, attendeeMain, id)
		if findLine(t, s, attendeeMain, productMonth).Selected {
			t.Fatalf("month selected after only %d weeks", id-productMonth)
		}
	}

	s = mustToggle(t, s, attendeeMain, productWeek4)
	if !findLine(t, s, attendeeMain, productMonth).Selected {
		t.Fatal("month not selected after all weeks picked")
	}
	charged := 0
	for _, id := range []int64{productWeek1, productWeek2, productWeek3, productWeek4} {
		charged += findLine(t, s, attendeeMain, id).ChargeableQuantity()
	}
	if charged != 0 {
		t.Fatalf("%d weeks charged alongside the month", charged)
	}
}

func TestPatronZeroesAndRestores(t *testing.T) {
	s := testState(t, Inputs{})
	s = mustToggle(t, s, attendeeMain, productWeek1)
	weekPrice := findLine(t, s, attendeeMain, productWeek1).Price
	if weekPrice != 300 {
		t.Fatalf("baseline week price = %v, want 300", weekPrice)
	}

	s = mustToggle(t, s, attendeeMain, productPatron)
	if !s.PatronActive() {
		t.Fatal("patron not active after toggle")
	}
	week := findLine(t, s, attendeeMain, productWeek1)
	if week.Selected {
		t.Fatal("week still selected under patron")
	}
	if week.Price != 0 {
		t.Fatalf("week price under patron = %v, want 0", week.Price)
	}
	patron := findLine(t, s, attendeeMain, productPatron)
	if patron.CustomAmount == nil || *patron.CustomAmount != 500 {
		t.Fatalf("patron custom amount = %v, want seeded 500", patron.CustomAmount)
	}

	s = mustToggle(t, s, attendeeMain, productPatron)
	restored := findLine(t, s, attendeeMain, productWeek1)
	if restored.Price != 300 {
		t.Fatalf("week price after patron removed = %v, want 300", restored.Price)
	}
	if restored.Selected {
		t.Fatal("week reselected itself after patron removed")
	}
	if findLine(t, s, attendeeMain, productPatron).CustomAmount != nil {
		t.Fatal("patron custom amount not cleared on deselect")
	}
}

func TestDayQuantityBounds(t *testing.T) {
	s := testState(t, Inputs{})

	var err error
	for i := 0; i < 10; i++ {
		s, err = IncrementDay(s, attendeeMain, productDay)
		if err != nil {
			t.Fatalf("IncrementDay %d returned error: %v", i+1, err)
		}
	}
	if got := findLine(t, s, attendeeMain, productDay).Quantity; got != 10 {
		t.Fatalf("quantity = %d, want 10", got)
	}

	_, err = IncrementDay(s, attendeeMain, productDay)
	if !apperrors.IsCode(err, apperrors.CodeDayQuantityExceedsRange) {
		t.Fatalf("over-range error = %v, want %s", err, apperrors.CodeDayQuantityExceedsRange)
	}
}

func TestDayQuantityFloorsAtPurchased(t *testing.T) {
	s := testState(t, Inputs{
		History: []Purchase{{AttendeeID: attendeeMain, ProductID: productDay, Quantity: 3}},
	})
	line := findLine(t, s, attendeeMain, productDay)
	if line.Quantity != 3 || line.PurchasedQuantity != 3 {
		t.Fatalf("quantity=%d purchased=%d, want 3/3", line.Quantity, line.PurchasedQuantity)
	}

	_, err := DecrementDay(s, attendeeMain, productDay)
	if !apperrors.IsCode(err, apperrors.CodeDayQuantityBelowPurchased) {
		t.Fatalf("below-purchased error = %v, want %s", err, apperrors.CodeDayQuantityBelowPurchased)
	}

	s, err = IncrementDay(s, attendeeMain, productDay)
	if err != nil {
		t.Fatalf("IncrementDay returned error: %v", err)
	}
	if got := findLine(t, s, attendeeMain, productDay).ChargeableQuantity(); got != 1 {
		t.Fatalf("chargeable quantity = %d, want 1 (only the new day)", got)
	}

	s, err = ResetDay(s, attendeeMain, productDay)
	if err != nil {
		t.Fatalf("ResetDay returned error: %v", err)
	}
	if got := findLine(t, s, attendeeMain, productDay).Quantity; got != 3 {
		t.Fatalf("quantity after reset = %d, want 3", got)
	}
}

func TestExclusiveProductsDeselectSiblings(t *testing.T) {
	products := []catalog.Product{
		{ID: 21, Name: "Tent", Category: catalog.ProductCategoryWeek, AttendeeCategory: catalog.AttendeeCategoryMain, Price: 100, Exclusive: true, Active: true},
		{ID: 22, Name: "Dorm", Category: catalog.ProductCategoryWeek, AttendeeCategory: catalog.AttendeeCategoryMain, Price: 200, Exclusive: true, Active: true},
	}
	s := testState(t, Inputs{Products: products})

	s = mustToggle(t, s, attendeeMain, 21)
	s = mustToggle(t, s, attendeeMain, 22)

	if findLine(t, s, attendeeMain, 21).Selected {
		t.Fatal("first exclusive still selected")
	}
	if !findLine(t, s, attendeeMain, 22).Selected {
		t.Fatal("second exclusive not selected")
	}
}

func TestPurchasedLinesLockOutsideEditMode(t *testing.T) {
	s := testState(t, Inputs{
		History: []Purchase{{AttendeeID: attendeeMain, ProductID: productWeek1}},
	})
	line := findLine(t, s, attendeeMain, productWeek1)
	if !line.Purchased || !line.Disabled {
		t.Fatalf("purchased=%v disabled=%v, want both true", line.Purchased, line.Disabled)
	}

	next := mustToggle(t, s, attendeeMain, productWeek1)
	if findLine(t, next, attendeeMain, productWeek1).Edit {
		t.Fatal("edit flag set outside edit mode")
	}
}

func TestEditModeFlagsPurchasedLines(t *testing.T) {
	s := testState(t, Inputs{
		History: []Purchase{{AttendeeID: attendeeMain, ProductID: productWeek1}},
	})

	s, err := SetEditing(s, true)
	if err != nil {
		t.Fatalf("SetEditing returned error: %v", err)
	}
	s = mustToggle(t, s, attendeeMain, productWeek1)
	if !findLine(t, s, attendeeMain, productWeek1).Edit {
		t.Fatal("edit flag not set on purchased line")
	}
	if got := s.EditCredit(); got != 300 {
		t.Fatalf("EditCredit() = %v, want 300", got)
	}

	// New passes can still be added while editing.
	s = mustToggle(t, s, attendeeMain, productWeek2)
	if !findLine(t, s, attendeeMain, productWeek2).Selected {
		t.Fatal("unpurchased week not selectable in edit mode")
	}

	s, err = SetEditing(s, false)
	if err != nil {
		t.Fatalf("SetEditing(false) returned error: %v", err)
	}
	if findLine(t, s, attendeeMain, productWeek1).Edit {
		t.Fatal("edit flag survived leaving edit mode")
	}
}

func TestEditModeRequiresPurchase(t *testing.T) {
	s := testState(t, Inputs{})
	_, err := SetEditing(s, true)
	if !apperrors.IsCode(err, apperrors.CodeEditRequiresPurchasedItem) {
		t.Fatalf("SetEditing error = %v, want %s", err, apperrors.CodeEditRequiresPurchasedItem)
	}
}

func TestPurchasedMonthCoversWeeks(t *testing.T) {
	s := testState(t, Inputs{
		History: []Purchase{{AttendeeID: attendeeMain, ProductID: productMonth}},
	})
	for _, id := range []int64{productWeek1, productWeek2, productWeek3, productWeek4} {
		l := findLine(t, s, attendeeMain, id)
		if !l.Covered || !l.Disabled {
			t.Fatalf("week %d covered=%v disabled=%v, want locked under purchased month", id, l.Covered, l.Disabled)
		}
		if l.ChargeableQuantity() != 0 {
			t.Fatalf("week %d chargeable under purchased month", id)
		}
	}

	// Covered weeks are not individually refundable in edit mode.
	s, err := SetEditing(s, true)
	if err != nil {
		t.Fatalf("SetEditing returned error: %v", err)
	}
	s = mustToggle(t, s, attendeeMain, productWeek1)
	if findLine(t, s, attendeeMain, productWeek1).Edit {
		t.Fatal("covered week accepted an edit flag")
	}
}

func TestRecomputeReplaysRestoredSelections(t *testing.T) {
	s := testState(t, Inputs{
		Restored: []Restored{
			{AttendeeID: attendeeMain, ProductID: productWeek1},
			{AttendeeID: attendeeMain, ProductID: productDay, Quantity: 4},
			{AttendeeID: attendeeMain, ProductID: productPatron, CustomAmount: fptr(800)},
		},
	})

	if !findLine(t, s, attendeeMain, productWeek1).Selected {
		t.Fatal("restored week not selected")
	}
	if got := findLine(t, s, attendeeMain, productDay).Quantity; got != 4 {
		t.Fatalf("restored day quantity = %d, want 4", got)
	}
	patron := findLine(t, s, attendeeMain, productPatron)
	if patron.CustomAmount == nil || *patron.CustomAmount != 800 {
		t.Fatalf("restored patron amount = %v, want 800", patron.CustomAmount)
	}
	if !s.PatronActive() {
		t.Fatal("patron inactive after restore")
	}
}

func TestRecomputeSkipsRestoredPurchases(t *testing.T) {
	s := testState(t, Inputs{
		History:  []Purchase{{AttendeeID: attendeeMain, ProductID: productWeek1}},
		Restored: []Restored{{AttendeeID: attendeeMain, ProductID: productWeek1}},
	})
	if got := findLine(t, s, attendeeMain, productWeek1).ChargeableQuantity(); got != 0 {
		t.Fatalf("purchased week chargeable after restore, quantity = %d", got)
	}
}

func TestSetCustomAmountBounds(t *testing.T) {
	s := testState(t, Inputs{})

	_, err := SetCustomAmount(s, attendeeMain, productPatron, 100)
	if !apperrors.IsCode(err, apperrors.CodeVariableAmountOutOfRange) {
		t.Fatalf("below-min error = %v, want %s", err, apperrors.CodeVariableAmountOutOfRange)
	}
	_, err = SetCustomAmount(s, attendeeMain, productPatron, 9000)
	if !apperrors.IsCode(err, apperrors.CodeVariableAmountOutOfRange) {
		t.Fatalf("above-max error = %v, want %s", err, apperrors.CodeVariableAmountOutOfRange)
	}

	s, err = SetCustomAmount(s, attendeeMain, productPatron, 1200)
	if err != nil {
		t.Fatalf("SetCustomAmount returned error: %v", err)
	}
	patron := findLine(t, s, attendeeMain, productPatron)
	if !patron.Selected || patron.UnitPrice() != 1200 {
		t.Fatalf("selected=%v unit=%v, want selected at 1200", patron.Selected, patron.UnitPrice())
	}
}

func TestClearKeepsPurchases(t *testing.T) {
	s := testState(t, Inputs{
		History: []Purchase{{AttendeeID: attendeeMain, ProductID: productDay, Quantity: 2}},
	})
	s = mustToggle(t, s, attendeeMain, productWeek1)
	var err error
	s, err = IncrementDay(s, attendeeMain, productDay)
	if err != nil {
		t.Fatalf("IncrementDay returned error: %v", err)
	}

	s = Clear(s)
	if findLine(t, s, attendeeMain, productWeek1).Selected {
		t.Fatal("week survived Clear")
	}
	day := findLine(t, s, attendeeMain, productDay)
	if day.Quantity != 2 || !day.Purchased {
		t.Fatalf("day quantity=%d purchased=%v after Clear, want 2/true", day.Quantity, day.Purchased)
	}
}

func TestToggleUnknownTargetsAreNoOps(t *testing.T) {
	s := testState(t, Inputs{})
	s, err := Toggle(s, attendeeMain, productWeek1)
	if err != nil {
		t.Fatalf("Toggle returned error: %v", err)
	}

	next, err := Toggle(s, 99, productWeek1)
	if err != nil {
		t.Fatalf("unknown attendee error = %v, want nil", err)
	}
	if !findLine(t, next, attendeeMain, productWeek1).Selected {
		t.Fatal("expected prior selection to survive a stale attendee toggle")
	}

	next, err = Toggle(s, attendeeMain, 999)
	if err != nil {
		t.Fatalf("unknown product error = %v, want nil", err)
	}
	if !findLine(t, next, attendeeMain, productWeek1).Selected {
		t.Fatal("expected prior selection to survive a stale product toggle")
	}

	if _, err := IncrementDay(s, attendeeMain, 999); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("unknown day product error = %v, want %s", err, apperrors.CodeNotFound)
	}
}

func TestEditModeSurrendersDays(t *testing.T) {
	s := testState(t, Inputs{
		History: []Purchase{{AttendeeID: attendeeMain, ProductID: productDay, Quantity: 3}},
	})
	s, err := SetEditing(s, true)
	if err != nil {
		t.Fatalf("SetEditing returned error: %v", err)
	}

	s, err = DecrementDay(s, attendeeMain, productDay)
	if err != nil {
		t.Fatalf("DecrementDay returned error: %v", err)
	}
	if got := findLine(t, s, attendeeMain, productDay).Quantity; got != 2 {
		t.Fatalf("quantity = %d, want 2", got)
	}
	if got := s.EditCredit(); got != 60 {
		t.Fatalf("edit credit = %v, want 60 (one surrendered day)", got)
	}

	// Flagging the line surrenders every remaining paid day.
	s, err = Toggle(s, attendeeMain, productDay)
	if err != nil {
		t.Fatalf("Toggle returned error: %v", err)
	}
	line := findLine(t, s, attendeeMain, productDay)
	if !line.Edit || line.Quantity != 0 {
		t.Fatalf("edit=%v quantity=%d, want flagged with 0 days", line.Edit, line.Quantity)
	}
	if got := s.EditCredit(); got != 180 {
		t.Fatalf("edit credit = %v, want 180", got)
	}
	if _, err := DecrementDay(s, attendeeMain, productDay); !apperrors.IsCode(err, apperrors.CodeDayQuantityBelowPurchased) {
		t.Fatalf("below-zero error = %v, want %s", err, apperrors.CodeDayQuantityBelowPurchased)
	}

	// Leaving edit mode restores the paid baseline.
	s, err = SetEditing(s, false)
	if err != nil {
		t.Fatalf("SetEditing returned error: %v", err)
	}
	line = findLine(t, s, attendeeMain, productDay)
	if line.Edit || line.Quantity != 3 {
		t.Fatalf("edit=%v quantity=%d, want unflagged with 3 days", line.Edit, line.Quantity)
	}
	if got := s.EditCredit(); got != 0 {
		t.Fatalf("edit credit = %v, want 0", got)
	}
}

func TestEditSwapKeepsWeeksUnpromoted(t *testing.T) {
	s := testState(t, Inputs{
		History: []Purchase{{AttendeeID: attendeeMain, ProductID: productWeek1}},
	})

	s, err := SetEditing(s, true)
	if err != nil {
		t.Fatalf("SetEditing returned error: %v", err)
	}
	// Surrender the paid week, then pick up the other three. Only
	// three weeks are actually held, so the month must stay off.
	s = mustToggle(t, s, attendeeMain, productWeek1)
	s = mustToggle(t, s, attendeeMain, productWeek2)
	s = mustToggle(t, s, attendeeMain, productWeek3)
	s = mustToggle(t, s, attendeeMain, productWeek4)

	if findLine(t, s, attendeeMain, productMonth).Selected {
		t.Fatal("month selected after swapping out a paid week")
	}
	for _, id := range []int64{productWeek2, productWeek3, productWeek4} {
		line := findLine(t, s, attendeeMain, id)
		if !line.Selected || line.Mirrored {
			t.Fatalf("week %d selected=%v mirrored=%v, want a plain selection", id, line.Selected, line.Mirrored)
		}
		if got := line.ChargeableQuantity(); got != 1 {
			t.Fatalf("week %d chargeable quantity = %d, want 1", id, got)
		}
	}
	if got := s.EditCredit(); got != 300 {
		t.Fatalf("edit credit = %v, want 300", got)
	}
}

func TestExclusiveVariantFlipsWithoutMirroring(t *testing.T) {
	products := append(testProducts(), catalog.Product{
		ID: 23, Name: "Local Week", Category: catalog.ProductCategoryExclusiveVariant,
		AttendeeCategory: catalog.AttendeeCategoryMain, Price: 150, Active: true,
	})
	s := testState(t, Inputs{Products: products})

	s = mustToggle(t, s, attendeeMain, 23)
	if !findLine(t, s, attendeeMain, 23).Selected {
		t.Fatal("variant not selected after toggle")
	}

	// Selecting the month mirrors weeks but leaves the variant alone.
	s = mustToggle(t, s, attendeeMain, productMonth)
	line := findLine(t, s, attendeeMain, 23)
	if !line.Selected || line.Mirrored {
		t.Fatalf("selected=%v mirrored=%v, want selected without mirroring", line.Selected, line.Mirrored)
	}

	s = mustToggle(t, s, attendeeMain, 23)
	if findLine(t, s, attendeeMain, 23).Selected {
		t.Fatal("variant still selected after second toggle")
	}
}

func TestRecomputeRestoredDaysKeepPurchasedFloor(t *testing.T) {
	s := testState(t, Inputs{
		History:  []Purchase{{AttendeeID: attendeeMain, ProductID: productDay, Quantity: 2}},
		Restored: []Restored{{AttendeeID: attendeeMain, ProductID: productDay, Quantity: 4}},
	})
	line := findLine(t, s, attendeeMain, productDay)
	if line.Quantity != 4 {
		t.Fatalf("restored quantity = %d, want 4", line.Quantity)
	}
	if got := line.ChargeableQuantity(); got != 2 {
		t.Fatalf("chargeable quantity = %d, want 2 (days beyond the paid floor)", got)
	}

	// A stale snapshot below the paid floor clamps up to it.
	s = testState(t, Inputs{
		History:  []Purchase{{AttendeeID: attendeeMain, ProductID: productDay, Quantity: 2}},
		Restored: []Restored{{AttendeeID: attendeeMain, ProductID: productDay, Quantity: 1}},
	})
	if got := findLine(t, s, attendeeMain, productDay).Quantity; got != 2 {
		t.Fatalf("clamped quantity = %d, want 2", got)
	}
}

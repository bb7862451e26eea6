package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/popup.city/internal/services/checkout/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "checkout.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func fptr(v float64) *float64 { return &v }

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestSaveGetSelectionsRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	scope := storage.Scope{UserID: "user-1", EventID: 7}
	input := []storage.SelectionRecord{
		{AttendeeID: 1, ProductID: 11, Quantity: 1},
		{AttendeeID: 1, ProductID: 15, Quantity: 4},
		{AttendeeID: 1, ProductID: 16, Quantity: 1, CustomAmount: fptr(800)},
	}
	if err := store.SaveSelections(context.Background(), scope, input); err != nil {
		t.Fatalf("save selections: %v", err)
	}

	got, err := store.GetSelections(context.Background(), scope)
	if err != nil {
		t.Fatalf("get selections: %v", err)
	}
	if len(got.Selections) != 3 {
		t.Fatalf("selections = %d, want 3", len(got.Selections))
	}
	if got.Selections[1].Quantity != 4 {
		t.Fatalf("day quantity = %d, want 4", got.Selections[1].Quantity)
	}
	if got.Selections[2].CustomAmount == nil || *got.Selections[2].CustomAmount != 800 {
		t.Fatalf("custom amount = %v, want 800", got.Selections[2].CustomAmount)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatal("updated_at not set")
	}
}

func TestSaveSelectionsReplacesSnapshot(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	scope := storage.Scope{UserID: "user-1", EventID: 7}
	first := []storage.SelectionRecord{
		{AttendeeID: 1, ProductID: 11, Quantity: 1},
		{AttendeeID: 1, ProductID: 12, Quantity: 1},
	}
	if err := store.SaveSelections(context.Background(), scope, first); err != nil {
		t.Fatalf("save first snapshot: %v", err)
	}
	second := []storage.SelectionRecord{
		{AttendeeID: 1, ProductID: 10, Quantity: 1},
	}
	if err := store.SaveSelections(context.Background(), scope, second); err != nil {
		t.Fatalf("save second snapshot: %v", err)
	}

	got, err := store.GetSelections(context.Background(), scope)
	if err != nil {
		t.Fatalf("get selections: %v", err)
	}
	if len(got.Selections) != 1 || got.Selections[0].ProductID != 10 {
		t.Fatalf("selections = %+v, want only product 10", got.Selections)
	}
}

func TestSelectionsScopedPerUserAndEvent(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if err := store.SaveSelections(context.Background(), storage.Scope{UserID: "user-1", EventID: 7}, []storage.SelectionRecord{
		{AttendeeID: 1, ProductID: 11, Quantity: 1},
	}); err != nil {
		t.Fatalf("save selections: %v", err)
	}

	if _, err := store.GetSelections(context.Background(), storage.Scope{UserID: "user-2", EventID: 7}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("other user error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetSelections(context.Background(), storage.Scope{UserID: "user-1", EventID: 8}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("other event error = %v, want ErrNotFound", err)
	}
}

func TestClearSelections(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	scope := storage.Scope{UserID: "user-1", EventID: 7}
	if err := store.SaveSelections(context.Background(), scope, []storage.SelectionRecord{
		{AttendeeID: 1, ProductID: 11, Quantity: 1},
	}); err != nil {
		t.Fatalf("save selections: %v", err)
	}

	if err := store.ClearSelections(context.Background(), scope); err != nil {
		t.Fatalf("clear selections: %v", err)
	}
	if _, err := store.GetSelections(context.Background(), scope); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get after clear error = %v, want ErrNotFound", err)
	}
}

func TestSaveSelectionsValidatesScope(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if err := store.SaveSelections(context.Background(), storage.Scope{}, nil); err == nil {
		t.Fatal("expected scope validation error")
	}
}

func TestSaveGetExtrasRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	scope := storage.Scope{UserID: "user-1", EventID: 7}
	checkIn := time.Date(2025, time.October, 3, 0, 0, 0, 0, time.UTC)
	input := storage.Extras{
		Housing:   &storage.HousingRecord{ProductID: 30, CheckIn: checkIn, CheckOut: checkIn.AddDate(0, 0, 4)},
		Merch:     []storage.MerchRecord{{ProductID: 41, Quantity: 1}, {ProductID: 40, Quantity: 2}},
		Insurance: true,
	}
	if err := store.SaveExtras(context.Background(), scope, input); err != nil {
		t.Fatalf("save extras: %v", err)
	}

	got, err := store.GetExtras(context.Background(), scope)
	if err != nil {
		t.Fatalf("get extras: %v", err)
	}
	if got.Housing == nil || got.Housing.ProductID != 30 {
		t.Fatalf("housing = %+v, want product 30", got.Housing)
	}
	if !got.Housing.CheckIn.Equal(checkIn) || !got.Housing.CheckOut.Equal(checkIn.AddDate(0, 0, 4)) {
		t.Fatalf("housing dates = %v..%v", got.Housing.CheckIn, got.Housing.CheckOut)
	}
	if len(got.Merch) != 2 || got.Merch[0].ProductID != 40 || got.Merch[1].ProductID != 41 {
		t.Fatalf("merch = %+v, want products 40 then 41", got.Merch)
	}
	if !got.Insurance {
		t.Fatal("insurance flag lost")
	}
}

func TestSaveExtrasEmptyDeletes(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	scope := storage.Scope{UserID: "user-1", EventID: 7}
	if err := store.SaveExtras(context.Background(), scope, storage.Extras{Insurance: true}); err != nil {
		t.Fatalf("save extras: %v", err)
	}
	if err := store.SaveExtras(context.Background(), scope, storage.Extras{}); err != nil {
		t.Fatalf("save empty extras: %v", err)
	}
	if _, err := store.GetExtras(context.Background(), scope); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get after empty save error = %v, want ErrNotFound", err)
	}
}

func TestClearSelectionsDropsExtras(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	scope := storage.Scope{UserID: "user-1", EventID: 7}
	if err := store.SaveExtras(context.Background(), scope, storage.Extras{
		Merch:     []storage.MerchRecord{{ProductID: 40, Quantity: 2}},
		Insurance: true,
	}); err != nil {
		t.Fatalf("save extras: %v", err)
	}

	if err := store.ClearSelections(context.Background(), scope); err != nil {
		t.Fatalf("clear selections: %v", err)
	}
	if _, err := store.GetExtras(context.Background(), scope); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get after clear error = %v, want ErrNotFound", err)
	}
}

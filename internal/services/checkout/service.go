// Package checkout orchestrates pass selection, pricing, and payment
// for one user's checkout against one event.
package checkout

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/louisbranch/popup.city/internal/passes/cart"
	"github.com/louisbranch/popup.city/internal/passes/catalog"
	"github.com/louisbranch/popup.city/internal/passes/discount"
	"github.com/louisbranch/popup.city/internal/passes/pricing"
	"github.com/louisbranch/popup.city/internal/passes/selection"
	apperrors "github.com/louisbranch/popup.city/internal/platform/errors"
	"github.com/louisbranch/popup.city/internal/services/checkout/gateway/edgeapi"
	"github.com/louisbranch/popup.city/internal/services/checkout/storage"
)

// CatalogSource provides the event's products.
type CatalogSource interface {
	Products(ctx context.Context, eventID int64) ([]catalog.Product, error)
}

// ApplicationSource provides the user's application, group, and
// purchase history.
type ApplicationSource interface {
	ApplicationFor(ctx context.Context, eventID int64, userID string) (edgeapi.Application, error)
	Attendees(ctx context.Context, applicationID int64) ([]catalog.Attendee, error)
	Purchases(ctx context.Context, applicationID int64) ([]selection.Purchase, error)
}

// CouponSource validates discount codes.
type CouponSource interface {
	LookupCoupon(ctx context.Context, eventID int64, code string) (edgeapi.Coupon, error)
}

// PaymentGateway settles checkouts.
type PaymentGateway interface {
	SubmitPayment(ctx context.Context, payment edgeapi.PaymentRequest) (edgeapi.PaymentResult, error)
}

// Deps wires the service's collaborators.
type Deps struct {
	Catalog      CatalogSource
	Applications ApplicationSource
	Coupons      CouponSource
	Payments     PaymentGateway
	Store        storage.SelectionStore
}

// Service holds one user's checkout for one event. All methods are safe
// for concurrent use.
type Service struct {
	deps  Deps
	scope storage.Scope

	mu       sync.Mutex
	hydrated bool
	app      edgeapi.Application
	products []catalog.Product
	resolver *discount.Resolver
	state    selection.State

	housing   *cart.HousingItem
	merch     map[int64]cart.MerchItem
	insurance bool

	couponInFlight  bool
	paymentInFlight bool
}

// New creates an unhydrated checkout for the given user and event.
func New(deps Deps, userID string, eventID int64) *Service {
	return &Service{
		deps:     deps,
		scope:    storage.Scope{UserID: userID, EventID: eventID},
		resolver: discount.NewResolver(eventID),
		merch:    make(map[int64]cart.MerchItem),
	}
}

// Hydrate loads the application, catalog, purchase history, and any
// persisted selection. Until it succeeds every mutation is rejected and
// nothing is written back to storage.
func (s *Service) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, err := s.deps.Applications.ApplicationFor(ctx, s.scope.EventID, s.scope.UserID)
	if err != nil {
		return err
	}
	products, err := s.deps.Catalog.Products(ctx, s.scope.EventID)
	if err != nil {
		return err
	}
	attendees, err := s.deps.Applications.Attendees(ctx, app.ID)
	if err != nil {
		return err
	}
	purchases, err := s.deps.Applications.Purchases(ctx, app.ID)
	if err != nil {
		return err
	}

	if app.DiscountPercent > 0 {
		origin := discount.OriginScholarship
		if app.Tier == pricing.TierBuilder {
			origin = discount.OriginBuilder
		}
		if err := s.resolver.Propose(discount.Source{
			Value:   app.DiscountPercent,
			Origin:  origin,
			EventID: s.scope.EventID,
		}); err != nil && !apperrors.IsCode(err, apperrors.CodeDiscountNotBetter) {
			return err
		}
	}

	var restored []selection.Restored
	snapshot, err := s.deps.Store.GetSelections(ctx, s.scope)
	switch {
	case err == nil:
		for _, rec := range snapshot.Selections {
			restored = append(restored, selection.Restored{
				AttendeeID:   rec.AttendeeID,
				ProductID:    rec.ProductID,
				Quantity:     rec.Quantity,
				CustomAmount: rec.CustomAmount,
			})
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		log.Printf("[CHECKOUT] restore selections: %v", err)
	}

	s.app = app
	s.products = products

	extras, err := s.deps.Store.GetExtras(ctx, s.scope)
	switch {
	case err == nil:
		s.applyRestoredExtras(extras)
	case errors.Is(err, storage.ErrNotFound):
	default:
		log.Printf("[CHECKOUT] restore extras: %v", err)
	}

	s.state = selection.Recompute(selection.Inputs{
		Products:        products,
		Attendees:       attendees,
		Tier:            app.Tier,
		DiscountPercent: s.resolver.Percent(),
		History:         purchases,
		Restored:        restored,
	})
	s.hydrated = true
	return nil
}

// SwitchEvent rescopes the checkout to another event, dropping the
// applied discount and all unhydrated state.
func (s *Service) SwitchEvent(ctx context.Context, eventID int64) error {
	s.mu.Lock()
	s.scope.EventID = eventID
	s.resolver.Reset(eventID)
	s.hydrated = false
	s.housing = nil
	s.merch = make(map[int64]cart.MerchItem)
	s.insurance = false
	s.mu.Unlock()

	return s.Hydrate(ctx)
}

var errNotHydrated = apperrors.New(apperrors.CodeSelectionNotHydrated, "checkout is not hydrated yet")

// Toggle flips a product for an attendee.
func (s *Service) Toggle(ctx context.Context, attendeeID, productID int64) error {
	return s.mutate(ctx, func() (selection.State, error) {
		return selection.Toggle(s.state, attendeeID, productID)
	})
}

// IncrementDay adds one day to a day pass.
func (s *Service) IncrementDay(ctx context.Context, attendeeID, productID int64) error {
	return s.mutate(ctx, func() (selection.State, error) {
		return selection.IncrementDay(s.state, attendeeID, productID)
	})
}

// DecrementDay removes one unpurchased day from a day pass.
func (s *Service) DecrementDay(ctx context.Context, attendeeID, productID int64) error {
	return s.mutate(ctx, func() (selection.State, error) {
		return selection.DecrementDay(s.state, attendeeID, productID)
	})
}

// ResetDay drops a day pass back to its purchased quantity.
func (s *Service) ResetDay(ctx context.Context, attendeeID, productID int64) error {
	return s.mutate(ctx, func() (selection.State, error) {
		return selection.ResetDay(s.state, attendeeID, productID)
	})
}

// SetCustomAmount sets a payer-chosen amount on a variable-price
// product.
func (s *Service) SetCustomAmount(ctx context.Context, attendeeID, productID int64, amount float64) error {
	return s.mutate(ctx, func() (selection.State, error) {
		return selection.SetCustomAmount(s.state, attendeeID, productID, amount)
	})
}

// SetEditing enters or leaves pass edit mode.
func (s *Service) SetEditing(ctx context.Context, editing bool) error {
	return s.mutate(ctx, func() (selection.State, error) {
		return selection.SetEditing(s.state, editing)
	})
}

// ClearSelections drops every unpurchased selection and extra.
func (s *Service) ClearSelections(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hydrated {
		return errNotHydrated
	}
	s.state = selection.Clear(s.state)
	s.housing = nil
	s.merch = make(map[int64]cart.MerchItem)
	s.insurance = false
	if err := s.deps.Store.ClearSelections(ctx, s.scope); err != nil {
		log.Printf("[CHECKOUT] clear selections: %v", err)
	}
	return nil
}

// SetHousing books lodging for the stay's date range.
func (s *Service) SetHousing(ctx context.Context, productID int64, checkIn, checkOut time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hydrated {
		return errNotHydrated
	}
	product, ok := s.product(productID)
	if !ok || product.Category != catalog.ProductCategoryHousing {
		return apperrors.New(apperrors.CodeNotFound, "housing product not found")
	}
	if !checkOut.After(checkIn) {
		return apperrors.New(apperrors.CodeHousingInvalidDateRange, "check-out must be after check-in")
	}
	s.housing = &cart.HousingItem{Product: product, CheckIn: checkIn, CheckOut: checkOut}
	s.persistExtras(ctx)
	return nil
}

// ClearHousing removes the lodging choice.
func (s *Service) ClearHousing(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hydrated {
		return errNotHydrated
	}
	s.housing = nil
	s.persistExtras(ctx)
	return nil
}

// SetMerchQuantity sets how many units of a merch product are in the
// cart; zero removes it.
func (s *Service) SetMerchQuantity(ctx context.Context, productID int64, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hydrated {
		return errNotHydrated
	}
	if quantity < 0 {
		return apperrors.New(apperrors.CodeMerchInvalidQuantity, "merch quantity cannot be negative")
	}
	product, ok := s.product(productID)
	if !ok || product.Category != catalog.ProductCategoryMerch {
		return apperrors.New(apperrors.CodeNotFound, "merch product not found")
	}
	if quantity == 0 {
		delete(s.merch, productID)
	} else {
		s.merch[productID] = cart.MerchItem{Product: product, Quantity: quantity}
	}
	s.persistExtras(ctx)
	return nil
}

// SetInsurance opts the checkout in or out of refund insurance.
func (s *Service) SetInsurance(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hydrated {
		return errNotHydrated
	}
	s.insurance = enabled
	s.persistExtras(ctx)
	return nil
}

// ApplyCoupon validates a code and applies it when it beats the current
// discount. Only one lookup runs at a time, and a lookup that finishes
// after an event switch is discarded.
func (s *Service) ApplyCoupon(ctx context.Context, code string) error {
	s.mu.Lock()
	if !s.hydrated {
		s.mu.Unlock()
		return errNotHydrated
	}
	if s.couponInFlight {
		s.mu.Unlock()
		return apperrors.New(apperrors.CodeCouponRequestPending, "a coupon lookup is already running")
	}
	s.couponInFlight = true
	eventID := s.scope.EventID
	s.mu.Unlock()

	coupon, err := s.deps.Coupons.LookupCoupon(ctx, eventID, code)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.couponInFlight = false
	if err != nil {
		return err
	}
	if s.scope.EventID != eventID {
		// The checkout moved to another event while the lookup ran.
		return apperrors.New(apperrors.CodeDiscountWrongEvent, "coupon resolved for a previous event")
	}
	if err := s.resolver.Propose(discount.Source{
		Value:   coupon.Percent,
		Origin:  discount.OriginCoupon,
		Code:    coupon.Code,
		EventID: eventID,
	}); err != nil {
		return err
	}
	s.state = selection.SetDiscount(s.state, s.resolver.Percent())
	s.persist(ctx)
	return nil
}

// Summary prices the current cart.
func (s *Service) Summary() cart.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

func (s *Service) summaryLocked() cart.Summary {
	return cart.Aggregate(cart.Input{
		Selection:        s.state,
		Housing:          s.housing,
		Merch:            s.merchItems(),
		InsuranceEnabled: s.insurance,
		AccountCredit:    s.app.Credit,
	})
}

// State returns a snapshot of the selection for rendering.
func (s *Service) State() selection.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// AppliedDiscount returns the winning discount source.
func (s *Service) AppliedDiscount() discount.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolver.Applied()
}

// SubmitPayment settles the cart. Zero-amount settlements approve
// immediately; anything else returns a checkout URL the payer must
// visit. Only one submission runs at a time.
func (s *Service) SubmitPayment(ctx context.Context) (edgeapi.PaymentResult, error) {
	s.mu.Lock()
	if !s.hydrated {
		s.mu.Unlock()
		return edgeapi.PaymentResult{}, errNotHydrated
	}
	if s.paymentInFlight {
		s.mu.Unlock()
		return edgeapi.PaymentResult{}, apperrors.New(apperrors.CodePaymentRequestPending, "a payment is already running")
	}
	payment, err := s.buildPaymentLocked()
	if err != nil {
		s.mu.Unlock()
		return edgeapi.PaymentResult{}, err
	}
	s.paymentInFlight = true
	s.mu.Unlock()

	result, err := s.deps.Payments.SubmitPayment(ctx, payment)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.paymentInFlight = false
	if err != nil {
		return edgeapi.PaymentResult{}, err
	}
	if result.Approved() {
		s.settleLocked(ctx)
	}
	return result, nil
}

// buildPaymentLocked assembles the payment payload. In edit mode the
// kept purchased passes ride along with the new ones so the platform
// can compute the swap.
func (s *Service) buildPaymentLocked() (edgeapi.PaymentRequest, error) {
	summary := s.summaryLocked()
	payment := edgeapi.PaymentRequest{
		ApplicationID: s.app.ID,
		CouponCode:    s.resolver.Applied().Code,
		Insurance:     s.insurance,
		// Any credit against the charged total makes the platform
		// reprice the pass set as a swap.
		EditPasses: s.state.Editing || summary.UpgradeCredit > 0 || summary.AccountCredit > 0,
	}

	mainAttendee := s.mainAttendeeID()
	for _, att := range s.state.Attendees {
		for _, line := range att.Lines {
			if s.state.Editing && line.Purchased && !line.Edit {
				// Kept passes ride along so the platform can price the
				// swap; day lines carry kept plus newly added days.
				qty := 1
				if line.Product.Category == catalog.ProductCategoryDay {
					qty = line.Quantity
				}
				if qty > 0 {
					payment.Products = append(payment.Products, edgeapi.PaymentProduct{
						ProductID:  line.Product.ID,
						AttendeeID: att.Attendee.ID,
						Quantity:   qty,
					})
				}
				continue
			}
			qty := line.ChargeableQuantity()
			if qty == 0 {
				continue
			}
			product := edgeapi.PaymentProduct{
				ProductID:  line.Product.ID,
				AttendeeID: att.Attendee.ID,
				Quantity:   qty,
			}
			if line.Product.VariablePrice() && line.CustomAmount != nil {
				v := *line.CustomAmount
				product.CustomAmount = &v
			}
			payment.Products = append(payment.Products, product)
		}
	}

	if s.housing != nil {
		payment.Products = append(payment.Products, edgeapi.PaymentProduct{
			ProductID:  s.housing.Product.ID,
			AttendeeID: mainAttendee,
			Quantity:   s.housing.Nights(),
		})
	}
	for _, m := range s.merchItems() {
		payment.Products = append(payment.Products, edgeapi.PaymentProduct{
			ProductID:  m.Product.ID,
			AttendeeID: mainAttendee,
			Quantity:   m.Quantity,
		})
	}

	if len(payment.Products) == 0 {
		return edgeapi.PaymentRequest{}, apperrors.New(apperrors.CodeSelectionEmpty, "nothing selected to pay for")
	}
	return payment, nil
}

// settleLocked folds an approved payment into local state so the passes
// show as purchased without a full rehydrate. Each line's owned
// quantity is what the payer kept plus what was just charged.
func (s *Service) settleLocked(ctx context.Context) {
	var history []selection.Purchase
	for _, att := range s.state.Attendees {
		for _, line := range att.Lines {
			owned := 0
			if line.Product.Category == catalog.ProductCategoryDay {
				// Quantity already reflects kept paid days plus any
				// newly charged ones, and zero after a full surrender.
				owned = line.Quantity
			} else {
				if line.Purchased && !(s.state.Editing && line.Edit) {
					owned = 1
				}
				owned += line.ChargeableQuantity()
			}
			if owned == 0 {
				continue
			}
			history = append(history, selection.Purchase{
				AttendeeID: att.Attendee.ID,
				ProductID:  line.Product.ID,
				Quantity:   owned,
			})
		}
	}

	attendees := make([]catalog.Attendee, 0, len(s.state.Attendees))
	for _, att := range s.state.Attendees {
		attendees = append(attendees, att.Attendee)
	}
	s.state = selection.Recompute(selection.Inputs{
		Products:        s.products,
		Attendees:       attendees,
		Tier:            s.app.Tier,
		DiscountPercent: s.resolver.Percent(),
		History:         history,
	})
	s.housing = nil
	s.merch = make(map[int64]cart.MerchItem)
	s.insurance = false
	if err := s.deps.Store.ClearSelections(ctx, s.scope); err != nil {
		log.Printf("[CHECKOUT] clear selections after payment: %v", err)
	}
}

// mutate runs a selection operation under the lock and persists the
// result. Mutations are rejected until the first hydration so a slow
// load can never be overwritten by an empty snapshot.
func (s *Service) mutate(ctx context.Context, op func() (selection.State, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hydrated {
		return errNotHydrated
	}
	next, err := op()
	if err != nil {
		return err
	}
	s.state = next
	s.persist(ctx)
	return nil
}

// persist writes the selection snapshot. Failures are logged, not
// surfaced: the in-memory cart stays authoritative.
func (s *Service) persist(ctx context.Context) {
	if !s.hydrated {
		return
	}
	var records []storage.SelectionRecord
	for _, att := range s.state.Attendees {
		for _, line := range att.Lines {
			if line.Covered || line.Mirrored || !line.Selected {
				continue
			}
			rec := storage.SelectionRecord{
				AttendeeID: att.Attendee.ID,
				ProductID:  line.Product.ID,
				Quantity:   1,
			}
			if line.Product.Category == catalog.ProductCategoryDay {
				// Partially purchased day passes keep their quantity
				// above the paid baseline across sessions.
				if line.Quantity <= line.PurchasedQuantity {
					continue
				}
				rec.Quantity = line.Quantity
			} else if line.Purchased {
				continue
			}
			if line.CustomAmount != nil {
				v := *line.CustomAmount
				rec.CustomAmount = &v
			}
			records = append(records, rec)
		}
	}

	if err := s.deps.Store.SaveSelections(ctx, s.scope, records); err != nil {
		log.Printf("[CHECKOUT] persist selections: %v", err)
	}
}

// persistExtras writes the housing, merch, and insurance snapshot. Like
// persist, failures are logged rather than surfaced.
func (s *Service) persistExtras(ctx context.Context) {
	if !s.hydrated {
		return
	}
	var extras storage.Extras
	if h := s.housing; h != nil {
		extras.Housing = &storage.HousingRecord{
			ProductID: h.Product.ID,
			CheckIn:   h.CheckIn,
			CheckOut:  h.CheckOut,
		}
	}
	for _, m := range s.merchItems() {
		extras.Merch = append(extras.Merch, storage.MerchRecord{
			ProductID: m.Product.ID,
			Quantity:  m.Quantity,
		})
	}
	extras.Insurance = s.insurance
	if err := s.deps.Store.SaveExtras(ctx, s.scope, extras); err != nil {
		log.Printf("[CHECKOUT] persist extras: %v", err)
	}
}

// applyRestoredExtras folds a persisted extras snapshot back into the
// session, dropping references to products no longer in the catalog.
func (s *Service) applyRestoredExtras(extras storage.Extras) {
	s.housing = nil
	s.merch = make(map[int64]cart.MerchItem)
	if h := extras.Housing; h != nil {
		if product, ok := s.product(h.ProductID); ok &&
			product.Category == catalog.ProductCategoryHousing && h.CheckOut.After(h.CheckIn) {
			s.housing = &cart.HousingItem{Product: product, CheckIn: h.CheckIn, CheckOut: h.CheckOut}
		}
	}
	for _, m := range extras.Merch {
		if m.Quantity <= 0 {
			continue
		}
		if product, ok := s.product(m.ProductID); ok && product.Category == catalog.ProductCategoryMerch {
			s.merch[m.ProductID] = cart.MerchItem{Product: product, Quantity: m.Quantity}
		}
	}
	s.insurance = extras.Insurance
}

func (s *Service) product(productID int64) (catalog.Product, bool) {
	for _, p := range s.products {
		if p.ID == productID {
			return p, true
		}
	}
	return catalog.Product{}, false
}

func (s *Service) merchItems() []cart.MerchItem {
	if len(s.merch) == 0 {
		return nil
	}
	items := make([]cart.MerchItem, 0, len(s.merch))
	for _, m := range s.merch {
		items = append(items, m)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Product.ID < items[j].Product.ID
	})
	return items
}

func (s *Service) mainAttendeeID() int64 {
	for _, att := range s.state.Attendees {
		if att.Attendee.Category == catalog.AttendeeCategoryMain {
			return att.Attendee.ID
		}
	}
	if len(s.state.Attendees) > 0 {
		return s.state.Attendees[0].Attendee.ID
	}
	return 0
}

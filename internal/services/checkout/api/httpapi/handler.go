// Package httpapi exposes the checkout service over a JSON HTTP API.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/louisbranch/popup.city/internal/passes/cart"
	"github.com/louisbranch/popup.city/internal/passes/catalog"
	"github.com/louisbranch/popup.city/internal/passes/selection"
	apperrors "github.com/louisbranch/popup.city/internal/platform/errors"
	"github.com/louisbranch/popup.city/internal/services/checkout"
	"github.com/louisbranch/popup.city/internal/services/checkout/storage"
)

// userHeader carries the authenticated user, set by the fronting proxy.
const userHeader = "X-User-ID"

// Handler serves the checkout HTTP API. It keeps one hydrated checkout
// per user per event.
type Handler struct {
	deps checkout.Deps

	mu       sync.Mutex
	sessions map[storage.Scope]*session
}

// session serializes hydration so concurrent first requests for the
// same scope share one checkout instead of racing it.
type session struct {
	mu    sync.Mutex
	svc   *checkout.Service
	ready bool
}

// NewHandler creates a checkout API handler.
func NewHandler(deps checkout.Deps) *Handler {
	return &Handler{
		deps:     deps,
		sessions: make(map[storage.Scope]*session),
	}
}

// Routes returns the API route mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/checkout", h.handleCart)
	mux.HandleFunc("POST /api/checkout/toggle", h.handleToggle)
	mux.HandleFunc("POST /api/checkout/day", h.handleDay)
	mux.HandleFunc("POST /api/checkout/amount", h.handleAmount)
	mux.HandleFunc("POST /api/checkout/editing", h.handleEditing)
	mux.HandleFunc("PUT /api/checkout/housing", h.handleSetHousing)
	mux.HandleFunc("DELETE /api/checkout/housing", h.handleClearHousing)
	mux.HandleFunc("PUT /api/checkout/merch", h.handleMerch)
	mux.HandleFunc("PUT /api/checkout/insurance", h.handleInsurance)
	mux.HandleFunc("POST /api/checkout/coupon", h.handleCoupon)
	mux.HandleFunc("POST /api/checkout/payment", h.handlePayment)
	mux.HandleFunc("POST /api/checkout/clear", h.handleClear)
	return mux
}

func (h *Handler) service(r *http.Request, eventID int64) (*checkout.Service, error) {
	userID := strings.TrimSpace(r.Header.Get(userHeader))
	if userID == "" {
		return nil, apperrors.New(apperrors.CodeNotFound, "user is not identified")
	}
	if eventID <= 0 {
		return nil, apperrors.New(apperrors.CodeNotFound, "event is required")
	}
	scope := storage.Scope{UserID: userID, EventID: eventID}

	h.mu.Lock()
	entry, ok := h.sessions[scope]
	if !ok {
		entry = &session{svc: checkout.New(h.deps, userID, eventID)}
		h.sessions[scope] = entry
	}
	h.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.ready {
		return entry.svc, nil
	}
	if err := entry.svc.Hydrate(r.Context()); err != nil {
		h.mu.Lock()
		if h.sessions[scope] == entry {
			delete(h.sessions, scope)
		}
		h.mu.Unlock()
		return nil, err
	}
	entry.ready = true
	return entry.svc, nil
}

type targetRequest struct {
	EventID    int64 `json:"event_id"`
	AttendeeID int64 `json:"attendee_id"`
	ProductID  int64 `json:"product_id"`
}

func (h *Handler) handleCart(w http.ResponseWriter, r *http.Request) {
	eventID, _ := strconv.ParseInt(r.URL.Query().Get("event_id"), 10, 64)
	svc, err := h.service(r, eventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, r, svc)
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if !decode(w, r, &req) {
		return
	}
	svc, err := h.service(r, req.EventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := svc.Toggle(r.Context(), req.AttendeeID, req.ProductID); err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, r, svc)
}

func (h *Handler) handleDay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		targetRequest
		Op string `json:"op"`
	}
	if !decode(w, r, &req) {
		return
	}
	svc, err := h.service(r, req.EventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	switch req.Op {
	case "increment":
		err = svc.IncrementDay(r.Context(), req.AttendeeID, req.ProductID)
	case "decrement":
		err = svc.DecrementDay(r.Context(), req.AttendeeID, req.ProductID)
	case "reset":
		err = svc.ResetDay(r.Context(), req.AttendeeID, req.ProductID)
	default:
		err = apperrors.New(apperrors.CodeUnknown, "unknown day operation")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, r, svc)
}

func (h *Handler) handleAmount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		targetRequest
		Amount float64 `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	svc, err := h.service(r, req.EventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := svc.SetCustomAmount(r.Context(), req.AttendeeID, req.ProductID, req.Amount); err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, r, svc)
}

func (h *Handler) handleEditing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID int64 `json:"event_id"`
		Editing bool  `json:"editing"`
	}
	if !decode(w, r, &req) {
		return
	}
	svc, err := h.service(r, req.EventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := svc.SetEditing(r.Context(), req.Editing); err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, r, svc)
}

func (h *Handler) handleSetHousing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID   int64  `json:"event_id"`
		ProductID int64  `json:"product_id"`
		CheckIn   string `json:"check_in"`
		CheckOut  string `json:"check_out"`
	}
	if !decode(w, r, &req) {
		return
	}
	svc, err := h.service(r, req.EventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	checkIn, errIn := time.Parse("2006-01-02", req.CheckIn)
	checkOut, errOut := time.Parse("2006-01-02", req.CheckOut)
	if errIn != nil || errOut != nil {
		writeError(w, r, apperrors.New(apperrors.CodeHousingInvalidDateRange, "dates must be YYYY-MM-DD"))
		return
	}
	if err := svc.SetHousing(r.Context(), req.ProductID, checkIn, checkOut); err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, r, svc)
}

func (h *Handler) handleClearHousing(w http.ResponseWriter, r *http.Request) {
	eventID, _ := strconv.ParseInt(r.URL.Query().Get("event_id"), 10, 64)
	svc, err := h.service(r, eventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := svc.ClearHousing(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, r, svc)
}

func (h *Handler) handleMerch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID   int64 `json:"event_id"`
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
	}
	if !decode(w, r, &req) {
		return
	}
	svc, err := h.service(r, req.EventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := svc.SetMerchQuantity(r.Context(), req.ProductID, req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, r, svc)
}

func (h *Handler) handleInsurance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID int64 `json:"event_id"`
		Enabled bool  `json:"enabled"`
	}
	if !decode(w, r, &req) {
		return
	}
	svc, err := h.service(r, req.EventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := svc.SetInsurance(r.Context(), req.Enabled); err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, r, svc)
}

func (h *Handler) handleCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID int64  `json:"event_id"`
		Code    string `json:"code"`
	}
	if !decode(w, r, &req) {
		return
	}
	svc, err := h.service(r, req.EventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := svc.ApplyCoupon(r.Context(), strings.TrimSpace(req.Code)); err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, r, svc)
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID int64 `json:"event_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	svc, err := h.service(r, req.EventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := svc.SubmitPayment(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       result.Status,
		"checkout_url": result.CheckoutURL,
	})
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID int64 `json:"event_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	svc, err := h.service(r, req.EventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := svc.ClearSelections(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, r, svc)
}

type lineResponse struct {
	ProductID    int64    `json:"product_id"`
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	Selected     bool     `json:"selected"`
	Mirrored     bool     `json:"mirrored,omitempty"`
	Quantity     int      `json:"quantity,omitempty"`
	CustomAmount *float64 `json:"custom_amount,omitempty"`
	Purchased    bool     `json:"purchased,omitempty"`
	Edit         bool     `json:"edit,omitempty"`
	Disabled     bool     `json:"disabled,omitempty"`
	Price        float64  `json:"price"`
}

type attendeeResponse struct {
	AttendeeID int64          `json:"attendee_id"`
	Name       string         `json:"name"`
	Category   string         `json:"category"`
	Lines      []lineResponse `json:"lines"`
}

type cartResponse struct {
	Editing   bool               `json:"editing"`
	Attendees []attendeeResponse `json:"attendees"`
	Summary   cart.Summary       `json:"summary"`
	Display   map[string]string  `json:"display"`
}

func writeCart(w http.ResponseWriter, r *http.Request, svc *checkout.Service) {
	state := svc.State()
	sum := svc.Summary()

	resp := cartResponse{
		Editing: state.Editing,
		Summary: sum,
		Display: displayTotals(requestLocale(r), sum),
	}
	for _, att := range state.Attendees {
		out := attendeeResponse{
			AttendeeID: att.Attendee.ID,
			Name:       att.Attendee.Name,
			Category:   att.Attendee.Category.String(),
		}
		for _, line := range att.Lines {
			out.Lines = append(out.Lines, lineResponse{
				ProductID:    line.Product.ID,
				Name:         line.Product.Name,
				Category:     line.Product.Category.String(),
				Selected:     line.Selected,
				Mirrored:     line.Mirrored,
				Quantity:     lineQuantity(line),
				CustomAmount: line.CustomAmount,
				Purchased:    line.Purchased,
				Edit:         line.Edit,
				Disabled:     line.Disabled,
				Price:        line.Price,
			})
		}
		resp.Attendees = append(resp.Attendees, out)
	}
	writeJSON(w, http.StatusOK, resp)
}

func lineQuantity(line selection.Line) int {
	if line.Product.Category == catalog.ProductCategoryDay {
		return line.Quantity
	}
	return 0
}

// displayTotals renders locale-aware money strings alongside the raw
// numbers.
func displayTotals(locale string, sum cart.Summary) map[string]string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.AmericanEnglish
	}
	p := message.NewPrinter(tag)
	format := func(v float64) string {
		return p.Sprintf("$%v", number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
	}
	return map[string]string{
		"subtotal":        format(sum.Subtotal),
		"discount_amount": format(sum.DiscountAmount),
		"insurance":       format(sum.InsuranceSubtotal),
		"grand_total":     format(sum.GrandTotal),
	}
}

func requestLocale(r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return lang
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		if idx := strings.IndexAny(accept, ",;"); idx > 0 {
			return accept[:idx]
		}
		return accept
	}
	return apperrors.DefaultLocale
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeJSON(w, http.StatusBadRequest, apperrors.HTTPError{
			Code:    string(apperrors.CodeUnknown),
			Message: "invalid request body",
		})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := apperrors.HandleError(err, requestLocale(r))
	if status >= http.StatusInternalServerError {
		log.Printf("[CHECKOUT] %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[CHECKOUT] encode response: %v", err)
	}
}

// Package edgeapi calls the event platform's HTTP API for catalog,
// application, coupon, and payment data.
package edgeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/louisbranch/popup.city/internal/passes/catalog"
	"github.com/louisbranch/popup.city/internal/passes/pricing"
	"github.com/louisbranch/popup.city/internal/passes/selection"
	apperrors "github.com/louisbranch/popup.city/internal/platform/errors"
)

// Client calls the event platform API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New creates a client for the given base URL.
func New(baseURL, apiKey string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, apiKey: apiKey, client: client}
}

type productPayload struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	Category         string   `json:"category"`
	AttendeeCategory string   `json:"attendee_category"`
	Price            float64  `json:"price"`
	ComparePrice     *float64 `json:"compare_price"`
	BuilderPrice     *float64 `json:"builder_price"`
	MinPrice         *float64 `json:"min_price"`
	MaxPrice         *float64 `json:"max_price"`
	InsurancePercent *float64 `json:"insurance_percent"`
	StartDate        *string  `json:"start_date"`
	EndDate          *string  `json:"end_date"`
	Exclusive        bool     `json:"exclusive"`
	Active           bool     `json:"is_active"`
}

func (p productPayload) toProduct() catalog.Product {
	out := catalog.Product{
		ID:               p.ID,
		Name:             p.Name,
		Category:         catalog.ParseProductCategory(p.Category),
		AttendeeCategory: catalog.ParseAttendeeCategory(p.AttendeeCategory),
		Price:            p.Price,
		BuilderPrice:     p.BuilderPrice,
		MinPrice:         p.MinPrice,
		MaxPrice:         p.MaxPrice,
		InsurancePercent: p.InsurancePercent,
		Exclusive:        p.Exclusive,
		Active:           p.Active,
	}
	if p.ComparePrice != nil {
		out.ComparePrice = *p.ComparePrice
	}
	out.StartDate = parseDate(p.StartDate)
	out.EndDate = parseDate(p.EndDate)
	return out
}

func parseDate(value *string) *time.Time {
	if value == nil || *value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, *value); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

// Products returns the event's product catalog.
func (c *Client) Products(ctx context.Context, eventID int64) ([]catalog.Product, error) {
	var payload struct {
		Products []productPayload `json:"products"`
	}
	path := fmt.Sprintf("/api/events/%d/products", eventID)
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, err
	}
	products := make([]catalog.Product, 0, len(payload.Products))
	for _, p := range payload.Products {
		products = append(products, p.toProduct())
	}
	return products, nil
}

// Attendees returns the application's group members.
func (c *Client) Attendees(ctx context.Context, applicationID int64) ([]catalog.Attendee, error) {
	var payload struct {
		Attendees []struct {
			ID       int64  `json:"id"`
			Name     string `json:"name"`
			Email    string `json:"email"`
			Category string `json:"category"`
		} `json:"attendees"`
	}
	path := fmt.Sprintf("/api/applications/%d/attendees", applicationID)
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, err
	}
	attendees := make([]catalog.Attendee, 0, len(payload.Attendees))
	for _, a := range payload.Attendees {
		attendees = append(attendees, catalog.Attendee{
			ID:       a.ID,
			Name:     a.Name,
			Email:    a.Email,
			Category: catalog.ParseAttendeeCategory(a.Category),
		})
	}
	return attendees, nil
}

// Application describes the user's accepted application for an event.
type Application struct {
	ID int64
	// Tier is the assigned pricing tier.
	Tier pricing.TicketTier
	// DiscountPercent is a discount granted with the application.
	DiscountPercent float64
	// Credit is a balance from refunds or pass edits.
	Credit float64
}

// ApplicationFor returns the user's application for an event, or a
// CodePaymentNoApplication error when none is accepted.
func (c *Client) ApplicationFor(ctx context.Context, eventID int64, userID string) (Application, error) {
	var payload struct {
		Application *struct {
			ID              int64   `json:"id"`
			TicketCategory  string  `json:"ticket_category"`
			DiscountPercent float64 `json:"discount_assigned"`
			Credit          float64 `json:"credit"`
		} `json:"application"`
	}
	path := fmt.Sprintf("/api/events/%d/applications?user_id=%s", eventID, userID)
	if err := c.get(ctx, path, &payload); err != nil {
		return Application{}, err
	}
	if payload.Application == nil {
		return Application{}, apperrors.New(apperrors.CodePaymentNoApplication, "no accepted application for event")
	}
	return Application{
		ID:              payload.Application.ID,
		Tier:            pricing.ParseTier(payload.Application.TicketCategory),
		DiscountPercent: payload.Application.DiscountPercent,
		Credit:          payload.Application.Credit,
	}, nil
}

// Purchases returns the settled purchase lines for an application,
// flattened across approved payments.
func (c *Client) Purchases(ctx context.Context, applicationID int64) ([]selection.Purchase, error) {
	var payload struct {
		Payments []struct {
			Status   string `json:"status"`
			Products []struct {
				ProductID  int64 `json:"product_id"`
				AttendeeID int64 `json:"attendee_id"`
				Quantity   int   `json:"quantity"`
			} `json:"products"`
		} `json:"payments"`
	}
	path := fmt.Sprintf("/api/applications/%d/payments", applicationID)
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, err
	}
	var purchases []selection.Purchase
	for _, payment := range payload.Payments {
		if payment.Status != "approved" {
			continue
		}
		for _, p := range payment.Products {
			purchases = append(purchases, selection.Purchase{
				AttendeeID: p.AttendeeID,
				ProductID:  p.ProductID,
				Quantity:   p.Quantity,
			})
		}
	}
	return purchases, nil
}

// Coupon is a validated discount code.
type Coupon struct {
	Code    string
	Percent float64
}

// LookupCoupon validates a coupon code against an event.
func (c *Client) LookupCoupon(ctx context.Context, eventID int64, code string) (Coupon, error) {
	var payload struct {
		Code       string  `json:"code"`
		Percentage float64 `json:"percentage"`
	}
	path := fmt.Sprintf("/api/events/%d/coupons/%s", eventID, code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return Coupon{}, fmt.Errorf("build coupon request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return Coupon{}, apperrors.Wrap(apperrors.CodeCouponLookupFailed, "coupon lookup failed", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Coupon{}, apperrors.WithMetadata(apperrors.CodeCouponInvalid, "coupon code is not valid", map[string]string{
			"Code": code,
		})
	default:
		return Coupon{}, apperrors.New(apperrors.CodeCouponLookupFailed, "coupon lookup returned "+resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Coupon{}, apperrors.Wrap(apperrors.CodeCouponLookupFailed, "decode coupon response", err)
	}
	return Coupon{Code: payload.Code, Percent: payload.Percentage}, nil
}

// PaymentProduct is one purchased line in a payment request.
type PaymentProduct struct {
	ProductID    int64    `json:"product_id"`
	AttendeeID   int64    `json:"attendee_id"`
	Quantity     int      `json:"quantity"`
	CustomAmount *float64 `json:"custom_amount,omitempty"`
}

// PaymentRequest submits a checkout for settlement.
type PaymentRequest struct {
	ApplicationID int64            `json:"application_id"`
	Products      []PaymentProduct `json:"products"`
	CouponCode    string           `json:"coupon_code,omitempty"`
	Insurance     bool             `json:"insurance,omitempty"`
	EditPasses    bool             `json:"edit_passes,omitempty"`
}

// PaymentResult is the platform's answer to a payment submission.
type PaymentResult struct {
	// Status is "approved" for zero-amount settlements and "pending"
	// when the payer must complete an external checkout.
	Status string `json:"status"`
	// CheckoutURL is where pending payments are completed.
	CheckoutURL string `json:"checkout_url"`
}

// Approved reports whether the payment settled without further action.
func (r PaymentResult) Approved() bool {
	return r.Status == "approved"
}

// SubmitPayment submits the cart for settlement. Retries reuse a fresh
// idempotency key per call site, so a duplicate submission settles once.
func (c *Client) SubmitPayment(ctx context.Context, payment PaymentRequest) (PaymentResult, error) {
	body, err := json.Marshal(payment)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("encode payment request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/payments", bytes.NewReader(body))
	if err != nil {
		return PaymentResult{}, fmt.Errorf("build payment request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return PaymentResult{}, apperrors.Wrap(apperrors.CodePaymentFailed, "payment submission failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return PaymentResult{}, apperrors.New(apperrors.CodePaymentFailed, "payment returned "+resp.Status)
	}
	var result PaymentResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return PaymentResult{}, apperrors.Wrap(apperrors.CodePaymentFailed, "decode payment response", err)
	}
	return result, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUpstreamUnavailable, "event platform unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apperrors.New(apperrors.CodeNotFound, "resource not found upstream")
	}
	if resp.StatusCode != http.StatusOK {
		return apperrors.New(apperrors.CodeUpstreamUnavailable, "event platform returned "+resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.CodeUpstreamUnavailable, "decode upstream response", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

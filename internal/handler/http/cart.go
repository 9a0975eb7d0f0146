package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/cartstore/internal/catalog"
	"github.com/utafrali/cartstore/internal/checkout"
	"github.com/utafrali/cartstore/internal/domain"
	"github.com/utafrali/cartstore/internal/session"
	"github.com/utafrali/cartstore/internal/store"
	apperrors "github.com/utafrali/cartstore/pkg/errors"
	"github.com/utafrali/cartstore/pkg/validator"
)

// Catalog is the product lookup surface the handler needs.
type Catalog interface {
	GetProduct(ctx context.Context, productID string) (*catalog.Product, error)
}

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	sessions *session.Manager
	catalog  Catalog
	checkout *checkout.Service
	logger   *slog.Logger
}

// NewCartHandler creates a cart HTTP handler.
func NewCartHandler(sessions *session.Manager, cat Catalog, co *checkout.Service, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		sessions: sessions,
		catalog:  cat,
		checkout: co,
		logger:   logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding an item to the cart.
// Name, price and image come from the catalog, not the client.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=0,lte=999"`
}

// UpdateQuantityRequest is the JSON request body for updating an item's quantity.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=0,lte=999"`
}

// --- Response envelope ---

type response struct {
	Data  any            `json:"data,omitempty"`
	Error *errorResponse `json:"error,omitempty"`
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// CartResponse is the full cart view returned by cart endpoints.
type CartResponse struct {
	Items     []domain.LineItem `json:"items"`
	ItemCount int               `json:"item_count"`
	Total     int64             `json:"total"`
	Degraded  bool              `json:"degraded"`
}

// SummaryResponse is the condensed view used by badge components.
type SummaryResponse struct {
	ItemCount int   `json:"item_count"`
	Total     int64 `json:"total"`
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart := h.sessions.Get(sessionIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, response{Data: h.cartResponse(r, cart)})
}

// GetSummary handles GET /api/v1/cart/summary
func (h *CartHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	cart := h.sessions.Get(sessionIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, response{Data: SummaryResponse{
		ItemCount: cart.ItemCount(r.Context()),
		Total:     cart.Total(r.Context()),
	}})
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !product.InStock {
		writeJSON(w, http.StatusConflict, response{
			Error: &errorResponse{Code: "OUT_OF_STOCK", Message: "product is out of stock"},
		})
		return
	}

	cart := h.sessions.Get(sessionIDFromContext(r.Context()))
	err = cart.Add(r.Context(), domain.LineItem{
		ProductID: product.ID,
		Name:      product.Name,
		Price:     product.Price,
		ImageURL:  product.ImageURL,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: h.cartResponse(r, cart)})
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{productId}
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	if productID == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "productId is required"},
		})
		return
	}

	var req UpdateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	cart := h.sessions.Get(sessionIDFromContext(r.Context()))
	cart.SetQuantity(r.Context(), productID, req.Quantity)

	writeJSON(w, http.StatusOK, response{Data: h.cartResponse(r, cart)})
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	if productID == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "productId is required"},
		})
		return
	}

	cart := h.sessions.Get(sessionIDFromContext(r.Context()))
	cart.Remove(r.Context(), productID)

	writeJSON(w, http.StatusOK, response{Data: h.cartResponse(r, cart)})
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	cart := h.sessions.Get(sessionIDFromContext(r.Context()))
	cart.Clear(r.Context())

	writeJSON(w, http.StatusOK, response{Data: map[string]string{"status": "cleared"}})
}

// Checkout handles POST /api/v1/checkout
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionIDFromContext(r.Context())
	cart := h.sessions.Get(sessionID)

	draft, err := h.checkout.Checkout(r.Context(), sessionID, cart)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, response{Data: draft})
}

// --- Helpers ---

func (h *CartHandler) cartResponse(r *http.Request, cart *store.Store) CartResponse {
	ctx := r.Context()
	items := cart.Read(ctx)
	if items == nil {
		items = []domain.LineItem{}
	}
	return CartResponse{
		Items:     items,
		ItemCount: cart.ItemCount(ctx),
		Total:     cart.Total(ctx),
		Degraded:  cart.Degraded(),
	}
}

func (h *CartHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "internal error",
				slog.String("error", err.Error()),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
		}
		writeJSON(w, appErr.Status, response{
			Error: &errorResponse{Code: appErr.Code, Message: appErr.Message},
		})
		return
	}

	h.logger.ErrorContext(r.Context(), "internal error",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
	writeJSON(w, http.StatusInternalServerError, response{
		Error: &errorResponse{Code: "INTERNAL_ERROR", Message: "an internal error occurred"},
	})
}

func (h *CartHandler) writeValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "request validation failed",
				Fields:  valErr.Fields(),
			},
		})
		return
	}

	writeJSON(w, http.StatusBadRequest, response{
		Error: &errorResponse{Code: "INVALID_INPUT", Message: err.Error()},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

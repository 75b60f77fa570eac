// Package handler implements the storefront HTTP API on top of the domain
// services.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/store"
)

// OrderService places and lists orders.
type OrderService interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.PlaceOrderResult, error)
	ListOrders(ctx context.Context, userID string) ([]order.Order, error)
}

// CatalogService resolves public store catalogs.
type CatalogService interface {
	Catalog(ctx context.Context, username string) (*store.Store, error)
}

var (
	_ OrderService   = (*order.Service)(nil)
	_ CatalogService = (*store.Service)(nil)
)

// Handler serves the /api routes.
type Handler struct {
	orders  OrderService
	catalog CatalogService
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders OrderService, catalog CatalogService) *Handler {
	return &Handler{
		orders:  orders,
		catalog: catalog,
	}
}

// Routes registers the API routes on r. Order routes resolve the caller
// through sessions.
func (h *Handler) Routes(r chi.Router, sessions *SecurityHandler) {
	r.Group(func(r chi.Router) {
		r.Use(sessions.Authenticate)
		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders", h.ListOrders)
	})
	r.Get("/store/data", h.StoreData)
}

// NewRouter returns a chi router with the API mounted under /api.
func NewRouter(h *Handler, sessions *SecurityHandler) *chi.Mux {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.Route("/api", func(r chi.Router) {
		h.Routes(r, sessions)
	})
	return r
}

func callerFrom(ctx context.Context) auth.Principal {
	p, _ := auth.FromContext(ctx)
	return p
}

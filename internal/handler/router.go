package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/bundle-checkout/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", h.Catalog)
		r.Post("/cart/quote", h.Quote)
		r.Get("/payment-methods", h.PaymentMethods)
		r.Get("/orders/{id}", h.OrderReceipt)

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/stripe", h.CheckoutStripe)
			r.Post("/paypal", h.CheckoutPayPal)
			r.Post("/paypal/capture", h.CapturePayPal)
			r.Post("/confirm", h.Confirm)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", h.AdminLogin)

			r.Group(func(r chi.Router) {
				r.Use(h.adminAuth.Middleware)

				r.Get("/payment-methods", h.AdminPaymentMethods)
				r.Post("/payment-methods/{id}", h.TogglePaymentMethod)
				r.Post("/pricing/reload", h.ReloadRules)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

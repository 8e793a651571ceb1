package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/Infantselva015/eci-payment-service/internal/metrics"
	"github.com/Infantselva015/eci-payment-service/internal/payment"
	"github.com/Infantselva015/eci-payment-service/internal/transport/middleware"
	"github.com/Infantselva015/eci-payment-service/internal/transport/swagger"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, paymentHandler *payment.Handler, collector *metrics.Collector, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		// Health check routes
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if collector != nil {
			r.Get("/metrics", collector.Handler())
		}

		if paymentHandler != nil {
			r.Route("/payments", func(pr chi.Router) {
				pr.Post("/", paymentHandler.CreatePayment)                                   // POST /payments
				pr.Get("/", paymentHandler.ListPayments)                                     // GET /payments
				pr.Get("/{id}", paymentHandler.GetPayment)                                   // GET /payments/:id
				pr.Get("/order/{orderID}", paymentHandler.GetPaymentByOrder)                 // GET /payments/order/:orderID
				pr.Get("/transaction/{transactionID}", paymentHandler.GetPaymentByTransaction) // GET /payments/transaction/:transactionID
				pr.Patch("/{id}/status", paymentHandler.UpdatePaymentStatus)                 // PATCH /payments/:id/status
				pr.Post("/{id}/refund", paymentHandler.RefundPayment)                        // POST /payments/:id/refund
				pr.Delete("/{id}", paymentHandler.CancelPayment)                             // DELETE /payments/:id
			})
		}
	})
}

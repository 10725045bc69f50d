package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tablyhq/tably-backend/api/controllers"
	billcontrollers "github.com/tablyhq/tably-backend/api/controllers/bills"
	ordercontrollers "github.com/tablyhq/tably-backend/api/controllers/orders"
	paymentcontrollers "github.com/tablyhq/tably-backend/api/controllers/payments"
	settlementcontrollers "github.com/tablyhq/tably-backend/api/controllers/settlements"
	webhookcontrollers "github.com/tablyhq/tably-backend/api/controllers/webhooks"
	"github.com/tablyhq/tably-backend/api/middleware"
	"github.com/tablyhq/tably-backend/internal/bills"
	"github.com/tablyhq/tably-backend/internal/orders"
	"github.com/tablyhq/tably-backend/internal/payments"
	gatewaywebhook "github.com/tablyhq/tably-backend/internal/webhooks/gateway"
	"github.com/tablyhq/tably-backend/pkg/config"
	"github.com/tablyhq/tably-backend/pkg/db"
	"github.com/tablyhq/tably-backend/pkg/enums"
	"github.com/tablyhq/tably-backend/pkg/logger"
	"github.com/tablyhq/tably-backend/pkg/metrics"
	"github.com/tablyhq/tably-backend/pkg/redis"
)

// RouterParams groups everything the API router wires together.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             db.Pinger
	Redis          *redis.Client
	Orders         orders.Service
	Bills          bills.Service
	Payments       payments.Service
	Webhooks       webhookcontrollers.GatewayWebhookService
	WebhookGuard   *gatewaywebhook.DeliveryGuard
	WebhookMetrics *metrics.WebhookMetrics
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Redis))
	})

	// Customer QR surface. No auth; the ordering token scopes the request
	// and the idempotency middleware caches replays.
	r.Route("/api/public", func(r chi.Router) {
		r.With(middleware.Idempotency(p.Redis, logg)).
			Post("/orders", ordercontrollers.CreatePublic(p.Orders, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/gateway", webhookcontrollers.GatewayWebhook(p.Webhooks, cfg.Gateway.WebhookSecret, p.WebhookGuard, p.WebhookMetrics, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RestaurantContext(logg))
		r.Use(middleware.Idempotency(p.Redis, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(p.Orders, logg))
			r.Get("/", ordercontrollers.List(p.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(p.Orders, logg))
			r.Post("/{orderId}/transition", ordercontrollers.Transition(p.Orders, logg))
			r.Post("/{orderId}/bill", billcontrollers.CreateFromOrder(p.Bills, logg))
		})
		r.Get("/kitchen/queue", ordercontrollers.KitchenQueue(p.Orders, logg))

		r.Route("/bills", func(r chi.Router) {
			r.Post("/", billcontrollers.Create(p.Bills, logg))
			r.Get("/{billId}", billcontrollers.Get(p.Bills, logg))
			r.Post("/{billId}/items", billcontrollers.AddItem(p.Bills, logg))
			r.Delete("/{billId}/items/{itemId}", billcontrollers.RemoveItem(p.Bills, logg))
			r.Patch("/{billId}/charges", billcontrollers.UpdateCharges(p.Bills, logg))
			r.Post("/{billId}/close", billcontrollers.Close(p.Bills, logg))
			r.Delete("/{billId}", billcontrollers.Delete(p.Bills, logg))
			r.Post("/{billId}/payments", paymentcontrollers.Add(p.Payments, logg))
		})

		r.Route("/settlements", func(r chi.Router) {
			r.Get("/", settlementcontrollers.Get(p.Payments, logg))
			r.With(middleware.RequireRole(string(enums.StaffRoleManager), logg)).
				Post("/aggregate", settlementcontrollers.Aggregate(p.Payments, logg))
		})
	})

	return r
}

package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/littlewears/littlewears-backend/api/controllers"
	"github.com/littlewears/littlewears-backend/api/middleware"
	"github.com/littlewears/littlewears-backend/internal/commission"
	"github.com/littlewears/littlewears-backend/internal/ledger"
	"github.com/littlewears/littlewears-backend/internal/orders"
	"github.com/littlewears/littlewears-backend/pkg/config"
	"github.com/littlewears/littlewears-backend/pkg/db"
	"github.com/littlewears/littlewears-backend/pkg/logger"
	"github.com/littlewears/littlewears-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	ordersService orders.Service,
	ledgerService ledger.Service,
	commissionService commission.Service,
	transferSigner controllers.TransferSigner,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	ready := controllers.HealthReady(cfg, logg, dbP, redisClient)
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", ready)
	})
	r.Get("/healthz", ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(ordersService, logg))
			r.Post("/payment-confirmation", controllers.ConfirmOrderPayment(ordersService, logg))
			r.Post("/{orderID}/cancel", controllers.CancelOrder(ordersService, logg))
			r.Post("/{orderID}/delivered", controllers.MarkOrderDelivered(ordersService, logg))
		})

		r.Post("/sellers/{sellerID}/withdrawals", controllers.SellerWithdrawal(ledgerService, logg))
		r.Post("/referrers/{referrerID}/withdrawals", controllers.ReferrerWithdrawal(commissionService, logg))

		r.Route("/transfers/{documentKey}", func(r chi.Router) {
			r.Post("/otp", controllers.RequestTransferOTP(transferSigner, logg))
			r.Post("/sign", controllers.SignTransferDocument(transferSigner, logg))
		})
	})

	return r
}

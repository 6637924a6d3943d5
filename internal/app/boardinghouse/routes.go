package boardinghouse

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/rivve/boarding-house/internal/config"
	"github.com/rivve/boarding-house/internal/http/handlers/auth/login"
	"github.com/rivve/boarding-house/internal/http/handlers/auth/me"
	"github.com/rivve/boarding-house/internal/http/handlers/auth/profile"
	"github.com/rivve/boarding-house/internal/http/handlers/auth/register"
	"github.com/rivve/boarding-house/internal/http/handlers/auth/verifyemail"
	"github.com/rivve/boarding-house/internal/http/handlers/chat/conversation"
	"github.com/rivve/boarding-house/internal/http/handlers/chat/send"
	"github.com/rivve/boarding-house/internal/http/handlers/chatbot"
	"github.com/rivve/boarding-house/internal/http/handlers/health"
	"github.com/rivve/boarding-house/internal/http/handlers/listing/contact"
	"github.com/rivve/boarding-house/internal/http/handlers/listing/create"
	"github.com/rivve/boarding-house/internal/http/handlers/listing/get"
	"github.com/rivve/boarding-house/internal/http/handlers/listing/remove"
	"github.com/rivve/boarding-house/internal/http/handlers/listing/residents"
	"github.com/rivve/boarding-house/internal/http/handlers/listing/review"
	"github.com/rivve/boarding-house/internal/http/handlers/listing/search"
	"github.com/rivve/boarding-house/internal/http/handlers/listing/update"
	"github.com/rivve/boarding-house/internal/http/handlers/payment/cancel"
	"github.com/rivve/boarding-house/internal/http/handlers/payment/checkout"
	"github.com/rivve/boarding-house/internal/http/handlers/payment/history"
	"github.com/rivve/boarding-house/internal/http/handlers/payment/webhook"
	"github.com/rivve/boarding-house/internal/http/handlers/wishlist/list"
	"github.com/rivve/boarding-house/internal/http/handlers/wishlist/toggle"
	"github.com/rivve/boarding-house/internal/http/middlewarectx"
	"github.com/rivve/boarding-house/internal/models"
)

// AuthService регистрация, вход и профиль.
type AuthService interface {
	register.Service
	login.Service
	verifyemail.Service
	me.Service
	profile.Service
}

// SubscriptionService оформление, отмена, история и webhook шлюза.
type SubscriptionService interface {
	checkout.Service
	cancel.Service
	history.Service
	webhook.Service
}

// ListingService объявления, отзывы, контакты и заселение.
type ListingService interface {
	create.Service
	search.Service
	get.Service
	review.Service
	contact.Service
	residents.Service
	update.Service
	remove.Service
}

// WishlistService избранное.
type WishlistService interface {
	toggle.Service
	list.Service
}

// ChatService личная переписка.
type ChatService interface {
	send.Service
	conversation.Service
}

// Services зависимости маршрутов.
type Services struct {
	Auth         AuthService
	Subscription SubscriptionService
	Listing      ListingService
	Wishlist     WishlistService
	Chat         ChatService
	Chatbot      chatbot.Service
	Tokens       middlewarectx.TokenParser
	Hub          http.Handler
	Ready        map[string]health.Checker
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg config.HTTPServer, s Services) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// webhook шлюза без аутентификации и лимита, подлинность проверяется подписью
		r.Post("/payments/webhook", webhook.New(logger, s.Subscription).ServeHTTP)
		r.Get("/health", health.New(logger, s.Ready).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger, cfg.RateLimit, cfg.RateBurst))

			// Открытые конечные точки
			r.Post("/auth/register", register.New(logger, s.Auth).ServeHTTP)
			r.Post("/auth/login", login.New(logger, s.Auth).ServeHTTP)
			r.Post("/auth/verify-email", verifyemail.New(logger, s.Auth).ServeHTTP)
			r.Get("/listings", search.New(logger, s.Listing).ServeHTTP)
			r.Get("/listings/{id}", get.New(logger, s.Listing).ServeHTTP)
			r.Get("/listings/{id}/reviews", review.NewList(logger, s.Listing).ServeHTTP)

			// Группа с JWT аутентификацией
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.JWTMiddleware(s.Tokens, logger))

				r.Get("/users/me", me.New(logger, s.Auth).ServeHTTP)
				r.Put("/users/me", profile.New(logger, s.Auth).ServeHTTP)
				r.Post("/payments/checkout", checkout.New(logger, s.Subscription).ServeHTTP)
				r.Post("/payments/cancel", cancel.New(logger, s.Subscription).ServeHTTP)
				r.Get("/payments/history", history.New(logger, s.Subscription).ServeHTTP)
				r.Post("/wishlist/{listingID}", toggle.New(logger, s.Wishlist).ServeHTTP)
				r.Get("/wishlist", list.New(logger, s.Wishlist).ServeHTTP)
				r.Post("/listings/{id}/reviews", review.NewAdd(logger, s.Listing).ServeHTTP)
				r.Post("/listings/{id}/contact", contact.New(logger, s.Listing).ServeHTTP)
				r.Post("/chatbot", chatbot.New(logger, s.Chatbot).ServeHTTP)
				r.Post("/messages", send.New(logger, s.Chat).ServeHTTP)
				r.Get("/messages/{userID}", conversation.New(logger, s.Chat).ServeHTTP)

				// Только для владельцев жилья
				r.Group(func(r chi.Router) {
					r.Use(middlewarectx.RequireRole(logger, string(models.RoleLandlord)))
					r.Post("/listings", create.New(logger, s.Listing).ServeHTTP)
					r.Put("/listings/{id}", update.New(logger, s.Listing).ServeHTTP)
					r.Delete("/listings/{id}", remove.New(logger, s.Listing).ServeHTTP)
					r.Post("/listings/{id}/residents/add", residents.New(logger, s.Listing, residents.OpAdd).ServeHTTP)
					r.Post("/listings/{id}/residents/remove", residents.New(logger, s.Listing, residents.OpRemove).ServeHTTP)
				})
			})
		})
	})

	r.Handle("/ws/occupancy", s.Hub)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}

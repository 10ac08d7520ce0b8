package routes

import (
	"net/http"
	"time"

	"github.com/Dosada05/padel-system/handlers"
	"github.com/Dosada05/padel-system/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Options struct {
	JWTSecret          []byte
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	// Логирование запросов chi; в тестах обычно выключено.
	RequestLogging bool
}

func SetupRoutes(
	router *chi.Mux,
	opts Options,
	authHandler *handlers.AuthHandler,
	matchHandler *handlers.MatchHandler,
	userHandler *handlers.UserHandler,
	friendshipHandler *handlers.FriendshipHandler,
	webSocketHandler *handlers.WebSocketHandler,
	healthHandler *handlers.HealthHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	if opts.RequestLogging {
		router.Use(chiMiddleware.Logger)
	}
	router.Use(chiMiddleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if opts.RateLimitRequests > 0 && opts.RateLimitWindow > 0 {
		router.Use(middleware.RateLimit(opts.RateLimitRequests, opts.RateLimitWindow))
	}

	authenticate := middleware.Authenticate(opts.JWTSecret)

	router.Get("/health", healthHandler.Health)

	router.Get("/docs/openapi.json", handlers.ServeOpenAPI)
	router.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/openapi.json")))
	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs/index.html", http.StatusMovedPermanently)
	})

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	router.Route("/matches", func(r chi.Router) {
		r.Get("/", matchHandler.ListMatches)
		r.Get("/{matchID}", matchHandler.GetMatch)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Post("/", matchHandler.CreateMatch)
			r.Delete("/{matchID}", matchHandler.DeleteMatch)
			r.Post("/{matchID}/join", matchHandler.JoinMatch)
			r.Post("/{matchID}/slots/{slot}", matchHandler.ClaimSlot)
			r.Post("/{matchID}/leave", matchHandler.LeaveMatch)
			r.Post("/{matchID}/finalize", matchHandler.FinalizeMatch)
		})
	})

	router.With(authenticate).Get("/me/matches", matchHandler.ListMyMatches)

	router.Route("/users", func(r chi.Router) {
		r.Get("/", userHandler.ListUsers)

		r.Route("/{userID}", func(r chi.Router) {
			r.Get("/", userHandler.GetUser)
			r.Get("/profile", userHandler.GetProfile)
			r.Get("/history", userHandler.GetHistory)
			r.With(authenticate).Patch("/", userHandler.UpdateProfile)
		})
	})

	router.Route("/friends", func(r chi.Router) {
		r.Use(authenticate)

		r.Get("/", friendshipHandler.ListFriends)
		r.Delete("/{userID}", friendshipHandler.RemoveFriend)
		r.Get("/requests", friendshipHandler.ListIncoming)
		r.Post("/requests", friendshipHandler.SendRequest)
		r.Post("/requests/{requestID}/accept", friendshipHandler.AcceptRequest)
		r.Post("/requests/{requestID}/reject", friendshipHandler.RejectRequest)
	})

	router.Route("/ws", func(r chi.Router) {
		r.Get("/matches", webSocketHandler.ServeMatches)
		r.Get("/matches/{matchID}", webSocketHandler.ServeMatch)
	})
}

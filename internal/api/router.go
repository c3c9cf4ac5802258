package api

import (
	"net/http"

	"github.com/Rrens/chat-relay/internal/api/handler"
	customMiddleware "github.com/Rrens/chat-relay/internal/api/middleware"
	"github.com/Rrens/chat-relay/internal/chat"
	"github.com/Rrens/chat-relay/internal/config"
	"github.com/Rrens/chat-relay/internal/domain"
	"github.com/Rrens/chat-relay/internal/llm"
	"github.com/Rrens/chat-relay/internal/llm/anthropic"
	"github.com/Rrens/chat-relay/internal/llm/deepseek"
	"github.com/Rrens/chat-relay/internal/llm/gemini"
	"github.com/Rrens/chat-relay/internal/llm/ollama"
	"github.com/Rrens/chat-relay/internal/llm/openai"
	"github.com/Rrens/chat-relay/internal/relay"
	"github.com/Rrens/chat-relay/internal/repository/redis"
	"github.com/Rrens/chat-relay/internal/security"
	"github.com/Rrens/chat-relay/internal/service"
	"github.com/Rrens/chat-relay/internal/usage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

// Dependencies are the storage backends the router serves from
type Dependencies struct {
	DB       handler.Pinger
	Users    domain.UserRepository
	Sessions domain.SessionRepository
	Messages domain.MessageRepository
	// Redis is optional; without it requests are not rate limited
	Redis *redis.Client
}

// NewLLMRouter registers every configured LLM provider
func NewLLMRouter(cfg config.LLMConfig) *llm.Router {
	llmRouter := llm.NewRouter(cfg.DefaultProvider)

	log.Info().Msgf("Initializing LLM providers. Default: %s", cfg.DefaultProvider)

	if cfg.Ollama.Host != "" {
		log.Info().Str("host", cfg.Ollama.Host).Msg("Registering Ollama provider")
		llmRouter.RegisterProvider(ollama.NewProvider(cfg.Ollama.Host, cfg.Ollama.DefaultModel))
	}
	if cfg.OpenAI.APIKey != "" {
		llmRouter.RegisterProvider(openai.NewProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model))
	}
	if cfg.Anthropic.APIKey != "" {
		llmRouter.RegisterProvider(anthropic.NewProvider(cfg.Anthropic.APIKey, cfg.Anthropic.Model))
	}
	if cfg.DeepSeek.APIKey != "" {
		llmRouter.RegisterProvider(deepseek.NewProvider(cfg.DeepSeek.APIKey, cfg.DeepSeek.Model))
	}
	if cfg.Gemini.APIKey != "" {
		log.Info().Int("key_len", len(cfg.Gemini.APIKey)).Msg("Registering Gemini provider")
		llmRouter.RegisterProvider(gemini.NewProvider(cfg.Gemini))
	} else {
		log.Warn().Msg("Gemini API Key is empty, skipping registration")
	}

	return llmRouter
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	jwtManager := security.NewJWTManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)

	var rateLimiter *redis.RateLimiter
	if deps.Redis != nil {
		rateLimiter = redis.NewRateLimiter(
			deps.Redis,
			cfg.Security.RateLimit.RequestsPerMinute,
			cfg.Security.RateLimit.Burst,
			cfg.Security.RateLimit.ExchangesPerMinute,
		)
	}

	llmRouter := NewLLMRouter(cfg.LLM)
	estimator := usage.NewEstimator(cfg.Usage.Rates)
	relayService := relay.NewService(llmRouter, estimator, cfg.LLM)

	var modelClient chat.ModelClient
	if cfg.Relay.URL != "" {
		log.Info().Str("url", cfg.Relay.URL).Msg("Using remote relay")
		modelClient = relay.NewClient(cfg.Relay)
	} else {
		modelClient = relay.NewLocal(relayService)
	}

	hub := chat.NewHub(deps.Sessions, deps.Messages, modelClient, estimator, cfg.Chat)

	defaultMode, err := chat.ParseMode(cfg.Chat.DefaultMode, chat.ModeStreaming)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid chat.default_mode, using streaming")
		defaultMode = chat.ModeStreaming
	}

	// Initialize services
	authService := service.NewAuthService(deps.Users, jwtManager)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService)
	sessionHandler := handler.NewSessionHandler(hub)
	messageHandler := handler.NewMessageHandler(hub, defaultMode)
	relayHandler := handler.NewRelayHandler(relayService)

	authMiddleware := customMiddleware.NewAuthMiddleware(jwtManager, cfg.Relay.Token)
	rateLimitMiddleware := customMiddleware.NewRateLimitMiddleware(rateLimiter)
	timeout := middleware.Timeout(cfg.Server.MiddlewareTimeout)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(timeout).Get("/health", handler.HealthCheck)
		r.With(timeout).Get("/ready", handler.ReadyCheck(deps.DB))

		// Auth routes (public)
		r.Route("/auth", func(r chi.Router) {
			r.Use(timeout)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(rateLimitMiddleware.Limit(redis.ScopeAPI))

			r.Group(func(r chi.Router) {
				r.Use(timeout)

				r.Get("/me", authHandler.Me)
				r.Get("/models", handler.ListModels(llmRouter))

				r.Route("/sessions", func(r chi.Router) {
					r.Get("/", sessionHandler.List)
					r.Post("/", sessionHandler.Create)

					r.Route("/{sessionID}", func(r chi.Router) {
						r.Put("/select", sessionHandler.Select)
						r.Put("/model", sessionHandler.ChangeModel)
						r.Delete("/", sessionHandler.Delete)
					})
				})
			})

			// Exchanges may stream for longer than the middleware timeout
			r.With(rateLimitMiddleware.Limit(redis.ScopeExchange)).Post("/messages", messageHandler.Send)
		})

		// Relay routes accept the service token as well as user tokens
		r.Route("/relay", func(r chi.Router) {
			r.Use(authMiddleware.AuthenticateService)
			r.Use(rateLimitMiddleware.Limit(redis.ScopeAPI))

			r.With(timeout).Post("/complete", relayHandler.Complete)
			r.Post("/stream", relayHandler.Stream)
		})
	})

	return r
}

// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: New builds every dependency once
// (database, token service, metadata clients, services, handlers, news bot)
// and wires them to routes. Nothing below this package constructs its own
// dependencies.
//
//	config → sqlite.DB → services → handlers → chi routes
//	                   ↘ newsbot.Bot → cron scheduler
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/maratonei/internal/auth"
	"github.com/sakif/maratonei/internal/config"
	"github.com/sakif/maratonei/internal/handler"
	"github.com/sakif/maratonei/internal/metadata"
	"github.com/sakif/maratonei/internal/middleware"
	"github.com/sakif/maratonei/internal/newsbot"
	sqliteRepo "github.com/sakif/maratonei/internal/repository/sqlite"
	"github.com/sakif/maratonei/internal/service"
)

const (
	startupTimeout  = 10 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database, the cache connection and the news bot
// scheduler; Close releases them in reverse order of creation.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger

	db         *sqliteRepo.DB
	closeCache func() error
	scheduler  *newsbot.Scheduler // nil when the bot is disabled
}

// New opens the database and builds the full dependency graph.
//
// IMPORT ALIAS:
// repository/sqlite is imported as sqliteRepo so it is not confused with
// the modernc.org/sqlite driver.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:     chi.NewRouter(),
		cfg:        cfg,
		logger:     logger,
		db:         db,
		closeCache: func() error { return nil },
	}

	if err := s.setupRoutes(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures middleware, builds services and handlers, and
// registers every route.
//
// ROUTE GROUPS:
//   - public:   auth endpoints, health, metrics
//   - optional: read-only pages; a session only personalizes them
//   - required: everything that changes state or is "mine"
//
// MIDDLEWARE ORDER MATTERS:
// RequestID runs first so the logger can print it; Recoverer sits inside
// the logger so a panic is still logged as a 500.
func (s *Server) setupRoutes(ctx context.Context) error {
	cfg := s.cfg

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Metrics)
	s.router.Use(middleware.CORS(cfg.CORSOrigins))

	// === Infrastructure ===
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	ai := metadata.NewAIClient(cfg.Gemini.APIKey, cfg.Gemini.BaseURL, cfg.Gemini.Model, s.logger)
	if ai == nil {
		s.logger.Warn("GEMINI_API_KEY not set; search uses the local catalog and recommendations are off")
	}
	tmdb := metadata.NewTMDBClient(cfg.TMDB.APIKey, cfg.TMDB.BaseURL, cfg.TMDB.ImageBaseURL, s.logger)
	if tmdb == nil {
		s.logger.Warn("TMDB_API_KEY not set; search results will have no posters")
	}
	cache, closeCache := metadata.NewCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, s.logger)
	s.closeCache = closeCache

	// === Services ===
	// s.db implements every repository interface; each service only sees
	// the interfaces it needs.
	authService := service.NewAuthService(s.db, tokens, passwords, s.logger)
	listService := service.NewListService(s.db, s.db, s.db, s.logger)
	profileService := service.NewProfileService(s.db, s.db, s.db, listService, s.logger)
	feedService := service.NewFeedService(s.db, s.db, s.logger)
	followService := service.NewFollowService(s.db, s.db, s.logger)
	badgeService := service.NewBadgeService(s.db, s.db, s.logger)
	searchService := service.NewSearchService(ai, tmdb, cache, s.db, s.db, s.logger)

	// === Handlers ===
	var github handler.GitHubLogin
	if cfg.GitHub.Enabled() {
		github = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL)
	}
	authHandler := handler.NewAuthHandler(authService, github, tokens.TTL(), cfg.AppURL, s.logger)
	profileHandler := handler.NewProfileHandler(profileService, s.logger)
	listHandler := handler.NewListHandler(listService, s.logger)
	feedHandler := handler.NewFeedHandler(feedService, s.logger)
	followHandler := handler.NewFollowHandler(followService, s.logger)
	badgeHandler := handler.NewBadgeHandler(badgeService, s.logger)
	searchHandler := handler.NewSearchHandler(searchService, s.logger)

	requireAuth := auth.RequireAuth(tokens)
	optionalAuth := auth.OptionalAuth(tokens)
	authLimit := middleware.RateLimit("auth", cfg.RateLimitPerMinute)
	searchLimit := middleware.RateLimit("search", cfg.RateLimitPerMinute)

	// === Operational ===
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	// === GitHub OAuth (optional) ===
	if github != nil {
		s.router.Route("/auth/github", func(r chi.Router) {
			r.Use(authLimit)
			r.Get("/login", authHandler.HandleGitHubLogin)
			r.Get("/callback", authHandler.HandleGitHubCallback)
		})
	} else {
		s.logger.Info("GitHub OAuth not configured; only email login is available")
	}

	// === API ===
	var newsHandler *handler.NewsBotHandler
	if cfg.News.Enabled {
		bot := newsbot.New(cfg.News.FeedURL, s.db, s.db, s.logger)
		if _, err := bot.EnsureUser(ctx); err != nil {
			return err
		}
		scheduler, err := newsbot.NewScheduler(bot, cfg.News.Schedule, s.logger)
		if err != nil {
			return err
		}
		s.scheduler = scheduler
		newsHandler = handler.NewNewsBotHandler(bot, cfg.News.CronSecret, s.logger)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimit)
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/logout", authHandler.HandleLogout)
		})

		if newsHandler != nil {
			r.Post("/internal/news-bot/run", newsHandler.HandleRun)
		}

		// Readable by anyone; a session fills in isFollowing / likedByMe.
		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)

			r.Get("/users", profileHandler.HandleSearch)
			r.Get("/users/{id}", profileHandler.HandleGet)
			r.Get("/users/{id}/series", listHandler.HandleList)
			r.Get("/users/{id}/series/grouped", listHandler.HandleGrouped)
			r.Get("/users/{id}/ranking", listHandler.HandleRanking)
			r.Get("/users/{id}/activities", feedHandler.HandleUserActivities)
			r.Get("/users/{id}/followers", followHandler.HandleFollowers)
			r.Get("/users/{id}/following", followHandler.HandleFollowing)
			r.Get("/users/{id}/badges", badgeHandler.HandleUserBadges)

			r.Get("/series/{id}", listHandler.HandleGetSeries)
			r.Get("/feed", feedHandler.HandleFeed)
			r.Get("/activities/{id}/comments", feedHandler.HandleComments)
			r.Get("/badges", badgeHandler.HandleCatalog)
			r.Get("/market", badgeHandler.HandleMarket)

			r.With(searchLimit).Get("/search", searchHandler.HandleSearch)
		})

		// Signed-in users only.
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Route("/me", func(r chi.Router) {
				r.Get("/", profileHandler.HandleMe)
				r.Put("/", profileHandler.HandleUpdateMe)
				r.Post("/onboarding", profileHandler.HandleOnboarding)

				r.Post("/series", listHandler.HandleAdd)
				r.Patch("/series/{seriesId}", listHandler.HandleUpdate)
				r.Delete("/series/{seriesId}", listHandler.HandleRemove)
				r.Put("/ranking/{slot}", listHandler.HandleSetRanking)
				r.Delete("/ranking/{slot}", listHandler.HandleClearRanking)

				r.Put("/badges/{id}/listing", badgeHandler.HandleList)
				r.Delete("/badges/{id}/listing", badgeHandler.HandleUnlist)
			})

			r.Post("/series", listHandler.HandleCreateSeries)

			r.Post("/activities", feedHandler.HandleCreatePost)
			r.Delete("/activities/{id}", feedHandler.HandleDelete)
			r.Post("/activities/{id}/like", feedHandler.HandleLike)
			r.Delete("/activities/{id}/like", feedHandler.HandleUnlike)
			r.Post("/activities/{id}/comments", feedHandler.HandleAddComment)
			r.Delete("/comments/{id}", feedHandler.HandleDeleteComment)

			r.Post("/users/{id}/follow", followHandler.HandleFollow)
			r.Delete("/users/{id}/follow", followHandler.HandleUnfollow)

			r.Post("/badges/{id}/buy", badgeHandler.HandleBuy)
			r.Post("/market/buy", badgeHandler.HandleBuyListing)

			r.With(searchLimit).Get("/recommendations", searchHandler.HandleRecommendations)
		})
	})

	return nil
}

// handleHealth reports whether the database answers.
//
// HTTP: GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// Start serves HTTP until SIGINT/SIGTERM, then shuts down gracefully:
//  1. stop accepting connections and let in-flight requests finish
//  2. stop the news bot schedule, waiting for a running job
//  3. close the cache and the database
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second, // AI searches can take a while
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.cfg.Port)),
			slog.String("database", s.cfg.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	if s.scheduler != nil {
		s.scheduler.Start()
	}

	select {
	case err := <-serverErrors:
		s.stopScheduler()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		shutdownErr := srv.Shutdown(ctx)
		s.stopScheduler()
		if shutdownErr != nil {
			return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// stopScheduler waits for a running news bot job so it never outlives the
// database. Safe to call when the bot is disabled.
func (s *Server) stopScheduler() {
	if s.scheduler == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.scheduler.Stop(ctx)
}

// Close releases the cache connection and the database.
func (s *Server) Close() error {
	return errors.Join(s.closeCache(), s.db.Close())
}

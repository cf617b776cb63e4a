package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	ginGzip "github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"

	constants "nombroludo/internal/constants"
	handlers "nombroludo/internal/handlers"
	lobby "nombroludo/internal/lobby"
	models "nombroludo/internal/models"
	session "nombroludo/internal/session"
	store "nombroludo/internal/store"
	util "nombroludo/internal/util"
)

func main() {
	_ = godotenv.Load()

	isProduction := os.Getenv("GIN_MODE") == "release" || os.Getenv("ENV") == "production"
	util.LogInfo("Starting Nombroludo in %s mode", map[bool]string{true: "production", false: "development"}[isProduction])

	app := &models.App{
		IsProduction:        isProduction,
		StartTime:           time.Now(),
		CookieMaxAge:        util.GetEnvDuration("COOKIE_MAX_AGE", 2*time.Hour),
		LobbyIdleTTL:        util.GetEnvDuration("LOBBY_IDLE_TTL", constants.DefaultLobbyIdleTTL),
		PlayerInactivityTTL: util.GetEnvDuration("PLAYER_INACTIVITY_TTL", constants.DefaultPlayerInactivityTTL),
		MatchRetention:      util.GetEnvDuration("MATCH_RETENTION_TTL", constants.DefaultMatchRetention),
		SweepInterval:       util.GetEnvDuration("SWEEP_INTERVAL", constants.DefaultSweepInterval),
		RateLimitRPS:        util.GetEnvInt("RATE_LIMIT_RPS", 5),
		RateLimitBurst:      util.GetEnvInt("RATE_LIMIT_BURST", 10),
		RateLimiterTTL:      util.GetEnvDuration("RATE_LIMITER_TTL", 1*time.Hour),
		AllowedOrigins:      getEnvOrigins("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		LimiterMap:          make(map[string]*models.RateLimiterEntry),
	}

	memStore := store.NewMemoryStore()
	directory := lobby.NewDirectory(memStore, app.LobbyIdleTTL)
	sessions := session.NewRegistry()

	api := &handlers.API{
		App:      app,
		Dir:      directory,
		Sessions: sessions,
	}

	router := gin.Default()

	router.Use(requestIDMiddleware())
	router.Use(securityHeadersMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     app.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", constants.PlayerTokenHeader, "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	// Watch streams must not be buffered by the gzip writer, so the
	// whole games subtree is excluded.
	router.Use(ginGzip.Gzip(ginGzip.DefaultCompression,
		ginGzip.WithExcludedPaths([]string{"/api/games/"})))
	router.Use(cachecontrol.New(cachecontrol.Config{
		NoStore:        true,
		NoCache:        true,
		MustRevalidate: true,
	}))

	if err := router.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		util.LogWarn("Failed to set trusted proxies: %v", err)
	}

	router.POST(constants.RouteCreateGame, rateLimitMiddleware(app), api.CreateGameHandler)
	router.GET(constants.RouteOpenLobbies, api.OpenLobbiesHandler)
	router.GET(constants.RouteActiveGames, api.ActiveGamesHandler)
	router.POST(constants.RouteJoinLobby, rateLimitMiddleware(app), api.JoinLobbyHandler)
	router.POST(constants.RouteJoinByCode, rateLimitMiddleware(app), api.JoinByCodeHandler)
	router.GET(constants.RouteGameView, api.GameViewHandler)
	router.GET(constants.RouteGameWatch, api.WatchHandler)
	router.POST(constants.RouteGuess, rateLimitMiddleware(app), api.GuessHandler)
	router.POST(constants.RouteLeave, api.LeaveHandler)
	router.POST(constants.RouteHeartbeat, api.HeartbeatHandler)
	router.POST(constants.RouteClaimTimeout, api.ClaimTimeoutHandler)
	router.DELETE(constants.RouteCancelLobby, api.CancelLobbyHandler)
	router.GET(constants.RouteSession, api.SessionHandler)
	router.GET(constants.RouteHealthz, api.HealthzHandler)

	startCleanupRoutines(app, directory, sessions)

	startServer(router)
}

func startCleanupRoutines(app *models.App, directory *lobby.Directory, sessions *session.Registry) {
	go func() {
		ticker := time.NewTicker(app.SweepInterval)
		defer ticker.Stop()

		for range ticker.C {
			directory.SweepIdleLobbies(time.Now())
			directory.SweepStaleMatches(app.MatchRetention, time.Now())
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			cleanupStaleRateLimiters(app)
			sessions.Sweep(24 * time.Hour)
		}
	}()

	util.LogInfo("Started cleanup routines for idle lobbies, stale matches, rate limiters and sessions")
}

func cleanupStaleRateLimiters(app *models.App) {
	app.LimiterMutex.Lock()
	defer app.LimiterMutex.Unlock()

	cutoffTime := time.Now().Add(-app.RateLimiterTTL)
	removedCount := 0

	for key, entry := range app.LimiterMap {
		if entry.LastAccess.Before(cutoffTime) {
			delete(app.LimiterMap, key)
			removedCount++
		}
	}

	if removedCount > 0 {
		util.LogInfo("Cleaned up %d stale rate limiters", removedCount)
	}
}

func startServer(router *gin.Engine) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No write timeout: SSE watch streams stay open until the
		// client disconnects.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint
		util.LogInfo("Shutdown signal received, shutting down server gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			util.LogWarn("HTTP server Shutdown: %v", err)
		}
		close(idleConnsClosed)
	}()

	util.LogInfo("Server starting on http://localhost:%s", port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		util.LogFatal("Server failed to start: %v", err)
	}
	<-idleConnsClosed
	util.LogInfo("Server shutdown complete")
}

func getEnvOrigins(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parts := strings.Split(val, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			origins = append(origins, p)
		}
	}
	if len(origins) == 0 {
		return fallback
	}
	return origins
}

package main

import (
	"context"
	"encoding/json"
	stdlog "log"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/flexfolio/src/config"
	"github.com/username/flexfolio/src/database"
	"github.com/username/flexfolio/src/flexquery"
	"github.com/username/flexfolio/src/handlers"
	"github.com/username/flexfolio/src/ledger"
	"github.com/username/flexfolio/src/logger"
	"github.com/username/flexfolio/src/services"
	"github.com/username/flexfolio/src/tickers"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Flexfolio backend server starting...")

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	db := database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	kvStore := database.NewKVStore(db)
	configStore := services.NewConfigStore(kvStore)

	logger.L.Info("Initializing ticker resolver...")
	tickerCache := tickers.NewCache(db, config.Cfg.TickerCacheRetention, config.Cfg.TickerCacheMaxEntries)
	quoteClient := tickers.NewHTTPQuoteClient(config.Cfg.QuoteSearchBaseURL)
	resolver := tickers.NewResolver(tickerCache, quoteClient.SearchIdentifier, quoteClient)

	logger.L.Info("Initializing services and handlers...")
	ledgerClient := ledger.NewHTTPClient(config.Cfg.LedgerBaseURL, config.Cfg.LedgerToken)
	importService := services.NewImportService(ledgerClient, resolver, db)

	flexClient := flexquery.NewClient(
		config.Cfg.FlexBaseURL,
		config.Cfg.FlexMinPollDelay,
		config.Cfg.FlexMaxPollDelay,
		config.Cfg.FlexFetchTimeout,
		config.Cfg.FlexPollRate,
	)
	resultCache := cache.New(cache.NoExpiration, cache.NoExpiration)
	syncService := services.NewSyncService(
		configStore, kvStore, flexClient, importService,
		config.Cfg.SyncCooldown, config.Cfg.FlexToken, resultCache,
	)

	uploadHandler := handlers.NewUploadHandler(importService)
	syncHandler := handlers.NewSyncHandler(syncService)
	configHandler := handlers.NewConfigHandler(configStore, kvStore)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	apiRouter.HandleFunc("POST /api/upload", uploadHandler.HandleUpload)
	apiRouter.HandleFunc("GET /api/configs", configHandler.HandleListConfigs)
	apiRouter.HandleFunc("POST /api/configs", configHandler.HandleCreateConfig)
	apiRouter.HandleFunc("PUT /api/configs/{id}", configHandler.HandleUpdateConfig)
	apiRouter.HandleFunc("DELETE /api/configs/{id}", configHandler.HandleDeleteConfig)
	apiRouter.HandleFunc("PUT /api/flex-token", configHandler.HandleSetToken)
	apiRouter.HandleFunc("POST /api/sync/run", syncHandler.HandleRunSync)
	apiRouter.HandleFunc("GET /api/sync/status", syncHandler.HandleSyncStatus)

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "FLEXFOLIO Backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Starting sync scheduler...", "interval", config.Cfg.SyncInterval)
	go runScheduler(syncService, config.Cfg.SyncInterval)

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}

// runScheduler fires the sync service on a fixed interval. The service
// itself enforces per-configuration cooldowns and single-run exclusion,
// so overlapping ticks are safe.
func runScheduler(syncService services.SyncService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		results, started := syncService.RunDue(context.Background())
		if !started {
			continue
		}
		for _, res := range results {
			if res.Success {
				logger.L.Info("Scheduled fetch completed",
					"configId", res.ConfigID, "name", res.ConfigName,
					"imported", res.Imported, "skipped", res.Skipped, "failed", res.Failed)
			} else {
				logger.L.Error("Scheduled fetch failed",
					"configId", res.ConfigID, "name", res.ConfigName, "error", res.Error)
			}
		}
	}
}

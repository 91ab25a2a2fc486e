package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"device-agent/agent"
	"device-agent/config"
	"device-agent/mqtt"
	"device-agent/ota"
	"device-agent/sensors"
	"device-agent/utils"

	"github.com/gorilla/mux"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Initialize logger
	logger := utils.NewLogger(cfg.LogLevel, cfg.LogFile)

	// Initialize transport session
	session := mqtt.NewSession(cfg, logger)
	defer session.Disconnect()

	// Initialize telemetry source
	source := sensors.NewSysfsSource(
		os.Getenv("TEMPERATURE_SENSOR_PATH"),
		os.Getenv("HUMIDITY_SENSOR_PATH"),
	)

	// Initialize OTA fetcher
	fetcher := ota.NewHTTPFetcher(cfg.OTAStagingFile, cfg.OTATimeout, logger)

	// Initialize agent
	a := agent.NewAgent(cfg, session, source, fetcher, logger)

	// Setup diagnostics HTTP server
	router := setupRouter(a, session, logger)
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Starting diagnostics HTTP server on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Diagnostics HTTP server failed: %v", err)
		}
	}()

	// Run the agent loop until a shutdown signal arrives
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutdown signal received")
		cancel()
	}()

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("Agent loop exited abnormally: %v", err)
	}

	// Shutdown HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Diagnostics HTTP server shutdown error: %v", err)
	}

	logger.Info("Agent stopped")
}

func setupRouter(a *agent.Agent, session *mqtt.Session, logger *utils.Logger) *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}).Methods("GET")

	api.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		state := session.State()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"identity":       a.Identity(),
			"connected":      state.Connected,
			"retry_count":    state.RetryCount,
			"uptime_seconds": int64(a.Uptime().Seconds()),
		})
	}).Methods("GET")

	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debugf("%s %s %s %v", r.Method, r.RequestURI, r.RemoteAddr, time.Since(start))
		})
	})

	return router
}

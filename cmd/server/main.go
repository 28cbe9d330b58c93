/*
main.go - Application entry point

PURPOSE:
  Wires the avatar engine together and runs it: SQLite-backed ledger,
  catalog, session store, generation orchestrator, Telegram poller, bonus
  scheduler, and the admin HTTP API.

STARTUP SEQUENCE:
  1. Parse flags, load configuration (file + AVATAR_* environment)
  2. Open the SQLite store and build the ledger
  3. Build catalog, sessions, orchestrator, payments, router
  4. Start the bonus scheduler, the Telegram poller, and the admin server
  5. Block until SIGINT/SIGTERM, then shut everything down in order

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (optional; env vars suffice)

REQUIRED ENVIRONMENT:
  AVATAR_TELEGRAM_TOKEN  Bot API token
  AVATAR_AI_API_KEY      Image backend key

EXAMPLES:
  AVATAR_TELEGRAM_TOKEN=... AVATAR_AI_API_KEY=... ./server
  ./server -config=./deploy/config.yaml

SEE ALSO:
  - config/config.go: All knobs and their defaults
  - api/server.go: Admin router
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nanoavatar/avatar-engine/ai"
	"github.com/nanoavatar/avatar-engine/api"
	"github.com/nanoavatar/avatar-engine/bonus"
	"github.com/nanoavatar/avatar-engine/bot"
	"github.com/nanoavatar/avatar-engine/catalog"
	"github.com/nanoavatar/avatar-engine/config"
	"github.com/nanoavatar/avatar-engine/generation"
	"github.com/nanoavatar/avatar-engine/ledger"
	"github.com/nanoavatar/avatar-engine/payment"
	"github.com/nanoavatar/avatar-engine/session"
	"github.com/nanoavatar/avatar-engine/store/sqlite"
	"github.com/nanoavatar/avatar-engine/telegram"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Persistence and ledger
	store, err := sqlite.New(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()
	creditLedger := ledger.NewLedger(store, cfg.Credits.StartingBalance)

	// Catalog and sessions
	styleCatalog := catalog.Seed()
	sessions := session.NewStore(styleCatalog.RootID())
	machine := session.NewMachine(styleCatalog, cfg.SelectionPolicy())

	// Generation pipeline
	backend := ai.NewClient(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model)
	orchestrator := generation.NewOrchestrator(styleCatalog, creditLedger, backend,
		cfg.Credits.PromptPrice, cfg.AI.Timeout)

	// Payments and chat transport
	payments := payment.NewService(creditLedger, payment.Config{
		MinTopupRub:   cfg.Payment.MinTopupRub,
		CreditsPerRub: cfg.Payment.CreditsPerRub,
		Currency:      cfg.Payment.Currency,
	})
	client := telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.ProviderToken, cfg.Payment.Currency)
	router := bot.NewRouter(styleCatalog, sessions, machine, creditLedger, orchestrator, payments, client)

	// Daily bonus
	scheduler := bonus.NewScheduler(creditLedger, router, bonus.Config{
		Amount:   cfg.Bonus.Amount,
		Hour:     cfg.Bonus.Hour,
		Minute:   cfg.Bonus.Minute,
		Location: loc,
	})
	scheduler.Start()
	defer scheduler.Stop()

	// Telegram poller
	pollCtx, stopPolling := context.WithCancel(context.Background())
	poller := telegram.NewPoller(client, router)
	go poller.Run(pollCtx)

	// Admin API
	adminServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: api.NewRouter(&api.Handler{
			Ledger:    creditLedger,
			Catalog:   styleCatalog,
			Sessions:  sessions,
			Scheduler: scheduler,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Printf("[Main] Admin API on http://localhost:%d/api", cfg.HTTP.Port)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Admin server failed: %v", err)
		}
	}()

	log.Printf("[Main] Avatar engine up: policy=%s price=%d start=%d catalog=%d nodes",
		cfg.SelectionPolicy(), cfg.Credits.PromptPrice, cfg.Credits.StartingBalance, styleCatalog.Len())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Main] Shutting down...")
	stopPolling()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := adminServer.Shutdown(ctx); err != nil {
		log.Printf("[Main] Admin server forced shutdown: %v", err)
	}
	log.Println("[Main] Stopped")
}

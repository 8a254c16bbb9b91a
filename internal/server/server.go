package server

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"crashround/internal/cache"
	"crashround/internal/database"
	"crashround/internal/game"
	"crashround/internal/history"
	"crashround/internal/wallet"
)

type FiberServer struct {
	*fiber.App

	db          database.Service
	cache       cache.Service
	wallet      *wallet.RedisWallet
	reconciler  *wallet.Reconciler
	history     *history.Store
	gameManager *game.Manager
	gameHub     *game.Hub

	reconcilerCancel context.CancelFunc
}

func New() *FiberServer {
	// Initialize database
	db := database.New()

	// Initialize Redis cache
	redisService := cache.New()
	if redisService == nil {
		log.Fatal("[SERVER] Redis is required for wallet and round state")
	}

	// Wallet collaborator and its credit-retry loop
	walletSvc := wallet.NewRedisWallet(redisService.GetClient())
	reconciler := wallet.NewReconciler(walletSvc)
	reconcilerCtx, reconcilerCancel := context.WithCancel(context.Background())
	go reconciler.Run(reconcilerCtx)

	// Round history archive
	var recorder game.RoundRecorder
	historyStore, err := history.New(context.Background())
	if err != nil {
		log.Printf("[SERVER] Round history store unavailable, rounds will not be archived: %v", err)
	} else {
		recorder = historyStore
	}

	// Round engine
	cfg := game.ConfigFromEnv()
	hub := game.NewHub()
	manager := game.NewManager(cfg, hub, walletSvc, reconciler, recorder, redisService.GetClient())

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "crashround",
			AppName:       "crashround",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		db:               db,
		cache:            redisService,
		wallet:           walletSvc,
		reconciler:       reconciler,
		history:          historyStore,
		gameManager:      manager,
		gameHub:          hub,
		reconcilerCancel: reconcilerCancel,
	}

	// Apply global middleware
	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	// Start game components
	go hub.Run()
	manager.Start()

	log.Println("[SERVER] Round engine started")

	return server
}

// Shutdown gracefully shuts down the server and game components
func (s *FiberServer) Shutdown() error {
	log.Println("[SERVER] Shutting down...")

	if s.gameManager != nil {
		s.gameManager.Stop()
	}
	if s.reconciler != nil {
		s.reconciler.Stop()
	}
	if s.reconcilerCancel != nil {
		s.reconcilerCancel()
	}

	if s.history != nil {
		s.history.Close()
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	return nil
}

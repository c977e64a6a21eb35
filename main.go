package main

import (
	"context"

	"github.com/wfunc/blackjackserver/broadcast"
	"github.com/wfunc/blackjackserver/config"
	"github.com/wfunc/blackjackserver/deck"
	"github.com/wfunc/blackjackserver/game"
	"github.com/wfunc/blackjackserver/logger"
	"github.com/wfunc/blackjackserver/models"
	"github.com/wfunc/blackjackserver/monitor"
	"github.com/wfunc/blackjackserver/persistence"
	"github.com/wfunc/blackjackserver/scheduler"
	"github.com/wfunc/blackjackserver/server"
	"github.com/wfunc/blackjackserver/services"
)

func main() {
	// Initialize logger
	logger.Init()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Database
	store, err := persistence.NewGormPostgreSQL(
		cfg.Database.Postgres.Host,
		cfg.Database.Postgres.Port,
		cfg.Database.Postgres.User,
		cfg.Database.Postgres.Password,
		cfg.Database.Postgres.DBName,
	)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Log.Info("Database connection successful.")

	// Monitoring
	mon := monitor.NewMonitor("blackjack_server")
	mon.StartServer(cfg.Server.MonitorAddress)

	// Room event fan-out
	broadcaster := broadcast.NewRoomBroadcaster(64)
	broadcaster.OnDrop = func(string) { monitor.EventsDropped.Inc() }

	// Deck provider
	decks := deck.NewHTTPClient(cfg.Deck.BaseURL, cfg.Deck.Timeout, cfg.Deck.Retries)

	defaults := models.GameConfig{
		StartingBalance: cfg.Game.StartingBalance,
		MinBet:          cfg.Game.MinBet,
		BettingSeconds:  int(cfg.Game.BettingTime.Seconds()),
		TurnSeconds:     int(cfg.Game.TurnTime.Seconds()),
		BlackjackPayout: cfg.Game.BlackjackPayout,
		ResetBalance:    cfg.Game.ResetBalance,
	}

	engine := game.NewEngine(store, decks, broadcaster, nil)
	roomService := services.NewRoomService(store, broadcaster, defaults, cfg.Game.MinPlayers, cfg.Game.MaxPlayers)

	// Deadline enforcement
	sweeper := scheduler.NewScheduler(engine, store, nil, cfg.Scheduler.Tick)
	sweeper.Start(context.Background())
	defer sweeper.Stop()

	// Game Server
	gameServer := server.NewGameServer(cfg.Server.HTTPAddress, cfg.Server.RPCAddress, roomService, engine, broadcaster, mon)

	logger.Log.Infof("Starting game server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}

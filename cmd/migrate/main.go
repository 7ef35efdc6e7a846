package main

import (
	"os"

	"clinic-chat-be/internal/bootstrap"
	"clinic-chat-be/internal/config"
	"clinic-chat-be/internal/model"

	"github.com/fatih/color"
)

func main() {
	// 1. Load Configuration (.env or system env)
	cfg := config.Load()
	if cfg.Chat.StoreDriver == config.StoreMemory {
		color.Yellow("CHAT_STORE_DRIVER=memory has no schema to migrate")
		return
	}

	// 2. Connect using the same helpers as the server
	db, err := bootstrap.OpenDatabase(cfg)
	if err != nil {
		color.Red("Failed to connect to %s: %v", cfg.Chat.StoreDriver, err)
		os.Exit(1)
	}

	color.Cyan("Migrating chat tables on %s...", cfg.Chat.StoreDriver)

	// 3. AutoMigrate creates tables and the indexes declared on the models,
	// including the partial unique index on active sessions per visitor.
	if err := model.AutoMigrate(db); err != nil {
		color.Red("AutoMigrate failed: %v", err)
		os.Exit(1)
	}

	for _, m := range model.All() {
		color.Green("  ok  %T", m)
	}
	color.Green("Database migration completed")
}

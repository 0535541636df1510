package main

import (
	"flag"
	"log"
	"os"

	"MacroPanel/internal/di"
	"MacroPanel/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s clickhouse=%t kafka=%t redis=%t queue=%t",
		cfg.Environment, cfg.ClickHouse.Enabled, cfg.Kafka.Enabled, cfg.Redis.Enabled, cfg.Queue.Enabled)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}

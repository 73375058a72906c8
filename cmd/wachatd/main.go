package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/fx"

	"wachat/internal/config"
	"wachat/internal/daemon"
	"wachat/internal/session"
)

func main() {
	configFlag := flag.String("config", "", "path to config file (default: config.toml in the data dir)")
	flag.Parse()

	// Optional .env next to the binary, mirrors the frontend dev setup.
	_ = godotenv.Load()

	configPath := *configFlag
	if configPath == "" {
		configPath = session.ConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(cfg),
	)

	app.Run()
}

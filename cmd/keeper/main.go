package main

import (
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/coldbell/wager/backend/internal/config"
	"github.com/coldbell/wager/backend/internal/daemon"
	"github.com/coldbell/wager/backend/internal/keeper"
)

func main() {
	os.Exit(daemon.Main("keeper", config.LoadKeeperConfig, keeper.New))
}

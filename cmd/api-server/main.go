package main

import (
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/coldbell/wager/backend/internal/apiserver"
	"github.com/coldbell/wager/backend/internal/config"
	"github.com/coldbell/wager/backend/internal/daemon"
)

func main() {
	os.Exit(daemon.Main("api-server", config.LoadAPIServerConfig, apiserver.New))
}

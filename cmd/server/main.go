package main

import (
	"os"

	"weavesync/internal/app/server"
	"weavesync/internal/app/server/config"
	"weavesync/internal/utils/logger"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env)

	if err := server.Run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/crediflow/scoregate/internal/gate/app"
)

func main() {
	// Local development convenience; deployments set real env vars.
	_ = godotenv.Load()

	cfg := app.LoadConfig()

	application, err := app.New(app.ModeIssuer, cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

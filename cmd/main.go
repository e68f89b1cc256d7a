package main

import (
	"log"

	"github.com/Imm0bilize/fraud-prediction-service/internal/app"
	"github.com/Imm0bilize/fraud-prediction-service/internal/config"
)

func main() {
	cfg, err := config.New(".env.public", ".env")
	if err != nil {
		log.Fatal(err)
	}

	app.Run(cfg)
}

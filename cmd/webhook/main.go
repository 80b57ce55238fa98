package main

import (
	"context"
	"os"

	"github.com/chanvault/chanvault/archiver/builder"
	"github.com/chanvault/chanvault/server"
	"github.com/chanvault/chanvault/utils/dotenv"
	Flag "github.com/chanvault/chanvault/utils/flag"
	Logger "github.com/chanvault/chanvault/utils/log"
	"github.com/gin-gonic/gin"
)

func main() {
	Flag.ParseFlags()
	if err := dotenv.LoadDotEnvs(); err != nil {
		Logger.Log.Fatal("fail to load env : ", err)
	}
	Logger.InitLogger()

	orchestrator, err := builder.NewOrchestratorFromEnv(context.Background())
	if err != nil {
		Logger.Log.Fatal("fail to build pipeline : ", err)
	}

	router := gin.Default()

	// Debug route for testing and health check
	router.GET("/healthz", server.HealthHandler())

	router.POST("/slack/events", server.SlackEventsHandler(orchestrator, os.Getenv("SLACK_VERIFICATION_TOKEN")))
	router.POST("/sweep", server.SweepHandler(orchestrator))

	Logger.Log.Info("===== Archive Webhook Server Started =====")
	router.Run(":7070")
}

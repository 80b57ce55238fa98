package main

import (
	"context"

	ddlambda "github.com/DataDog/datadog-lambda-go"
	"github.com/chanvault/chanvault/archiver/builder"
	"github.com/chanvault/chanvault/archiver/sync"
	"github.com/chanvault/chanvault/model"
	"github.com/chanvault/chanvault/utils/dotenv"
	Logger "github.com/chanvault/chanvault/utils/log"
	"github.com/aws/aws-lambda-go/lambda"
)

// orchestrator is built once per cold start and reused across invocations.
var orchestrator *sync.Orchestrator

// HandleRequest runs one sweep per scheduled invocation. The report is the
// invocation result, per-mapping failures never fail the invocation itself.
func HandleRequest(ctx context.Context) (*model.SweepReport, error) {
	report, err := orchestrator.RunSweep(ctx)
	if err != nil {
		Logger.Log.Error("sweep aborted before processing mappings : ", err)
		return nil, err
	}
	return report, nil
}

func main() {
	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}

	var err error
	orchestrator, err = builder.NewOrchestratorFromEnv(context.Background())
	if err != nil {
		Logger.Log.Fatal("fail to build pipeline : ", err)
	}

	Logger.Log.Info("Starting lambda handler, waiting for requests...")
	lambda.Start(ddlambda.WrapFunction(HandleRequest, nil))
}

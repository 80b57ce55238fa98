package main

import (
	"context"
	"flag"
	"time"

	"github.com/chanvault/chanvault/app_setting"
	"github.com/chanvault/chanvault/archiver/builder"
	"github.com/chanvault/chanvault/utils/dotenv"
	Flag "github.com/chanvault/chanvault/utils/flag"
	Logger "github.com/chanvault/chanvault/utils/log"
)

var (
	AppSettingPath *string
	// Configuration to customize binary startup.
	AppSetting app_setting.ArchiverAppSetting
)

// init() will always be called on before the execution of main function.
func init() {
	AppSettingPath = flag.String("app_setting_path", "cmd/archiver/setting.yaml", "path to archiver app setting")
	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}
}

func main() {
	Flag.ParseFlags()
	AppSetting = app_setting.ParseArchiverAppSetting(*AppSettingPath)
	Logger.InitLogger()

	orchestrator, err := builder.NewOrchestratorFromEnv(context.Background())
	if err != nil {
		Logger.Log.Fatal("fail to build pipeline : ", err)
	}

	interval := time.Duration(AppSetting.SWEEP_INTERVAL_SECOND) * time.Second
	timeout := time.Duration(AppSetting.SWEEP_TIMEOUT_SECOND) * time.Second
	Logger.Log.Info("starting archive sweep loop, interval ", interval)

	for {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		report, err := orchestrator.RunSweep(ctx)
		cancel()
		if err != nil {
			Logger.Log.Error("sweep aborted before processing mappings : ", err)
		} else if report.Failed > 0 {
			Logger.Log.Warnf("sweep completed with failures: %d ok, %d failed", report.Succeeded, report.Failed)
		}

		time.Sleep(interval)
	}
}

// Package builder wires the production pipeline from environment
// configuration. All clients are constructed here once and injected, so the
// core components never touch process-wide state.
package builder

import (
	"context"
	"os"

	"github.com/chanvault/chanvault/archiver/checkpoint"
	"github.com/chanvault/chanvault/archiver/identity"
	"github.com/chanvault/chanvault/archiver/mappingstore"
	"github.com/chanvault/chanvault/archiver/source"
	"github.com/chanvault/chanvault/archiver/store"
	"github.com/chanvault/chanvault/archiver/sync"
	"github.com/chanvault/chanvault/archiver/thread"
	"github.com/chanvault/chanvault/utils"
	"github.com/chanvault/chanvault/utils/dotenv"
	Logger "github.com/chanvault/chanvault/utils/log"
	"github.com/pkg/errors"
	"github.com/slack-go/slack"
)

// NewOrchestratorFromEnv assembles the full sync pipeline:
// Slack poller -> thread/identity resolvers -> renderer -> GitHub writer,
// with DynamoDB checkpoints and Postgres-backed mapping config.
func NewOrchestratorFromEnv(ctx context.Context) (*sync.Orchestrator, error) {
	slackToken := os.Getenv("SLACK_BOT_TOKEN")
	if slackToken == "" {
		return nil, errors.New("SLACK_BOT_TOKEN is not set")
	}
	githubToken := os.Getenv("GITHUB_TOKEN")
	if githubToken == "" {
		return nil, errors.New("GITHUB_TOKEN is not set")
	}

	db, err := utils.GetDBConnection()
	if err != nil {
		return nil, errors.Wrap(err, "fail to connect mapping database")
	}
	utils.DatabaseSetupAndMigration(db)

	checkpoints, err := checkpoint.NewDynamoStoreFromEnv()
	if err != nil {
		return nil, errors.Wrap(err, "fail to build checkpoint store")
	}

	slackClient := slack.New(slackToken)
	poller := source.NewSlackPoller(slackClient)

	var identityCache identity.SharedCache
	if os.Getenv("REDIS_HOST") != "" {
		cache, err := identity.GetRedisIdentityCache()
		if err != nil {
			// The shared cache is an optimization, resolution still works
			// through users.info without it.
			Logger.Log.Warn("fail to connect identity cache, continuing without: ", err)
		} else {
			identityCache = cache
		}
	}

	var reporter *sync.Reporter
	if dotenv.IsProdEnv() {
		reporter = sync.NewDogStatsdReporter()
	}

	return sync.NewOrchestrator(
		mappingstore.NewGormStore(db),
		poller,
		thread.NewResolver(poller),
		identity.NewSlackIdentitySource(slackClient),
		identityCache,
		store.NewWriter(store.NewGitHubStoreFromToken(ctx, githubToken)),
		checkpoints,
		reporter,
	), nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/chanvault/chanvault/archiver/mappingstore"
	"github.com/chanvault/chanvault/model"
	"github.com/chanvault/chanvault/utils"
	"github.com/chanvault/chanvault/utils/dotenv"
)

var (
	channelId   = flag.String("channel_id", "", "Slack channel id, e.g. C024BE91L")
	channelName = flag.String("channel_name", "", "Slack channel name without the leading #")
	repo        = flag.String("repo", "", "destination GitHub repository, owner/name")
	branch      = flag.String("branch", "main", "destination branch")
	folder      = flag.String("folder", "archives", "folder prefix inside the repository")
)

func main() {
	flag.Parse()
	if *channelId == "" || *channelName == "" || *repo == "" {
		log.Fatalln("channel_id, channel_name and repo are required")
	}
	if err := dotenv.LoadDotEnvs(); err != nil {
		log.Fatalln("fail to load env: ", err)
	}

	db, err := utils.GetDBConnection()
	if err != nil {
		log.Fatalln("fail to connect database: ", err)
	}
	utils.DatabaseSetupAndMigration(db)

	mapping := &model.ChannelMapping{
		SourceChannelId:   *channelId,
		SourceChannelName: *channelName,
		DestinationRepo:   *repo,
		DestinationBranch: *branch,
		DestinationFolder: *folder,
		Active:            true,
	}
	if err := mappingstore.NewGormStore(db).Create(context.Background(), mapping); err != nil {
		log.Fatalln("fail to create mapping: ", err)
	}
	fmt.Println("created mapping", mapping.Id, "for channel", *channelName)
}

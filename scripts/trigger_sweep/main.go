package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/chanvault/chanvault/model"
)

var serverAddr = flag.String("addr", "http://localhost:7070", "webhook server base address")

func main() {
	flag.Parse()

	res, err := http.Post(*serverAddr+"/sweep", "application/json", nil)
	if err != nil {
		log.Fatalln("fail to call sweep endpoint: ", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		log.Fatalln("sweep endpoint returned status: ", res.Status)
	}

	var report model.SweepReport
	if err := json.NewDecoder(res.Body).Decode(&report); err != nil {
		log.Fatalln("fail to decode sweep report: ", err)
	}
	fmt.Printf("sweep finished: %d succeeded, %d failed\n", report.Succeeded, report.Failed)
	for _, outcome := range report.Outcomes {
		fmt.Printf("  channel %s: success=%v archived=%d %s\n",
			outcome.ChannelId, outcome.Success, outcome.ArchivedCount, outcome.Error)
	}
}

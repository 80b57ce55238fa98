package sync

import (
	"strconv"

	"github.com/chanvault/chanvault/model"
	Logger "github.com/chanvault/chanvault/utils/log"
	"github.com/DataDog/datadog-go/statsd"
)

const (
	mappingOutcomeCounter  = "chanvault.sweep.mapping_outcome"
	archivedMessageCounter = "chanvault.sweep.archived_messages"
)

// Reporter sends per-mapping sweep outcomes to Datadog for monitoring.
type Reporter struct {
	Statsd *statsd.Client
}

func NewReporter(client *statsd.Client) *Reporter {
	return &Reporter{Statsd: client}
}

func NewDogStatsdReporter() *Reporter {
	client, err := statsd.New("127.0.0.1:8125")
	if err != nil {
		panic(err)
	}
	return NewReporter(client)
}

func (r *Reporter) ReportSweep(report *model.SweepReport) {
	for i := range report.Outcomes {
		r.ReportOutcome(&report.Outcomes[i])
	}
}

func (r *Reporter) ReportOutcome(outcome *model.MappingOutcome) {
	tags := []string{
		"mapping:" + outcome.MappingId,
		"channel:" + outcome.ChannelId,
		"success:" + strconv.FormatBool(outcome.Success),
	}
	if outcome.ErrorClass != "" {
		tags = append(tags, "error_class:"+outcome.ErrorClass)
	}

	if err := r.Statsd.Incr(mappingOutcomeCounter, tags, 1); err != nil {
		Logger.Log.Infoln("cannot report mapping outcome")
	}
	if outcome.ArchivedCount > 0 {
		if err := r.Statsd.Count(archivedMessageCounter, outcome.ArchivedCount, tags, 1); err != nil {
			Logger.Log.Infoln("cannot report archived message count")
		}
	}
}

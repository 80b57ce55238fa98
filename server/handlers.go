// Package server exposes the push delivery webhook and the manual sweep
// trigger. It is a thin gin layer over the orchestrator; everything with
// archive semantics lives below it.
package server

import (
	"io/ioutil"
	"net/http"

	"github.com/chanvault/chanvault/archiver"
	"github.com/chanvault/chanvault/archiver/source"
	"github.com/chanvault/chanvault/archiver/sync"
	Logger "github.com/chanvault/chanvault/utils/log"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// SlackEventsHandler receives Slack Events API deliveries. It answers the
// url_verification handshake, rejects payloads with a wrong verification
// token, and feeds valid message events into the pipeline. Malformed
// payloads are discarded with a 400 and a log entry, never retried.
func SlackEventsHandler(orchestrator *sync.Orchestrator, verificationToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := ioutil.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
			return
		}

		envelope, err := source.DecodeEnvelope(body)
		if err != nil {
			Logger.Log.Warn("discarding malformed event envelope: ", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if verificationToken != "" && envelope.Token != verificationToken {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "bad verification token"})
			return
		}

		if envelope.IsURLVerification() {
			c.JSON(http.StatusOK, gin.H{"challenge": envelope.Challenge})
			return
		}

		msg, err := source.ParseMessageEvent(envelope.Event)
		if err != nil {
			var validation *archiver.ValidationError
			if errors.As(err, &validation) {
				Logger.Log.Warn("discarding malformed message event: ", err)
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if msg == nil {
			// Non-content event, acknowledged and dropped.
			c.JSON(http.StatusOK, gin.H{"ignored": true})
			return
		}

		outcome, err := orchestrator.HandleInboundMessage(c.Request.Context(), msg)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, outcome)
	}
}

// SweepHandler triggers one full sweep and returns the per-mapping report.
func SweepHandler(orchestrator *sync.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := orchestrator.RunSweep(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// HealthHandler is a plain liveness probe.
func HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

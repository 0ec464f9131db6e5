package ingestion

import (
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/observability"
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// Run drains raw payloads in arrival order, parses them, and applies them
// through apply. A message is acked only after apply succeeds, so the event
// that trips a halt stays un-acked and is redelivered once the indexer
// restarts. Malformed payloads and unknown subjects are acked and skipped
// to avoid a redelivery loop. An apply error is a stream violation and
// stops the loop rather than skipping the event.
func Run(
	ctx context.Context,
	rawChan <-chan RawEvent,
	apply func(event.Event) error,
	metrics *observability.Metrics,
	log zerolog.Logger,
) error {
	subjectToType := make(map[string]string)
	for _, cfg := range DefaultSubjects() {
		subjectToType[strings.TrimSuffix(cfg.Subject, ".>")] = cfg.EventType
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-rawChan:
			if !ok {
				return nil
			}

			eventType := resolveEventType(raw.Subject, subjectToType)
			if eventType == "" {
				log.Warn().Str("subject", raw.Subject).Msg("unknown nats subject")
				raw.AckFunc()
				continue
			}
			if metrics != nil {
				metrics.IngestMessages.WithLabelValues(raw.Subject).Inc()
			}

			evt, err := ParseRawEvent(raw, eventType)
			if err != nil {
				log.Warn().Err(err).Str("subject", raw.Subject).Msg("parse event failed")
				if metrics != nil {
					metrics.IngestParseErr.WithLabelValues(raw.Subject).Inc()
				}
				raw.AckFunc()
				continue
			}

			if err := apply(evt); err != nil {
				prov := evt.Provenance()
				log.Error().Err(err).
					Str("kind", evt.Kind().String()).
					Int64("block", prov.BlockNumber).
					Int64("log_index", prov.LogIndex).
					Msg("event stream violation")
				raw.NakFunc()
				return err
			}
			raw.AckFunc()
		}
	}
}

// resolveEventType finds the event type for a NATS subject by matching the
// longest configured prefix.
func resolveEventType(subject string, prefixMap map[string]string) string {
	bestMatch := ""
	bestType := ""
	for prefix, evtType := range prefixMap {
		if strings.HasPrefix(subject, prefix) && len(prefix) > len(bestMatch) {
			bestMatch = prefix
			bestType = evtType
		}
	}
	return bestType
}

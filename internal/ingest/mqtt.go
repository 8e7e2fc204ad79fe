package ingest

import (
	"bytes"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/snarg/transcript-segmenter/internal/api"
	"github.com/snarg/transcript-segmenter/internal/metrics"
	"github.com/snarg/transcript-segmenter/internal/mqttclient"
	"github.com/snarg/transcript-segmenter/internal/transcript"
)

// MQTTHandler returns a message handler that queues each payload for
// segmentation and asks for the result to be published back. A payload is
// either a SegmentRequest JSON object or raw transcript text.
func MQTTHandler(pool *WorkerPool, log zerolog.Logger) mqttclient.MessageHandler {
	log = log.With().Str("component", "mqtt-ingest").Logger()
	return func(topic string, payload []byte) {
		metrics.MQTTMessagesTotal.Inc()

		t, name, err := decodePayload(payload)
		if err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("invalid transcript payload")
			return
		}
		if name == "" {
			name = mqttclient.NameFromTopic(topic)
		}

		st, err := pool.Submit(api.JobRequest{
			Source:     "mqtt",
			Name:       name,
			Transcript: t,
			Publish:    true,
		})
		if err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("failed to queue transcript")
			return
		}
		log.Debug().Str("topic", topic).Str("job_id", st.ID.String()).Msg("transcript queued")
	}
}

func decodePayload(payload []byte) (*transcript.Transcript, string, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var req api.SegmentRequest
		if err := json.Unmarshal(trimmed, &req); err != nil {
			return nil, "", err
		}
		t, err := req.ToTranscript()
		return t, req.Name, err
	}
	return transcript.ParseString(string(payload)), "", nil
}

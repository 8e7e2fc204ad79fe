package ingest

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name          string
		payload       string
		wantSentences int
		wantName      string
		wantErr       bool
	}{
		{"raw_text", sampleTranscript, 2, "", false},
		{
			"json_transcript",
			`{"name":"standup","transcript":"0 --> 1\nHello\n\n1 --> 2\nWorld\n"}`,
			2, "standup", false,
		},
		{
			"json_sentences",
			`{"sentences":[{"text":"a","start":0,"end":1},{"text":"b","start":1,"end":2},{"text":"c","start":2,"end":3}]}`,
			3, "", false,
		},
		{"json_empty", `{"name":"x"}`, 0, "", true},
		{"json_malformed", `{"transcript":`, 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, name, err := decodePayload([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(tr.Sentences) != tt.wantSentences {
				t.Errorf("sentences = %d, want %d", len(tr.Sentences), tt.wantSentences)
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
		})
	}
}

func TestMQTTHandlerQueuesWithTopicName(t *testing.T) {
	wp := newTestPool(0, 4)
	h := MQTTHandler(wp, zerolog.Nop())

	h("transcripts/board-meeting", []byte(sampleTranscript))
	h("transcripts/bad", []byte(`{"transcript":`))

	if wp.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", wp.Pending())
	}
	j := <-wp.jobs
	if j.req.Name != "board-meeting" {
		t.Errorf("Name = %q, want board-meeting", j.req.Name)
	}
	if j.req.Source != "mqtt" || !j.req.Publish {
		t.Errorf("req = %+v, want mqtt source with publish", j.req)
	}
}

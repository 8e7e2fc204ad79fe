package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/transcript-segmenter/internal/segment"
	"github.com/snarg/transcript-segmenter/internal/transcript"
)

// SegmentHandler serves segmentation requests and job status.
type SegmentHandler struct {
	queue          JobQueue
	maxUploadBytes int64
	log            zerolog.Logger
}

// NewSegmentHandler creates a segment handler. maxUploadBytes bounds
// multipart uploads.
func NewSegmentHandler(queue JobQueue, maxUploadBytes int64, log zerolog.Logger) *SegmentHandler {
	return &SegmentHandler{
		queue:          queue,
		maxUploadBytes: maxUploadBytes,
		log:            log.With().Str("handler", "segment").Logger(),
	}
}

// Routes registers segmentation routes on the given router.
func (h *SegmentHandler) Routes(r chi.Router) {
	r.Post("/segment", h.Segment)
	r.Post("/segment/upload", h.Upload)
	r.Get("/jobs/{id}", h.GetJob)
	r.Get("/queue", h.QueueStats)
}

// SegmentResponse is returned by a synchronous segmentation request.
type SegmentResponse struct {
	ID        uuid.UUID `json:"id"`
	OutputKey string    `json:"output_key,omitempty"`
	Message   string    `json:"message,omitempty"`
	segment.Result
}

// Segment handles POST /api/v1/segment with a SegmentRequest JSON body.
func (h *SegmentHandler) Segment(w http.ResponseWriter, r *http.Request) {
	var req SegmentRequest
	if err := DecodeJSON(r, &req); err != nil {
		if tooLarge(err) {
			WriteErrorWithCode(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "request body too large")
			return
		}
		WriteErrorWithCode(w, http.StatusBadRequest, CodeInvalidBody, "invalid JSON body: "+err.Error())
		return
	}
	t, err := req.ToTranscript()
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	h.dispatch(w, r, req.Name, t)
}

// Upload handles POST /api/v1/segment/upload. The transcript file is read
// from the multipart "file" field; an optional "name" field overrides the
// file name.
func (h *SegmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		if tooLarge(err) {
			WriteErrorWithCode(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "upload too large")
			return
		}
		WriteErrorWithCode(w, http.StatusBadRequest, CodeInvalidBody, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, CodeBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, CodeInvalidBody, "failed to read file")
		return
	}
	t, err := transcript.Parse(bytes.NewReader(data))
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, CodeInvalidBody, "failed to parse transcript: "+err.Error())
		return
	}

	name := header.Filename
	if v := r.FormValue("name"); v != "" {
		name = v
	}
	h.dispatch(w, r, name, t)
}

// dispatch runs or queues t. ?async=true queues the job and returns 202;
// ?publish=true also publishes the result over MQTT; ?format=text returns
// the plain-text rendering of a synchronous result.
func (h *SegmentHandler) dispatch(w http.ResponseWriter, r *http.Request, name string, t *transcript.Transcript) {
	if len(t.Tokens) <= 1 {
		WriteErrorWithCode(w, http.StatusUnprocessableEntity, CodeSequenceTooShort,
			fmt.Sprintf("transcript has %d tokens; at least 2 are required", len(t.Tokens)))
		return
	}

	publish, _ := QueryBool(r, "publish")
	req := JobRequest{Source: "http", Name: name, Transcript: t, Publish: publish}

	if async, _ := QueryBool(r, "async"); async {
		st, err := h.queue.Submit(req)
		if errors.Is(err, ErrQueueFull) {
			w.Header().Set("Retry-After", "5")
			WriteErrorWithCode(w, http.StatusServiceUnavailable, CodeQueueFull, err.Error())
			return
		}
		if err != nil {
			h.log.Error().Err(err).Msg("submit failed")
			WriteErrorWithCode(w, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
			return
		}
		w.Header().Set("Location", "/api/v1/jobs/"+st.ID.String())
		WriteJSON(w, http.StatusAccepted, st)
		return
	}

	st, err := h.queue.Run(r.Context(), req)
	if err != nil {
		if errors.Is(err, segment.ErrSequenceTooShort) {
			WriteErrorWithCode(w, http.StatusUnprocessableEntity, CodeSequenceTooShort, err.Error())
			return
		}
		h.log.Error().Err(err).Str("name", name).Msg("segmentation failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, CodeInternal, "segmentation failed")
		return
	}

	resp := SegmentResponse{ID: st.ID, OutputKey: st.OutputKey}
	if st.Result != nil {
		resp.Result = *st.Result
	}
	if len(resp.Segments) == 0 {
		resp.Message = segment.NoSegmentsMessage
	}

	if f, _ := QueryString(r, "format"); f == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if len(resp.Segments) == 0 {
			io.WriteString(w, segment.NoSegmentsMessage+"\n")
			return
		}
		io.WriteString(w, segment.Format(resp.Segments))
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /api/v1/jobs/{id}.
func (h *SegmentHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, CodeBadRequest, "invalid job id")
		return
	}
	st, ok := h.queue.Job(id)
	if !ok {
		WriteErrorWithCode(w, http.StatusNotFound, CodeNotFound, "job not found")
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

// QueueStats handles GET /api/v1/queue.
func (h *SegmentHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.queue.Stats())
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

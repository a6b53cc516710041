package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/visagekit/blendstream/pkg/domain/interfaces"
	"github.com/visagekit/blendstream/pkg/domain/model"
	"github.com/visagekit/blendstream/pkg/utils/async"
	"github.com/visagekit/blendstream/pkg/utils/audio"
)

// maxUploadBytes caps the accepted audio upload size (64 MiB covers well over
// an hour of 16-bit mono PCM).
const maxUploadBytes = 64 << 20

// ProcessHandler handles audio-to-blendshape streaming requests
type ProcessHandler struct {
	tmpDir   string
	streamUC interfaces.StreamUseCase
	notifier interfaces.Notifier
	metrics  *Metrics
}

// NewProcessHandler creates a new ProcessHandler
func NewProcessHandler(tmpDir string, streamUC interfaces.StreamUseCase, notifier interfaces.Notifier, metrics *Metrics) *ProcessHandler {
	return &ProcessHandler{
		tmpDir:   tmpDir,
		streamUC: streamUC,
		notifier: notifier,
		metrics:  metrics,
	}
}

// Handle accepts a multipart audio upload and streams chunk results back as
// NDJSON, one line per chunk, in chunk order.
func (h *ProcessHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := ctxlog.From(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	fps, err := parseFPS(r)
	if err != nil {
		writeError(ctx, w, err, http.StatusBadRequest)
		return
	}

	emotions, err := parseEmotions(r)
	if err != nil {
		writeError(ctx, w, err, http.StatusBadRequest)
		return
	}

	audioPath, err := h.saveAudioFile(r)
	if err != nil {
		logger.Error("Failed to save audio file", "error", err)
		writeError(ctx, w, err, http.StatusBadRequest)
		return
	}
	defer h.cleanupTempFile(ctx, audioPath)

	duration, err := audio.Duration(audioPath)
	if err != nil {
		writeError(ctx, w, err, http.StatusBadRequest)
		return
	}

	job := &model.StreamJob{
		ID:          uuid.NewString(),
		AudioPath:   audioPath,
		Duration:    duration,
		FPS:         fps,
		Emotions:    emotions,
		SubmittedAt: time.Now(),
	}

	h.metrics.ActiveStreams.Inc()
	defer h.metrics.ActiveStreams.Dec()

	flusher, _ := w.(http.Flusher)
	streamed := false

	sink := func(_ context.Context, result *model.ChunkResult) error {
		if !streamed {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.WriteHeader(http.StatusOK)
			streamed = true
		}

		line, err := json.Marshal(result)
		if err != nil {
			return goerr.Wrap(err, "failed to encode chunk result")
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return goerr.Wrap(err, "failed to write chunk result")
		}
		if flusher != nil {
			flusher.Flush()
		}

		h.metrics.ChunksStreamed.Inc()
		return nil
	}

	if err := h.streamUC.ProcessAudio(ctx, job, sink); err != nil {
		logger.Error("Stream job failed",
			"job_id", job.ID,
			"streamed", streamed,
			"error", err,
		)

		jobErr := err
		async.Dispatch(ctx, func(nctx context.Context) error {
			h.notifier.NotifyJobFailure(nctx, job.ID, jobErr)
			return nil
		})

		// Once the first chunk is out the status line is committed; the
		// connection just ends short, so report to Sentry directly.
		if streamed {
			sentry.CaptureException(err)
		} else {
			writeError(ctx, w, err, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("Stream job completed", "job_id", job.ID, "duration", duration)
}

// parseFPS reads the optional fps parameter from query or form
func parseFPS(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("fps")
	if raw == "" {
		raw = r.FormValue("fps")
	}
	if raw == "" {
		return 0, nil
	}

	fps, err := strconv.Atoi(raw)
	if err != nil || fps <= 0 {
		return 0, goerr.New("fps must be a positive integer")
	}
	return fps, nil
}

// parseEmotions reads the optional emotions form field
func parseEmotions(r *http.Request) (*model.EmotionWeights, error) {
	raw := r.FormValue("emotions")
	if raw == "" {
		return nil, nil
	}
	return model.ParseEmotionWeights([]byte(raw))
}

// saveAudioFile stores the uploaded audio under the tmp dir, decoding base64
// payloads to raw WAV bytes.
func (h *ProcessHandler) saveAudioFile(r *http.Request) (string, error) {
	file, _, err := r.FormFile("audio_file")
	if err != nil {
		return "", goerr.Wrap(err, "audio_file is required")
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read audio upload")
	}

	decoded, err := audio.Normalize(content)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(h.tmpDir, 0755); err != nil {
		return "", goerr.Wrap(err, "failed to create tmp dir")
	}

	path := filepath.Join(h.tmpDir, uuid.NewString()+".wav")
	if err := os.WriteFile(path, decoded, 0600); err != nil {
		return "", goerr.Wrap(err, "failed to write audio file")
	}
	return path, nil
}

// cleanupTempFile removes the temp audio file once streaming is finished
func (h *ProcessHandler) cleanupTempFile(ctx context.Context, path string) {
	logger := ctxlog.From(ctx)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to clean up temp audio file", "path", path, "error", err)
		return
	}
	logger.Debug("Cleaned up temp audio file", "path", path)
}

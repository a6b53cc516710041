package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/gt"
	"github.com/visagekit/blendstream/pkg/domain/interfaces"
	"github.com/visagekit/blendstream/pkg/domain/model"
)

// captureTransport records Sentry events instead of sending them anywhere.
type captureTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (tr *captureTransport) Configure(options sentry.ClientOptions) {}

func (tr *captureTransport) SendEvent(event *sentry.Event) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.events = append(tr.events, event)
}

func (tr *captureTransport) Flush(timeout time.Duration) bool { return true }

func (tr *captureTransport) FlushWithContext(ctx context.Context) bool { return true }

func (tr *captureTransport) Close() {}

func (tr *captureTransport) Events() []*sentry.Event {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]*sentry.Event(nil), tr.events...)
}

func setupSentry(t *testing.T) *captureTransport {
	t.Helper()

	tr := &captureTransport{}
	gt.NoError(t, sentry.Init(sentry.ClientOptions{
		Dsn:       "https://public@sentry.example.com/1",
		Transport: tr,
	}))
	return tr
}

func eventText(ev *sentry.Event) string {
	parts := []string{ev.Message}
	for _, ex := range ev.Exception {
		parts = append(parts, ex.Value)
	}
	return strings.Join(parts, " ")
}

func TestProcessAudio_MidStreamFailureReportsToSentry(t *testing.T) {
	tr := setupSentry(t)

	uc := &MockStreamUseCase{
		processFunc: func(ctx context.Context, job *model.StreamJob, sink interfaces.ChunkSink) error {
			if err := sink(ctx, &model.ChunkResult{
				ChunkID: 0,
				Result:  json.RawMessage(`{"frames":[]}`),
			}); err != nil {
				return err
			}
			return errors.New("engine connection lost")
		},
	}
	notifier := NewMockNotifier()
	server := newTestServer(t, uc, notifier)

	body, contentType := multipartBody(t, testWAV(t, 8000), nil)
	req := httptest.NewRequest(http.MethodPost, "/process-audio/", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	server.Handler.ServeHTTP(w, req)

	// The first chunk committed the status line, so the response stays 200 and
	// the stream just ends short.
	gt.Number(t, w.Code).Equal(http.StatusOK)
	<-notifier.notified

	events := tr.Events()
	gt.Number(t, len(events)).Equal(1)
	gt.True(t, strings.Contains(eventText(events[0]), "engine connection lost"))
}

func TestProcessAudio_PanicIsRecoveredAndReported(t *testing.T) {
	tr := setupSentry(t)

	uc := &MockStreamUseCase{
		processFunc: func(ctx context.Context, job *model.StreamJob, sink interfaces.ChunkSink) error {
			panic("blendshape buffer overrun")
		},
	}
	server := newTestServer(t, uc, NewMockNotifier())

	body, contentType := multipartBody(t, testWAV(t, 8000), nil)
	req := httptest.NewRequest(http.MethodPost, "/process-audio/", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	server.Handler.ServeHTTP(w, req)

	gt.Number(t, w.Code).Equal(http.StatusInternalServerError)
	gt.Value(t, w.Header().Get("Content-Type")).Equal("application/json")

	var resp map[string]string
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	gt.Value(t, resp["error"]).Equal("internal server error")

	events := tr.Events()
	gt.Number(t, len(events)).Equal(1)
	gt.True(t, strings.Contains(eventText(events[0]), "blendshape buffer overrun"))
}

func TestProcessAudio_FailureBeforeStreamingReportsToSentry(t *testing.T) {
	tr := setupSentry(t)

	uc := &MockStreamUseCase{
		processFunc: func(ctx context.Context, job *model.StreamJob, sink interfaces.ChunkSink) error {
			return errors.New("all engines unreachable")
		},
	}
	notifier := NewMockNotifier()
	server := newTestServer(t, uc, notifier)

	body, contentType := multipartBody(t, testWAV(t, 8000), nil)
	req := httptest.NewRequest(http.MethodPost, "/process-audio/", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	server.Handler.ServeHTTP(w, req)

	gt.Number(t, w.Code).Equal(http.StatusInternalServerError)
	<-notifier.notified

	events := tr.Events()
	gt.Number(t, len(events)).Equal(1)
	gt.True(t, strings.Contains(eventText(events[0]), "all engines unreachable"))
}

package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	controller "github.com/visagekit/blendstream/pkg/controller/http"
	"github.com/visagekit/blendstream/pkg/domain/interfaces"
	"github.com/visagekit/blendstream/pkg/domain/model"
)

// MockStreamUseCase is a mock implementation of StreamUseCase
type MockStreamUseCase struct {
	poolSize    int
	processFunc func(ctx context.Context, job *model.StreamJob, sink interfaces.ChunkSink) error

	mu   sync.Mutex
	jobs []*model.StreamJob
}

func (m *MockStreamUseCase) ProcessAudio(ctx context.Context, job *model.StreamJob, sink interfaces.ChunkSink) error {
	m.mu.Lock()
	m.jobs = append(m.jobs, job)
	m.mu.Unlock()

	if m.processFunc != nil {
		return m.processFunc(ctx, job, sink)
	}
	return nil
}

func (m *MockStreamUseCase) PoolSize() int {
	if m.poolSize == 0 {
		return 1
	}
	return m.poolSize
}

// MockNotifier records job failure notifications
type MockNotifier struct {
	mu       sync.Mutex
	failures []string
	notified chan struct{}
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{notified: make(chan struct{}, 8)}
}

func (m *MockNotifier) NotifyJobFailure(ctx context.Context, jobID string, err error) {
	m.mu.Lock()
	m.failures = append(m.failures, jobID)
	m.mu.Unlock()
	m.notified <- struct{}{}
}

// testWAV builds a minimal PCM16 mono WAV file with the given number of
// samples at 8 kHz.
func testWAV(t *testing.T, samples int) []byte {
	t.Helper()

	const (
		sampleRate = 8000
		blockAlign = 2
	)
	dataLen := samples * blockAlign

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(make([]byte, dataLen))

	return buf.Bytes()
}

// multipartBody builds a multipart request body with an audio_file part and
// optional extra form fields.
func multipartBody(t *testing.T, audio []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("audio_file", "sample-0.wav")
	gt.NoError(t, err)
	_, err = part.Write(audio)
	gt.NoError(t, err)

	for k, v := range fields {
		gt.NoError(t, mw.WriteField(k, v))
	}
	gt.NoError(t, mw.Close())

	return &body, mw.FormDataContentType()
}

func newTestServer(t *testing.T, uc interfaces.StreamUseCase, notifier interfaces.Notifier) *controller.Server {
	t.Helper()

	server, err := controller.NewServer(
		context.Background(),
		uc,
		controller.WithAddr("localhost:0"),
		controller.WithTmpDir(t.TempDir()),
		controller.WithNotifier(notifier),
	)
	gt.NoError(t, err)
	return server
}

func TestProcessAudio_StreamsNDJSON(t *testing.T) {
	uc := &MockStreamUseCase{
		processFunc: func(ctx context.Context, job *model.StreamJob, sink interfaces.ChunkSink) error {
			for i := 0; i < 3; i++ {
				if err := sink(ctx, &model.ChunkResult{
					ChunkID: i,
					Result:  json.RawMessage(`{"frames":[]}`),
				}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	server := newTestServer(t, uc, NewMockNotifier())

	body, contentType := multipartBody(t, testWAV(t, 8000), nil)
	req := httptest.NewRequest(http.MethodPost, "/process-audio/?fps=20", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	server.Handler.ServeHTTP(w, req)

	gt.Number(t, w.Code).Equal(http.StatusOK)
	gt.Value(t, w.Header().Get("Content-Type")).Equal("application/x-ndjson")

	var lines []model.ChunkResult
	scanner := bufio.NewScanner(w.Body)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var result model.ChunkResult
		gt.NoError(t, json.Unmarshal(scanner.Bytes(), &result))
		lines = append(lines, result)
	}
	gt.NoError(t, scanner.Err())

	gt.Number(t, len(lines)).Equal(3)
	for i, line := range lines {
		gt.Number(t, line.ChunkID).Equal(i)
	}

	// The job carried the parsed fps and measured duration.
	gt.Number(t, len(uc.jobs)).Equal(1)
	gt.Number(t, uc.jobs[0].FPS).Equal(20)
	gt.Value(t, uc.jobs[0].Duration.Seconds()).Equal(1.0)
}

func TestProcessAudio_AcceptsBase64Audio(t *testing.T) {
	uc := &MockStreamUseCase{}
	server := newTestServer(t, uc, NewMockNotifier())

	encoded := []byte(base64.StdEncoding.EncodeToString(testWAV(t, 4000)))
	body, contentType := multipartBody(t, encoded, nil)
	req := httptest.NewRequest(http.MethodPost, "/process-audio/", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	server.Handler.ServeHTTP(w, req)

	gt.Number(t, w.Code).Equal(http.StatusOK)
	gt.Number(t, len(uc.jobs)).Equal(1)
	gt.Value(t, uc.jobs[0].Duration.Seconds()).Equal(0.5)
}

func TestProcessAudio_ParsesEmotions(t *testing.T) {
	uc := &MockStreamUseCase{}
	server := newTestServer(t, uc, NewMockNotifier())

	body, contentType := multipartBody(t, testWAV(t, 8000), map[string]string{
		"emotions": `{"joy": 0.8, "sadness": 0.2}`,
	})
	req := httptest.NewRequest(http.MethodPost, "/process-audio/", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	server.Handler.ServeHTTP(w, req)

	gt.Number(t, w.Code).Equal(http.StatusOK)
	gt.Number(t, len(uc.jobs)).Equal(1)
	gt.Value(t, uc.jobs[0].Emotions).NotNil()
	gt.Value(t, uc.jobs[0].Emotions.Joy).Equal(0.8)
}

func TestProcessAudio_RejectsInvalidEmotions(t *testing.T) {
	tests := []struct {
		name     string
		emotions string
	}{
		{name: "Not JSON", emotions: "joy=1"},
		{name: "Unknown key", emotions: `{"rage": 0.5}`},
		{name: "Out of range", emotions: `{"joy": 2.0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := &MockStreamUseCase{}
			server := newTestServer(t, uc, NewMockNotifier())

			body, contentType := multipartBody(t, testWAV(t, 8000), map[string]string{
				"emotions": tt.emotions,
			})
			req := httptest.NewRequest(http.MethodPost, "/process-audio/", body)
			req.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()

			server.Handler.ServeHTTP(w, req)

			gt.Number(t, w.Code).Equal(http.StatusBadRequest)
			gt.Number(t, len(uc.jobs)).Equal(0)
		})
	}
}

func TestProcessAudio_RejectsInvalidFPS(t *testing.T) {
	uc := &MockStreamUseCase{}
	server := newTestServer(t, uc, NewMockNotifier())

	body, contentType := multipartBody(t, testWAV(t, 8000), nil)
	req := httptest.NewRequest(http.MethodPost, "/process-audio/?fps=fast", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	server.Handler.ServeHTTP(w, req)

	gt.Number(t, w.Code).Equal(http.StatusBadRequest)
}

func TestProcessAudio_RejectsGarbageAudio(t *testing.T) {
	uc := &MockStreamUseCase{}
	server := newTestServer(t, uc, NewMockNotifier())

	body, contentType := multipartBody(t, []byte("certainly not audio"), nil)
	req := httptest.NewRequest(http.MethodPost, "/process-audio/", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	server.Handler.ServeHTTP(w, req)

	gt.Number(t, w.Code).Equal(http.StatusBadRequest)
	gt.Number(t, len(uc.jobs)).Equal(0)
}

func TestProcessAudio_RequiresAudioFile(t *testing.T) {
	uc := &MockStreamUseCase{}
	server := newTestServer(t, uc, NewMockNotifier())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	gt.NoError(t, mw.WriteField("emotions", "{}"))
	gt.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/process-audio/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()

	server.Handler.ServeHTTP(w, req)

	gt.Number(t, w.Code).Equal(http.StatusBadRequest)
}

func TestProcessAudio_FailureBeforeStreamingReturns500AndNotifies(t *testing.T) {
	uc := &MockStreamUseCase{
		processFunc: func(ctx context.Context, job *model.StreamJob, sink interfaces.ChunkSink) error {
			return context.DeadlineExceeded
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
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	gt.Number(t, len(notifier.failures)).Equal(1)
}

func TestProcessAudio_CleansUpTempFile(t *testing.T) {
	var audioPath string
	uc := &MockStreamUseCase{
		processFunc: func(ctx context.Context, job *model.StreamJob, sink interfaces.ChunkSink) error {
			audioPath = job.AudioPath
			// The temp file must exist while the job runs.
			_, err := os.Stat(job.AudioPath)
			return err
		},
	}
	server := newTestServer(t, uc, NewMockNotifier())

	body, contentType := multipartBody(t, testWAV(t, 8000), nil)
	req := httptest.NewRequest(http.MethodPost, "/process-audio/", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	server.Handler.ServeHTTP(w, req)

	gt.Number(t, w.Code).Equal(http.StatusOK)
	gt.Value(t, audioPath).NotEqual("")
	_, err := os.Stat(audioPath)
	gt.True(t, os.IsNotExist(err))
}

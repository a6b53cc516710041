package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/visagekit/blendstream/pkg/domain/interfaces"
	"github.com/visagekit/blendstream/pkg/domain/model"
)

// config holds internal stream use case configuration
type config struct {
	chunkDuration time.Duration
	defaultFPS    int
	minFPS        int
	maxFPS        int
}

// Option is a functional option for stream use case configuration
type Option func(*config)

// WithChunkDuration sets the audio window length per engine call
func WithChunkDuration(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.chunkDuration = d
		}
	}
}

// WithFPSRange sets the default frame rate and its adaptive bounds
func WithFPSRange(def, min, max int) Option {
	return func(c *config) {
		if def > 0 {
			c.defaultFPS = def
		}
		if min > 0 {
			c.minFPS = min
		}
		if max > 0 {
			c.maxFPS = max
		}
	}
}

type streamUseCase struct {
	clients []interfaces.FaceEngine
	locks   []chan struct{} // one slot per client, serializes engine access
	cfg     config
}

// NewStream creates a new instance of StreamUseCase backed by the given
// engine clients. Chunks are assigned round-robin across clients; each client
// processes one chunk at a time.
func NewStream(clients []interfaces.FaceEngine, opts ...Option) (interfaces.StreamUseCase, error) {
	if len(clients) == 0 {
		return nil, goerr.New("at least one engine client is required")
	}

	cfg := config{
		chunkDuration: 300 * time.Millisecond,
		defaultFPS:    10,
		minFPS:        10,
		maxFPS:        30,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.minFPS > cfg.maxFPS {
		return nil, goerr.New("min FPS must not exceed max FPS")
	}

	locks := make([]chan struct{}, len(clients))
	for i := range locks {
		locks[i] = make(chan struct{}, 1)
	}

	return &streamUseCase{
		clients: clients,
		locks:   locks,
		cfg:     cfg,
	}, nil
}

// PoolSize returns the number of engine clients backing this use case
func (uc *streamUseCase) PoolSize() int {
	return len(uc.clients)
}

type chunkOutcome struct {
	frames json.RawMessage
	err    error
}

// ProcessAudio splits the job's audio into chunks, dispatches all chunks
// concurrently across the engine pool, and emits results to sink in strict
// chunk order as they complete.
func (uc *streamUseCase) ProcessAudio(ctx context.Context, job *model.StreamJob, sink interfaces.ChunkSink) error {
	logger := ctxlog.From(ctx)

	fps := job.FPS
	if fps <= 0 {
		fps = uc.cfg.defaultFPS
	}
	ctrl := newFPSController(fps, uc.cfg.minFPS, uc.cfg.maxFPS, len(uc.clients))

	// Every client renders from the same audio and emotion state.
	for _, client := range uc.clients {
		if err := client.SetAudio(ctx, job.AudioPath); err != nil {
			return goerr.Wrap(err, "failed to set audio on engine")
		}
		if job.Emotions != nil {
			if err := client.SetEmotions(ctx, job.Emotions); err != nil {
				return goerr.Wrap(err, "failed to set emotions on engine")
			}
		}
	}

	chunks := model.SplitChunks(job.Duration, uc.cfg.chunkDuration)
	logger.Info("Dispatching stream job",
		"job_id", job.ID,
		"duration", job.Duration,
		"chunks", len(chunks),
		"clients", len(uc.clients),
		"fps", ctrl.Current(),
	)

	outcomes := make([]chan chunkOutcome, len(chunks))
	for i := range outcomes {
		outcomes[i] = make(chan chunkOutcome, 1)
	}

	// Fire off all chunks immediately; per-client serialization happens on
	// the client's lock slot.
	for i, chunk := range chunks {
		clientIdx := i % len(uc.clients)
		go uc.generateChunk(ctx, clientIdx, chunk, ctrl, outcomes[i])
	}

	// Deliver strictly in chunk order.
	for i := range chunks {
		var out chunkOutcome
		select {
		case out = <-outcomes[i]:
		case <-ctx.Done():
			return goerr.Wrap(ctx.Err(), "stream job cancelled")
		}
		if out.err != nil {
			return goerr.Wrap(out.err, "chunk generation failed")
		}

		result := &model.ChunkResult{ChunkID: i, Result: out.frames}
		if err := sink(ctx, result); err != nil {
			return goerr.Wrap(err, "failed to deliver chunk result")
		}
	}

	return nil
}

// generateChunk renders one chunk on the given client and reports the outcome.
func (uc *streamUseCase) generateChunk(ctx context.Context, clientIdx int, chunk model.Chunk, ctrl *fpsController, out chan<- chunkOutcome) {
	select {
	case uc.locks[clientIdx] <- struct{}{}:
	case <-ctx.Done():
		out <- chunkOutcome{err: ctx.Err()}
		return
	}
	defer func() { <-uc.locks[clientIdx] }()

	logger := ctxlog.From(ctx)
	client := uc.clients[clientIdx]

	started := time.Now()
	frames, err := client.GenerateBlendshapes(ctx, chunk.Start.Seconds(), chunk.End.Seconds(), ctrl.Current())
	if err != nil {
		out <- chunkOutcome{err: err}
		return
	}

	elapsed := time.Since(started)
	adjusted := ctrl.Observe(chunk.End-chunk.Start, elapsed)
	logger.Debug("Chunk generated",
		"chunk", chunk.Index,
		"client_port", client.Port(),
		"elapsed", elapsed,
		"fps", adjusted,
	)

	out <- chunkOutcome{frames: frames}
}

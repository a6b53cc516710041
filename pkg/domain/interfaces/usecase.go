package interfaces

import (
	"context"

	"github.com/visagekit/blendstream/pkg/domain/model"
)

// ChunkSink receives chunk results in strict chunk order. Returning an error
// aborts the job.
type ChunkSink func(ctx context.Context, result *model.ChunkResult) error

// StreamUseCase defines the interface for audio-to-blendshape streaming
type StreamUseCase interface {
	// ProcessAudio splits the job's audio into chunks, generates blendshapes
	// for each chunk on the engine pool, and emits results to sink in chunk
	// order
	ProcessAudio(ctx context.Context, job *model.StreamJob, sink ChunkSink) error

	// PoolSize returns the number of engine clients backing this use case
	PoolSize() int
}

package model

import (
	"encoding/json"
	"time"
)

// StreamJob represents one audio-to-blendshape streaming request.
type StreamJob struct {
	ID          string          // Job ID (UUID), also used for the temp file name
	AudioPath   string          // Path to the decoded WAV on local disk
	Duration    time.Duration   // Audio duration
	FPS         int             // Requested frames per second (0 means default)
	Emotions    *EmotionWeights // Optional emotion weights
	SubmittedAt time.Time       // Time when the job was accepted
}

// Chunk is a half-open window [Start, End) of the job's audio assigned to one
// engine client.
type Chunk struct {
	Index int
	Start time.Duration
	End   time.Duration
}

// ChunkResult is one line of the NDJSON response stream. Result carries the
// engine's blendshape frames verbatim.
type ChunkResult struct {
	ChunkID int             `json:"chunk_id"`
	Result  json.RawMessage `json:"result"`
}

// SplitChunks divides the job duration into windows of chunkDur. A trailing
// sliver shorter than half a chunk is merged into the previous window, so the
// number of chunks is ceil(duration/chunkDur - 0.5).
func SplitChunks(duration, chunkDur time.Duration) []Chunk {
	if duration <= 0 || chunkDur <= 0 {
		return nil
	}

	// ceil(duration/chunkDur - 1/2), with at least one chunk so that short
	// clips still produce a frame.
	n := int((2*duration + chunkDur - 1) / (2 * chunkDur))
	if n < 1 {
		n = 1
	}

	chunks := make([]Chunk, 0, n)
	for i := 0; i < n; i++ {
		start := time.Duration(i) * chunkDur
		end := start + chunkDur
		if i == n-1 || end > duration {
			end = duration
		}
		chunks = append(chunks, Chunk{Index: i, Start: start, End: end})
	}
	return chunks
}

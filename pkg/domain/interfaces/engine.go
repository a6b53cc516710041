package interfaces

import (
	"context"
	"encoding/json"

	"github.com/visagekit/blendstream/pkg/domain/model"
)

// FaceEngine defines operations against one face-animation engine instance.
type FaceEngine interface {
	// SetAudio points the engine at a local audio file for subsequent
	// blendshape generation
	SetAudio(ctx context.Context, path string) error

	// SetEmotions applies emotion weights to subsequent generation
	SetEmotions(ctx context.Context, weights *model.EmotionWeights) error

	// GenerateBlendshapes renders frames for the [start, end) window of the
	// current audio at the given FPS and returns them verbatim
	GenerateBlendshapes(ctx context.Context, start, end float64, fps int) (json.RawMessage, error)

	// Port returns the engine instance port this client is bound to
	Port() int
}

package model

import (
	"bytes"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

// EmotionWeights holds the per-emotion intensity applied to every generated
// frame of a job. Each weight must be within [0, 1].
type EmotionWeights struct {
	Amazement   float64 `json:"amazement"`
	Anger       float64 `json:"anger"`
	Cheekiness  float64 `json:"cheekiness"`
	Disgust     float64 `json:"disgust"`
	Fear        float64 `json:"fear"`
	Grief       float64 `json:"grief"`
	Joy         float64 `json:"joy"`
	OutOfBreath float64 `json:"outofbreath"`
	Pain        float64 `json:"pain"`
	Sadness     float64 `json:"sadness"`
}

// ParseEmotionWeights parses a JSON object of emotion weights. Unknown keys
// and out-of-range values are rejected.
func ParseEmotionWeights(data []byte) (*EmotionWeights, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w EmotionWeights
	if err := dec.Decode(&w); err != nil {
		return nil, goerr.Wrap(err, "invalid emotions format")
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// Validate checks that every weight is within [0, 1].
func (w *EmotionWeights) Validate() error {
	for name, v := range w.Map() {
		if v < 0 || v > 1 {
			return goerr.New("emotion weight out of range [0,1]: " + name)
		}
	}
	return nil
}

// Map returns the weights keyed by their wire names.
func (w *EmotionWeights) Map() map[string]float64 {
	return map[string]float64{
		"amazement":   w.Amazement,
		"anger":       w.Anger,
		"cheekiness":  w.Cheekiness,
		"disgust":     w.Disgust,
		"fear":        w.Fear,
		"grief":       w.Grief,
		"joy":         w.Joy,
		"outofbreath": w.OutOfBreath,
		"pain":        w.Pain,
		"sadness":     w.Sadness,
	}
}

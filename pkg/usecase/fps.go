package usecase

import (
	"math"
	"sync"
	"time"
)

// fpsController adapts the generation frame rate to observed engine
// throughput. After each chunk it compares the chunk's play time against the
// wall time its generation took and moves the rate halfway toward a safe
// candidate, clamped to [min, max].
type fpsController struct {
	mu      sync.Mutex
	current int
	min     int
	max     int
	clients int
}

func newFPSController(initial, minFPS, maxFPS, clients int) *fpsController {
	if clients < 1 {
		clients = 1
	}
	c := &fpsController{
		min:     minFPS,
		max:     maxFPS,
		clients: clients,
	}
	c.current = c.clamp(initial)
	return c
}

func (c *fpsController) clamp(fps int) int {
	if fps < c.min {
		return c.min
	}
	if fps > c.max {
		return c.max
	}
	return fps
}

// Current returns the frame rate to use for the next chunk.
func (c *fpsController) Current() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Observe folds one chunk's generation time into the rate. With
// alpha = chunkDur/elapsed, the safe candidate is
// max(min, floor(clients*fps*alpha - 7)) and the next rate is
// min(max, (fps+safe)/2). Returns the updated rate.
func (c *fpsController) Observe(chunkDur, elapsed time.Duration) int {
	if elapsed <= 0 {
		return c.Current()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	alpha := chunkDur.Seconds() / elapsed.Seconds()
	safe := int(math.Floor(float64(c.clients)*float64(c.current)*alpha - 7))
	if safe < c.min {
		safe = c.min
	}

	next := (c.current + safe) / 2
	if next > c.max {
		next = c.max
	}
	c.current = next
	return c.current
}

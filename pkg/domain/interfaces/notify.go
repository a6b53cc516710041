package interfaces

import "context"

// Notifier sends operational notifications (e.g. job failures) to an
// external channel.
type Notifier interface {
	NotifyJobFailure(ctx context.Context, jobID string, err error)
}

package sweep

import "time"

// Point statuses reported to a Recorder.
const (
	StatusOK         = "ok"
	StatusFailed     = string(FailureFailed)
	StatusIncomplete = string(FailureIncomplete)
)

// Recorder observes sweep activity. Implementations must be safe for
// concurrent use by all workers.
type Recorder interface {
	HandleOpened()
	HandleClosed()
	WorkerRetired(reason string)
	RunFinished(elapsed time.Duration, err error)
	PointFinished(status string)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) HandleOpened()                    {}
func (NopRecorder) HandleClosed()                    {}
func (NopRecorder) WorkerRetired(string)             {}
func (NopRecorder) RunFinished(time.Duration, error) {}
func (NopRecorder) PointFinished(string)             {}

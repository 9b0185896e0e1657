package domain

import "time"

// Fetch states of one download attempt
const (
	FetchStateIdle        = "idle"
	FetchStateProbing     = "probing"
	FetchStateChecking    = "checking"
	FetchStateDownloading = "downloading"
	FetchStateAssembling  = "assembling"
	FetchStateComplete    = "complete"
	FetchStateCancelled   = "cancelled"
	FetchStateFailed      = "failed"
)

// DownloadSession is a point-in-time snapshot of the fetcher's session.
// It is never persisted.
type DownloadSession struct {
	ID           string
	ArtifactID   string
	State        string
	IsActive     bool
	Progress     float64
	LoadedChunks int
	TotalChunks  int
	LastError    string
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// Fraction returns loaded/total clamped to [0,1]
func Fraction(loaded, total int) float64 {
	if total <= 0 || loaded <= 0 {
		return 0
	}
	if loaded >= total {
		return 1
	}
	return float64(loaded) / float64(total)
}

// Callbacks are the optional hooks a caller attaches to a load. Progress is
// called with non-decreasing values; exactly one of Complete or Error is
// called per load.
type Callbacks struct {
	OnProgress func(fraction float64)
	OnComplete func(artifact []byte)
	OnError    func(err error)
	OnSuccess  func()
}

// Progress invokes OnProgress if set
func (c *Callbacks) Progress(fraction float64) {
	if c != nil && c.OnProgress != nil {
		c.OnProgress(fraction)
	}
}

// Complete invokes OnComplete if set
func (c *Callbacks) Complete(artifact []byte) {
	if c != nil && c.OnComplete != nil {
		c.OnComplete(artifact)
	}
}

// Error invokes OnError if set
func (c *Callbacks) Error(err error) {
	if c != nil && c.OnError != nil {
		c.OnError(err)
	}
}

// Success invokes OnSuccess if set
func (c *Callbacks) Success() {
	if c != nil && c.OnSuccess != nil {
		c.OnSuccess()
	}
}

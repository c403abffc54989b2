// Package model contains the upload item and subtitle segment types shared by
// the registry, the session controller, the worker and the archive.
package model

import (
	"time"
)

// Status describes where an upload item is in its transcription lifecycle.
type Status string

const (
	StatusNew        Status = "new"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Segment is one timed subtitle line. Start and End are offsets in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// UploadItem is one distinct uploaded content, keyed by its content hash.
type UploadItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	// Src is either a session-scoped blob: reference or a durable server URL.
	Src string `json:"src"`
	// LocalRef holds a blob: reference to local bytes when Src is durable.
	LocalRef     string       `json:"-"`
	Status       Status       `json:"status"`
	Segments     []Segment    `json:"segments"`
	SubtitleURL  string       `json:"vttUrl,omitempty"`
	Language     string       `json:"lang,omitempty"`
	ModelProfile ModelProfile `json:"modelSize,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Clone returns a deep copy so callers cannot mutate registry state.
func (i UploadItem) Clone() UploadItem {
	out := i
	if i.Segments != nil {
		out.Segments = make([]Segment, len(i.Segments))
		copy(out.Segments, i.Segments)
	}
	return out
}

// HasTranscript reports whether a completed transcription produced lines.
func (i UploadItem) HasTranscript() bool {
	return i.Status == StatusDone && len(i.Segments) > 0
}

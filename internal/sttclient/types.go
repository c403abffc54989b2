package sttclient

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dharsanguruparan/captiondesk/internal/model"
)

// ErrMalformedResponse is wrapped when a 2xx body fails validation.
var ErrMalformedResponse = errors.New("malformed response")

// StatusError is a non-2xx reply. Its text is shown to the user verbatim.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed (%d): %s", e.Op, e.Code, e.Body)
}

// Record is a prior result stored on the service for a content identifier.
type Record struct {
	MediaURL     string
	SubtitleURL  string
	Segments     []model.Segment
	Language     string
	ModelProfile model.ModelProfile
}

// Upload is the media payload submitted for transcription.
type Upload struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// Options are the transcription settings sent alongside an upload.
type Options struct {
	// Language is empty for auto-detect.
	Language     string
	ModelProfile model.ModelProfile
	// FileID lets the service associate results with the client's identifier.
	FileID string
}

// Result is a completed transcription.
type Result struct {
	Segments    []model.Segment
	SubtitleURL string
	// MediaURL is set when the service kept a durable copy of the upload.
	MediaURL string
	Cached   bool
}

type wireSegment struct {
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
	Text  string   `json:"text"`
}

// mediaResponse mirrors GET /media/{id}. Every field may be null.
type mediaResponse struct {
	VideoURL  *string       `json:"videoUrl"`
	VTTURL    *string       `json:"vttUrl"`
	Segments  []wireSegment `json:"segments"`
	Lang      *string       `json:"lang"`
	ModelSize *string       `json:"modelSize"`
}

// transcribeResponse mirrors POST /transcribe.
type transcribeResponse struct {
	VideoFilename string        `json:"videoFilename"`
	VideoURL      *string       `json:"videoUrl"`
	VTTURL        *string       `json:"vttUrl"`
	Segments      []wireSegment `json:"segments"`
	SRT           string        `json:"srt"`
	VTT           string        `json:"vtt"`
	Cache         bool          `json:"cache"`
}

func (m mediaResponse) record(base string) (Record, error) {
	segments, err := convertSegments(m.Segments)
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		MediaURL:    ResolveRef(base, deref(m.VideoURL)),
		SubtitleURL: ResolveRef(base, deref(m.VTTURL)),
		Segments:    segments,
		Language:    model.NormalizeLanguage(deref(m.Lang)),
	}
	if size := deref(m.ModelSize); size != "" {
		// Unknown sizes are dropped rather than failing the lookup.
		if profile, err := model.ParseModelProfile(size); err == nil {
			rec.ModelProfile = profile
		}
	}
	return rec, nil
}

func (t transcribeResponse) result(base string) (*Result, error) {
	segments, err := convertSegments(t.Segments)
	if err != nil {
		return nil, err
	}
	return &Result{
		Segments:    segments,
		SubtitleURL: ResolveRef(base, deref(t.VTTURL)),
		MediaURL:    ResolveRef(base, deref(t.VideoURL)),
		Cached:      t.Cache,
	}, nil
}

func convertSegments(in []wireSegment) ([]model.Segment, error) {
	out := make([]model.Segment, 0, len(in))
	for i, s := range in {
		if s.Start == nil || s.End == nil {
			return nil, fmt.Errorf("%w: segment %d is missing start or end", ErrMalformedResponse, i)
		}
		start, end := *s.Start, *s.End
		if start < 0 || end < start {
			return nil, fmt.Errorf("%w: segment %d has invalid range [%v, %v]", ErrMalformedResponse, i, start, end)
		}
		out = append(out, model.Segment{Start: start, End: end, Text: strings.TrimSpace(s.Text)})
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// Package subtitle renders segments as SubRip (.srt) and WebVTT (.vtt) text.
package subtitle

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dharsanguruparan/captiondesk/internal/model"
)

// Format names a subtitle file format.
type Format string

const (
	SRT Format = "srt"
	VTT Format = "vtt"
)

// ContentType returns the MIME type used when uploading the format.
func (f Format) ContentType() string {
	if f == VTT {
		return "text/vtt; charset=utf-8"
	}
	return "application/x-subrip; charset=utf-8"
}

// ParseFormat accepts "srt" or "vtt", with or without a leading dot.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "."))); f {
	case SRT, VTT:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported subtitle format %q", raw)
	}
}

// FormatForPath picks the format from a file extension.
func FormatForPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Render dispatches to FormatSRT or FormatVTT.
func Render(f Format, segments []model.Segment) (string, error) {
	switch f {
	case SRT:
		return FormatSRT(segments), nil
	case VTT:
		return FormatVTT(segments), nil
	default:
		return "", fmt.Errorf("unsupported subtitle format %q", f)
	}
}

// Timestamp formats seconds as HH:MM:SS,mmm (or HH:MM:SS.mmm for WebVTT).
// Milliseconds are truncated; negative or non-finite input renders as zero.
func Timestamp(seconds float64, vtt bool) string {
	seconds = math.Max(0, model.Finite(seconds))
	ms := int64(seconds * 1000)
	hh := ms / 3_600_000
	mm := (ms % 3_600_000) / 60_000
	ss := (ms % 60_000) / 1000
	mmm := ms % 1000
	sep := ","
	if vtt {
		sep = "."
	}
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", hh, mm, ss, sep, mmm)
}

// FormatSRT renders numbered SubRip cues.
func FormatSRT(segments []model.Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteByte('\n')
		writeCue(&b, seg, false)
	}
	return b.String()
}

// FormatVTT renders a WebVTT document.
func FormatVTT(segments []model.Segment) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, seg := range segments {
		writeCue(&b, seg, true)
	}
	return b.String()
}

func writeCue(b *strings.Builder, seg model.Segment, vtt bool) {
	b.WriteString(Timestamp(seg.Start, vtt))
	b.WriteString(" --> ")
	b.WriteString(Timestamp(seg.End, vtt))
	b.WriteByte('\n')
	b.WriteString(seg.Text)
	b.WriteString("\n\n")
}

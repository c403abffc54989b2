package s3storage

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/captiondesk/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		S3Endpoint:   "localhost:9000",
		S3AccessKey:  "minio",
		S3SecretKey:  "minio123",
		S3Region:     "us-east-1",
		ExportBucket: "captiondesk-subtitles",
	}
}

// With the region configured, presigning is computed locally and needs no
// running server.
func TestPresignSubtitleURL(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)

	link, err := s.PresignSubtitleURL(context.Background(), "transcripts/abc.vtt", 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	require.Equal(t, "http", u.Scheme)
	require.Equal(t, "localhost:9000", u.Host)
	require.Equal(t, "/captiondesk-subtitles/transcripts/abc.vtt", u.Path)
	require.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	require.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestNewRejectsInvalidEndpoint(t *testing.T) {
	cfg := testConfig()
	cfg.S3Endpoint = "http://localhost:9000"
	_, err := New(cfg)
	require.Error(t, err)
}

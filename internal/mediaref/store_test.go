package mediaref

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStoreCreateLookupRevoke(t *testing.T) {
	store := NewStore()
	src := BytesSource("clip.mp4", []byte("payload"))

	ref := store.Create(src)
	require.True(t, IsEphemeral(ref))
	require.Equal(t, 1, store.Len())

	got, err := store.Lookup(ref)
	require.NoError(t, err)
	require.Equal(t, "clip.mp4", got.Name())

	require.True(t, store.Revoke(ref))
	require.False(t, store.Revoke(ref))
	_, err = store.Lookup(ref)
	require.ErrorIs(t, err, ErrUnknownRef)
}

func TestStoreRefsAreUnique(t *testing.T) {
	store := NewStore()
	src := BytesSource("a", []byte("x"))
	require.NotEqual(t, store.Create(src), store.Create(src))
	store.RevokeAll()
	require.Zero(t, store.Len())
}

func TestIsEphemeral(t *testing.T) {
	require.True(t, IsEphemeral("blob:captiondesk/1"))
	require.False(t, IsEphemeral("http://api/uploads/abc.mp4"))
	require.False(t, IsEphemeral("/uploads/abc.mp4"))
}

func TestMaterializeKeepsFullStream(t *testing.T) {
	store := NewStore()
	data := strings.Repeat("0123456789", 200)
	ref := store.Create(BytesSource("clip.bin", []byte(data)))

	payload, err := store.Materialize(ref)
	require.NoError(t, err)
	defer payload.Body.Close()

	body, err := io.ReadAll(payload.Body)
	require.NoError(t, err)
	require.Equal(t, data, string(body))
	require.Equal(t, "clip.bin", payload.Name)
	require.Equal(t, int64(len(data)), payload.Size)
	require.Equal(t, "text/plain; charset=utf-8", payload.ContentType)
}

func TestMaterializeFallsBackToVideoType(t *testing.T) {
	store := NewStore()
	ref := store.Create(BytesSource("", []byte{0x00, 0x01, 0x02, 0xff}))

	payload, err := store.Materialize(ref)
	require.NoError(t, err)
	defer payload.Body.Close()
	require.Equal(t, "video/mp4", payload.ContentType)
	require.Equal(t, "video", payload.Name)
}

func TestMaterializeUnknownRef(t *testing.T) {
	_, err := NewStore().Materialize("blob:captiondesk/missing")
	require.ErrorIs(t, err, ErrUnknownRef)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "talk.mp4")
	require.NoError(t, os.WriteFile(path, []byte("media"), 0o644))

	src, err := FileSource(path)
	require.NoError(t, err)
	require.Equal(t, "talk.mp4", src.Name())
	require.Equal(t, int64(5), src.Size())

	rc, err := src.Open()
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "media", string(body))

	_, err = FileSource(filepath.Dir(path))
	require.Error(t, err)
	_, err = FileSource(filepath.Join(t.TempDir(), "missing.mp4"))
	require.Error(t, err)
}

func TestFileSourceRejectsModifiedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "talk.mp4")
	require.NoError(t, os.WriteFile(path, []byte("media"), 0o644))
	src, err := FileSource(path)
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	_, err = src.Open()
	require.ErrorIs(t, err, ErrSourceChanged)

	require.NoError(t, os.WriteFile(path, []byte("longer media"), 0o644))
	store := NewStore()
	_, err = store.Materialize(store.Create(src))
	require.ErrorIs(t, err, ErrSourceChanged)
}

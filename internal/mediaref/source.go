package mediaref

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// ErrSourceChanged is returned by Open when a file no longer has the size or
// modification time it had when it was picked. Its bytes would no longer
// match the content identifier computed from them.
var ErrSourceChanged = errors.New("media file changed since it was selected")

// Source is a re-openable byte source with a display name, such as a media
// file picked by the user.
type Source interface {
	Name() string
	Size() int64
	Open() (io.ReadCloser, error)
}

type fileSource struct {
	path    string
	size    int64
	modTime time.Time
}

// FileSource describes a regular file on local disk as it is right now. Open
// refuses to read it once it has been modified.
func FileSource(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat media file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("media path is a directory: %s", path)
	}
	return &fileSource{path: path, size: info.Size(), modTime: info.ModTime()}, nil
}

func (f *fileSource) Name() string { return filepath.Base(f.path) }

func (f *fileSource) Size() int64 { return f.size }

func (f *fileSource) Open() (io.ReadCloser, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.Size() != f.size || !info.ModTime().Equal(f.modTime) {
		file.Close()
		return nil, fmt.Errorf("%w: %s", ErrSourceChanged, f.path)
	}
	return file, nil
}

type bytesSource struct {
	name string
	data []byte
}

// BytesSource wraps an in-memory payload.
func BytesSource(name string, data []byte) Source {
	return &bytesSource{name: name, data: data}
}

func (b *bytesSource) Name() string { return b.name }

func (b *bytesSource) Size() int64 { return int64(len(b.data)) }

func (b *bytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

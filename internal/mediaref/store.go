// Package mediaref manages session-scoped media references. A reference such
// as "blob:captiondesk/<uuid>" points at local bytes for the lifetime of the
// process only; durable references are plain server URLs.
package mediaref

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Scheme prefixes every session-scoped reference.
const Scheme = "blob:"

// fallbackContentType is used when sniffing cannot identify the media.
const fallbackContentType = "video/mp4"

// ErrUnknownRef is returned for references that were revoked or never issued.
var ErrUnknownRef = errors.New("media reference revoked or unknown")

// IsEphemeral reports whether ref is a session-scoped reference.
func IsEphemeral(ref string) bool {
	return strings.HasPrefix(ref, Scheme)
}

// Store maps session references to their local sources.
type Store struct {
	mu      sync.Mutex
	prefix  string
	sources map[string]Source
}

// NewStore creates an empty reference store.
func NewStore() *Store {
	return &Store{
		prefix:  Scheme + "captiondesk/",
		sources: make(map[string]Source),
	}
}

// Create registers src and returns a new session reference for it.
func (s *Store) Create(src Source) string {
	ref := s.prefix + uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[ref] = src
	return ref
}

// Lookup returns the source behind ref.
func (s *Store) Lookup(ref string) (Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[ref]
	if !ok {
		return nil, ErrUnknownRef
	}
	return src, nil
}

// Revoke releases ref. It reports whether the reference was live.
func (s *Store) Revoke(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[ref]; !ok {
		return false
	}
	delete(s.sources, ref)
	return true
}

// RevokeAll releases every outstanding reference.
func (s *Store) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = make(map[string]Source)
}

// Len returns the number of live references.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

// Payload is an opened, uploadable view of a session reference.
type Payload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// Materialize opens the bytes behind ref for upload and sniffs their type.
func (s *Store) Materialize(ref string) (*Payload, error) {
	src, err := s.Lookup(ref)
	if err != nil {
		return nil, err
	}
	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	// Capture up to 512 bytes so http.DetectContentType can sniff the type,
	// then stitch them back in front of the remaining stream.
	sniff := make([]byte, 512)
	n, err := io.ReadFull(rc, sniff)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		rc.Close()
		return nil, err
	}
	sniff = sniff[:n]
	contentType := http.DetectContentType(sniff)
	if n == 0 || contentType == "application/octet-stream" {
		contentType = fallbackContentType
	}
	name := src.Name()
	if name == "" {
		name = "video"
	}
	return &Payload{
		Name:        name,
		ContentType: contentType,
		Size:        src.Size(),
		Body: struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(sniff), rc), rc},
	}, nil
}

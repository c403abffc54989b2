// Package registry is the in-memory collection of upload items for one
// session, keyed by content identifier and kept in first-seen order.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dharsanguruparan/captiondesk/internal/model"
)

var (
	// ErrNotFound is exported so callers elsewhere can compare errors using
	// errors.Is. It is returned when no item carries the requested identifier.
	ErrNotFound = errors.New("upload item not found")
	// ErrInvalidTransition is wrapped when a status change breaks the lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrSegmentOutOfRange is returned for an edit outside the segment list.
	ErrSegmentOutOfRange = errors.New("segment index out of range")
)

// Patch carries a partial update. Nil fields leave the stored value alone.
// Name and Size only apply when the item is created.
type Patch struct {
	Name         *string
	Size         *int64
	Src          *string
	LocalRef     *string
	Status       *model.Status
	Segments     *[]model.Segment
	SubtitleURL  *string
	Language     *string
	ModelProfile *model.ModelProfile
}

// Registry holds upload items behind a RWMutex. Readers (listing, lookups)
// take the shared read lock and can run side by side; every mutation takes
// the write lock. Items are stored by pointer but always handed out as deep
// copies, so a caller holding an UploadItem never observes a later change
// and can never change registry state without going through a method.
type Registry struct {
	mu    sync.RWMutex
	items map[string]*model.UploadItem
	order []string
	now   func() time.Time
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		items: make(map[string]*model.UploadItem),
		now:   time.Now,
	}
}

// Upsert inserts a new item or merges p into the existing one. The bool
// reports whether the item was created. A new item starts as StatusNew with
// an empty, non-nil segment slice; Name and Size are fixed at that point and
// ignored on later merges. UpdatedAt is refreshed on every call.
func (r *Registry) Upsert(id string, p Patch) (model.UploadItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now().UTC()
	item, ok := r.items[id]
	if !ok {
		item = &model.UploadItem{
			ID:        id,
			Status:    model.StatusNew,
			Segments:  []model.Segment{},
			CreatedAt: now,
		}
		if p.Name != nil {
			item.Name = *p.Name
		}
		if p.Size != nil {
			item.Size = *p.Size
		}
		r.items[id] = item
		r.order = append(r.order, id)
	}
	apply(item, p)
	item.UpdatedAt = now
	return item.Clone(), !ok
}

func apply(item *model.UploadItem, p Patch) {
	if p.Src != nil {
		item.Src = *p.Src
	}
	if p.LocalRef != nil {
		item.LocalRef = *p.LocalRef
	}
	if p.Status != nil {
		item.Status = *p.Status
	}
	if p.Segments != nil {
		item.Segments = append([]model.Segment{}, (*p.Segments)...)
	}
	if p.SubtitleURL != nil {
		item.SubtitleURL = *p.SubtitleURL
	}
	if p.Language != nil {
		item.Language = *p.Language
	}
	if p.ModelProfile != nil {
		item.ModelProfile = *p.ModelProfile
	}
}

// Get returns a copy of the item with the given identifier. Only the read
// lock is needed since nothing is modified.
func (r *Registry) Get(id string) (model.UploadItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok {
		return model.UploadItem{}, ErrNotFound
	}
	return item.Clone(), nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[id]
	return ok
}

// All returns copies of every item in insertion order. The order slice exists
// because ranging over a Go map yields keys in random order.
func (r *Registry) All() []model.UploadItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.UploadItem, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id].Clone())
	}
	return out
}

// Len returns the number of registered items.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Transition moves an item to status after validating the lifecycle edge.
// Moving to the current status is a no-op.
func (r *Registry) Transition(id string, status model.Status) (model.UploadItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return model.UploadItem{}, ErrNotFound
	}
	if item.Status == status {
		return item.Clone(), nil
	}
	if !isValidTransition(item.Status, status) {
		return item.Clone(), fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, item.Status, status)
	}
	item.Status = status
	item.UpdatedAt = r.now().UTC()
	return item.Clone(), nil
}

// ReplaceSegment swaps the segment at index for seg. The stored slice is
// replaced by a new one of the same length.
func (r *Registry) ReplaceSegment(id string, index int, seg model.Segment) (model.UploadItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return model.UploadItem{}, ErrNotFound
	}
	if index < 0 || index >= len(item.Segments) {
		return item.Clone(), fmt.Errorf("%w: %d (have %d)", ErrSegmentOutOfRange, index, len(item.Segments))
	}
	next := append([]model.Segment(nil), item.Segments...)
	next[index] = seg
	item.Segments = next
	item.UpdatedAt = r.now().UTC()
	return item.Clone(), nil
}

// isValidTransition enforces the upload item state machine edges.
func isValidTransition(from, to model.Status) bool {
	switch from {
	case model.StatusNew:
		return to == model.StatusProcessing
	case model.StatusProcessing:
		// Back to new only on a precondition failure before any upload.
		return to == model.StatusDone || to == model.StatusError || to == model.StatusNew
	case model.StatusError:
		return to == model.StatusProcessing
	case model.StatusDone:
		// A done item without lines may be transcribed again.
		return to == model.StatusProcessing
	default:
		return false
	}
}

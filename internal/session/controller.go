// Package session owns one user's working set: the upload registry, the
// active item, the transcription options and the loop selection. Every
// mutation of the registry goes through a Controller.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/dharsanguruparan/captiondesk/internal/hasher"
	"github.com/dharsanguruparan/captiondesk/internal/mediaref"
	"github.com/dharsanguruparan/captiondesk/internal/model"
	"github.com/dharsanguruparan/captiondesk/internal/playback"
	"github.com/dharsanguruparan/captiondesk/internal/registry"
	"github.com/dharsanguruparan/captiondesk/internal/sttclient"
)

var (
	// ErrNeedsLocalFile means the item has no usable local bytes to upload,
	// either because only the server has a copy or because the picked file
	// changed. Selecting the original file again fixes it.
	ErrNeedsLocalFile = errors.New("this item only exists on the server; select the original file again to generate subtitles")
	// ErrAlreadyProcessing is returned when the active item is mid-transcription.
	ErrAlreadyProcessing = errors.New("transcription already in progress for this item")
)

// Transcriber is the remote STT service as seen by the controller.
type Transcriber interface {
	Lookup(ctx context.Context, id string) (sttclient.Record, bool, error)
	Transcribe(ctx context.Context, up sttclient.Upload, opts sttclient.Options) (*sttclient.Result, error)
}

// Controller orchestrates file selection, transcription and editing.
type Controller struct {
	mu       sync.Mutex
	stt      Transcriber
	items    *registry.Registry
	refs     *mediaref.Store
	loop     playback.Looper
	log      *log.Helper
	activeID string
	language string
	profile  model.ModelProfile
	message  string
}

// New builds a Controller with an empty registry.
func New(stt Transcriber, logger log.Logger) (*Controller, error) {
	if stt == nil {
		return nil, errors.New("session: transcriber is required")
	}
	if logger == nil {
		logger = log.DefaultLogger
	}
	return &Controller{
		stt:     stt,
		items:   registry.New(),
		refs:    mediaref.NewStore(),
		log:     log.NewHelper(log.With(logger, "module", "session")),
		profile: model.DefaultModelProfile,
	}, nil
}

// SelectFile identifies src by content and makes it the active item. Known
// content is activated without a network call; otherwise the service is
// asked for a prior result before a new item is registered.
func (c *Controller) SelectFile(ctx context.Context, src mediaref.Source) (model.UploadItem, error) {
	c.setMessage("")
	id, err := hashSource(src)
	if err != nil {
		c.setMessage(err.Error())
		return model.UploadItem{}, fmt.Errorf("select file: %w", err)
	}

	c.mu.Lock()
	item, ok := c.activateExistingLocked(id, src)
	c.mu.Unlock()
	if ok {
		return item, nil
	}

	rec, found, err := c.stt.Lookup(ctx, id)
	if err != nil {
		c.setMessage(err.Error())
		c.log.WithContext(ctx).Warnf("lookup %s failed: %v", short(id), err)
		return model.UploadItem{}, fmt.Errorf("select file: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another selection of the same bytes may have landed during the lookup.
	if item, ok := c.activateExistingLocked(id, src); ok {
		return item, nil
	}
	name, size := src.Name(), src.Size()
	patch := registry.Patch{Name: &name, Size: &size}
	if found && rec.MediaURL != "" {
		status := model.StatusNew
		if len(rec.Segments) > 0 {
			status = model.StatusDone
		}
		segments := rec.Segments
		patch.Src = &rec.MediaURL
		patch.Status = &status
		patch.Segments = &segments
		patch.SubtitleURL = &rec.SubtitleURL
		patch.Language = &rec.Language
		patch.ModelProfile = &rec.ModelProfile
		c.log.WithContext(ctx).Infof("restored %s (%s) from server: status=%s segments=%d", short(id), name, status, len(segments))
	} else {
		ref := c.refs.Create(src)
		status := model.StatusNew
		patch.Src = &ref
		patch.Status = &status
		c.log.WithContext(ctx).Infof("registered %s (%s) for local preview", short(id), name)
	}
	item, _ = c.items.Upsert(id, patch)
	c.activateLocked(id)
	return item, nil
}

// activateExistingLocked activates id when it is already registered. An item
// still waiting for a transcript takes src as its local bytes, replacing any
// earlier copy; a server-only item gets them as LocalRef.
func (c *Controller) activateExistingLocked(id string, src mediaref.Source) (model.UploadItem, bool) {
	item, err := c.items.Get(id)
	if err != nil {
		return model.UploadItem{}, false
	}
	if !item.HasTranscript() && item.Status != model.StatusProcessing {
		ref := c.refs.Create(src)
		var (
			patch registry.Patch
			old   string
		)
		if mediaref.IsEphemeral(item.Src) {
			old, patch.Src = item.Src, &ref
		} else {
			old, patch.LocalRef = item.LocalRef, &ref
		}
		item, _ = c.items.Upsert(id, patch)
		if old != "" {
			c.refs.Revoke(old)
		}
	}
	c.activateLocked(id)
	return item, true
}

func (c *Controller) activateLocked(id string) {
	c.activeID = id
	c.loop.Clear()
}

// SelectItem activates an already registered item.
func (c *Controller) SelectItem(id string) (model.UploadItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, err := c.items.Get(id)
	if err != nil {
		return model.UploadItem{}, err
	}
	c.activateLocked(id)
	return item, nil
}

// Transcribe submits the active item with the current options. It returns
// immediately when there is no active item or the item already has a
// transcript. The result is applied to the item the call started with, even
// if another item has been activated since.
func (c *Controller) Transcribe(ctx context.Context) (model.UploadItem, error) {
	c.mu.Lock()
	c.message = ""
	id := c.activeID
	if id == "" {
		c.mu.Unlock()
		return model.UploadItem{}, nil
	}
	item, err := c.items.Get(id)
	if err != nil {
		c.mu.Unlock()
		return model.UploadItem{}, err
	}
	if item.HasTranscript() {
		c.mu.Unlock()
		return item, nil
	}
	if item.Status == model.StatusProcessing {
		c.mu.Unlock()
		return item, ErrAlreadyProcessing
	}
	opts := sttclient.Options{Language: c.language, ModelProfile: c.profile, FileID: id}
	if item, err = c.items.Transition(id, model.StatusProcessing); err != nil {
		c.mu.Unlock()
		return item, err
	}
	ref := item.Src
	if !mediaref.IsEphemeral(ref) {
		ref = item.LocalRef
	}
	if ref == "" {
		item = c.revertLocked(id, ErrNeedsLocalFile)
		c.mu.Unlock()
		return item, ErrNeedsLocalFile
	}
	c.mu.Unlock()

	payload, err := c.refs.Materialize(ref)
	if err != nil {
		// Revoked or modified local bytes cannot be uploaded under this id.
		if errors.Is(err, mediaref.ErrUnknownRef) || errors.Is(err, mediaref.ErrSourceChanged) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.log.WithContext(ctx).Warnf("local bytes for %s unavailable: %v", short(id), err)
			cause := fmt.Errorf("%w: %v", ErrNeedsLocalFile, err)
			return c.revertLocked(id, cause), cause
		}
		return c.fail(ctx, id, fmt.Errorf("read media: %w", err))
	}
	name := item.Name
	if name == "" {
		name = payload.Name
	}
	res, err := c.stt.Transcribe(ctx, sttclient.Upload{
		Name:        name,
		ContentType: payload.ContentType,
		Body:        payload.Body,
	}, opts)
	payload.Body.Close()
	if err != nil {
		return c.fail(ctx, id, err)
	}
	return c.complete(ctx, id, opts, res), nil
}

// revertLocked handles the precondition failure: back to new, not error.
func (c *Controller) revertLocked(id string, cause error) model.UploadItem {
	item, err := c.items.Transition(id, model.StatusNew)
	if err != nil {
		c.log.Errorf("revert %s: %v", short(id), err)
	}
	c.message = cause.Error()
	return item
}

func (c *Controller) fail(ctx context.Context, id string, cause error) (model.UploadItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, err := c.items.Transition(id, model.StatusError)
	if err != nil {
		c.log.WithContext(ctx).Errorf("mark %s failed: %v", short(id), err)
	}
	c.message = cause.Error()
	c.log.WithContext(ctx).Warnf("transcribe %s failed: %v", short(id), cause)
	return item, cause
}

func (c *Controller) complete(ctx context.Context, id string, opts sttclient.Options, res *sttclient.Result) model.UploadItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, err := c.items.Transition(id, model.StatusDone)
	if err != nil {
		c.log.WithContext(ctx).Errorf("mark %s done: %v", short(id), err)
	}
	segments := res.Segments
	if segments == nil {
		segments = []model.Segment{}
	}
	status := model.StatusDone
	patch := registry.Patch{
		Status:       &status,
		Segments:     &segments,
		SubtitleURL:  &res.SubtitleURL,
		Language:     &opts.Language,
		ModelProfile: &opts.ModelProfile,
	}
	if res.MediaURL != "" {
		// Promoted to a durable reference; the session bytes are no longer needed.
		none := ""
		patch.Src = &res.MediaURL
		patch.LocalRef = &none
	}
	item, _ := c.items.Upsert(id, patch)
	if res.MediaURL != "" {
		if mediaref.IsEphemeral(prev.Src) {
			c.refs.Revoke(prev.Src)
		}
		if prev.LocalRef != "" {
			c.refs.Revoke(prev.LocalRef)
		}
	}
	c.loop.Clear()
	c.log.WithContext(ctx).Infof("transcribed %s: %d segments (lang=%q model=%s)", short(id), len(segments), opts.Language, opts.ModelProfile)
	return item
}

// EditSegment replaces segment index of the active item. The stored segment
// keeps the values as entered; only a derived loop range is floored.
func (c *Controller) EditSegment(index int, next model.Segment) (model.UploadItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeID == "" {
		return model.UploadItem{}, nil
	}
	item, err := c.items.ReplaceSegment(c.activeID, index, next)
	if err != nil {
		return item, err
	}
	c.loop.Refresh(index, next)
	return item, nil
}

// ToggleRepeat loops segment index of the active item, or clears the loop
// when that segment is already looping. The bool reports an active loop.
func (c *Controller) ToggleRepeat(index int) (playback.Range, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeID == "" {
		return playback.Range{}, false, nil
	}
	item, err := c.items.Get(c.activeID)
	if err != nil {
		return playback.Range{}, false, err
	}
	if index < 0 || index >= len(item.Segments) {
		return playback.Range{}, false, fmt.Errorf("%w: %d", registry.ErrSegmentOutOfRange, index)
	}
	r, on := c.loop.Toggle(index, item.Segments[index])
	return r, on, nil
}

// Loop returns the active loop segment and range, if any.
func (c *Controller) Loop() (int, playback.Range, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loop.Selection()
}

// CheckPlayback reports where the player should seek for position.
func (c *Controller) CheckPlayback(position float64) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loop.Check(position)
}

// SetLanguage sets the language for the next transcription; "" or "auto"
// means auto-detect. Changing options clears the loop range.
func (c *Controller) SetLanguage(raw string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.language = model.NormalizeLanguage(raw)
	c.loop.ClearRange()
}

// SetModelProfile sets the model size for the next transcription.
func (c *Controller) SetModelProfile(raw string) error {
	profile, err := model.ParseModelProfile(raw)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profile = profile
	c.loop.ClearRange()
	return nil
}

// Options returns the current language and model profile.
func (c *Controller) Options() (string, model.ModelProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language, c.profile
}

// Active returns the active item.
func (c *Controller) Active() (model.UploadItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeID == "" {
		return model.UploadItem{}, false
	}
	item, err := c.items.Get(c.activeID)
	if err != nil {
		return model.UploadItem{}, false
	}
	return item, true
}

// Items lists every item in first-seen order.
func (c *Controller) Items() []model.UploadItem {
	return c.items.All()
}

// Has reports whether content id is registered.
func (c *Controller) Has(id string) bool {
	return c.items.Has(id)
}

// Len is the number of registered items.
func (c *Controller) Len() int {
	return c.items.Len()
}

// Message is the last user-visible error, or "".
func (c *Controller) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message
}

// Close releases every session media reference.
func (c *Controller) Close() {
	c.log.Debugf("releasing %d media references", c.refs.Len())
	c.refs.RevokeAll()
}

func (c *Controller) setMessage(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.message = msg
}

func hashSource(src mediaref.Source) (string, error) {
	if src == nil {
		return "", errors.New("no file selected")
	}
	rc, err := src.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", src.Name(), err)
	}
	defer rc.Close()
	return hasher.Sum(rc)
}

// short trims an identifier for log lines.
func short(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

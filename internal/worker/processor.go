package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/captiondesk/internal/archive"
	"github.com/dharsanguruparan/captiondesk/internal/mediaref"
	"github.com/dharsanguruparan/captiondesk/internal/model"
	"github.com/dharsanguruparan/captiondesk/internal/queue"
	"github.com/dharsanguruparan/captiondesk/internal/session"
)

// Processor is plugged into the asynq worker loop. Each task gets its own
// session controller; the transcriber and archiver are shared.
type Processor struct {
	stt      session.Transcriber
	archiver *archive.Archiver
	logger   log.Logger
	log      *log.Helper
	open     func(path string) (mediaref.Source, error)
}

// Outcome is the result of transcribing one file.
type Outcome struct {
	Item    model.UploadItem
	Receipt *archive.Receipt
}

// NewProcessor constructs a worker processor. archiver may be nil.
func NewProcessor(stt session.Transcriber, archiver *archive.Archiver, logger log.Logger) *Processor {
	if logger == nil {
		logger = log.DefaultLogger
	}
	return &Processor{
		stt:      stt,
		archiver: archiver,
		logger:   logger,
		log:      log.NewHelper(log.With(logger, "module", "worker")),
		open:     mediaref.FileSource,
	}
}

// Handler registers the transcribe job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TranscribeTask, p.handleTranscribe)
	return mux
}

func (p *Processor) handleTranscribe(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeTranscribe(task.Payload())
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	src, err := p.open(payload.Path)
	if err != nil {
		return fmt.Errorf("open %s: %v: %w", payload.Path, err, asynq.SkipRetry)
	}
	out, err := p.Run(ctx, src, payload.Language, payload.ModelProfile)
	if err != nil {
		p.log.WithContext(ctx).Errorf("transcribe %s failed: %v", payload.Path, err)
		return err
	}
	p.log.WithContext(ctx).Infof("transcribed %s as %s (%d segments)", payload.Path, out.Item.ID, len(out.Item.Segments))
	return nil
}

// Run transcribes src with a fresh controller and archives the finished item
// when an archiver is configured.
func (p *Processor) Run(ctx context.Context, src mediaref.Source, language string, profile model.ModelProfile) (*Outcome, error) {
	ctrl, err := session.New(p.stt, p.logger)
	if err != nil {
		return nil, err
	}
	defer ctrl.Close()

	ctrl.SetLanguage(language)
	if profile != "" {
		if err := ctrl.SetModelProfile(string(profile)); err != nil {
			return nil, err
		}
	}
	if _, err := ctrl.SelectFile(ctx, src); err != nil {
		return nil, err
	}
	item, err := ctrl.Transcribe(ctx)
	if errors.Is(err, session.ErrNeedsLocalFile) {
		// The server knows the media but has no lines for it. Selecting the
		// file again hands the local bytes to the item.
		if _, err = ctrl.SelectFile(ctx, src); err != nil {
			return nil, err
		}
		item, err = ctrl.Transcribe(ctx)
	}
	if err != nil {
		return nil, err
	}
	out := &Outcome{Item: item}
	if p.archiver.Enabled() {
		if out.Receipt, err = p.archiver.Archive(ctx, item); err != nil {
			return out, err
		}
	}
	return out, nil
}

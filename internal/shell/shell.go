// Package shell is a line-oriented front end over one session controller.
// Items and segments are numbered from 1 as printed by list and show.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dharsanguruparan/captiondesk/internal/archive"
	"github.com/dharsanguruparan/captiondesk/internal/hasher"
	"github.com/dharsanguruparan/captiondesk/internal/mediaref"
	"github.com/dharsanguruparan/captiondesk/internal/model"
	"github.com/dharsanguruparan/captiondesk/internal/session"
	"github.com/dharsanguruparan/captiondesk/internal/subtitle"
)

const prompt = "captiondesk> "

const help = `commands:
  open <path>              select a media file
  list                     list items
  use <n|id>               activate an item
  lang <code|auto>         set transcription language
  model <size>             set model size (tiny, base, small, medium, large-v3)
  transcribe               transcribe the active item
  show                     print segments of the active item
  edit <n> <start> <end>   change segment times (seconds)
  text <n> <words...>      change segment text
  repeat <n>               toggle looping segment n
  tick <seconds>           report where the player should seek
  export <path.srt|.vtt>   write subtitles to a file
  archive                  store the active transcript
  status                   show options and the last message
  quit                     leave the shell`

var errQuit = errors.New("quit")

// Shell binds a controller to an input and output stream.
type Shell struct {
	ctrl     *session.Controller
	archiver *archive.Archiver
	out      io.Writer
	open     func(path string) (mediaref.Source, error)
}

// New constructs a Shell. archiver may be nil.
func New(ctrl *session.Controller, archiver *archive.Archiver, out io.Writer) *Shell {
	return &Shell{ctrl: ctrl, archiver: archiver, out: out, open: mediaref.FileSource}
}

// Run reads commands from in until EOF, quit or ctx is cancelled. Command
// failures are printed and do not end the session. Reading happens on its own
// goroutine so a cancelled ctx ends Run even while waiting at the prompt; that
// goroutine stays parked in the blocked read until in returns.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	fmt.Fprint(s.out, prompt)
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			err := s.Exec(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintf(s.out, "error: %v\n", err)
			}
			fmt.Fprint(s.out, prompt)
		}
	}
}

// Exec runs a single command line.
func (s *Shell) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "help", "?":
		fmt.Fprintln(s.out, help)
		return nil
	case "quit", "exit":
		return errQuit
	case "open":
		return s.openFile(ctx, strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0])))
	case "list":
		return s.list()
	case "use":
		return s.use(args)
	case "lang":
		if len(args) != 1 {
			return errors.New("usage: lang <code|auto>")
		}
		s.ctrl.SetLanguage(args[0])
		return s.status()
	case "model":
		if len(args) != 1 {
			return errors.New("usage: model <size>")
		}
		if err := s.ctrl.SetModelProfile(args[0]); err != nil {
			return err
		}
		return s.status()
	case "transcribe":
		return s.transcribe(ctx)
	case "show":
		return s.show()
	case "edit":
		return s.editTimes(args)
	case "text":
		return s.editText(args)
	case "repeat":
		return s.repeat(args)
	case "tick":
		return s.tick(args)
	case "export":
		return s.export(args)
	case "archive":
		return s.archive(ctx)
	case "status":
		return s.status()
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func (s *Shell) openFile(ctx context.Context, path string) error {
	if path == "" {
		return errors.New("usage: open <path>")
	}
	src, err := s.open(path)
	if err != nil {
		return err
	}
	item, err := s.ctrl.SelectFile(ctx, src)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s  %s  %s  %d segments\n", shortID(item.ID), item.Name, item.Status, len(item.Segments))
	return nil
}

func (s *Shell) list() error {
	if s.ctrl.Len() == 0 {
		fmt.Fprintln(s.out, "no items")
		return nil
	}
	items := s.ctrl.Items()
	active, _ := s.ctrl.Active()
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	for i, item := range items {
		mark := " "
		if item.ID == active.ID {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s%d\t%s\t%s\t%s\t%d\n", mark, i+1, shortID(item.ID), item.Status, item.Name, len(item.Segments))
	}
	return tw.Flush()
}

func (s *Shell) use(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: use <n|id>")
	}
	items := s.ctrl.Items()
	target := ""
	if hasher.Valid(args[0]) {
		if !s.ctrl.Has(args[0]) {
			return fmt.Errorf("no item %q", args[0])
		}
		target = args[0]
	} else if n, err := strconv.Atoi(args[0]); err == nil && n >= 1 && n <= len(items) {
		target = items[n-1].ID
	} else {
		for _, item := range items {
			if strings.HasPrefix(item.ID, strings.ToLower(args[0])) {
				target = item.ID
				break
			}
		}
	}
	if target == "" {
		return fmt.Errorf("no item %q", args[0])
	}
	item, err := s.ctrl.SelectItem(target)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "active: %s  %s  %s\n", shortID(item.ID), item.Name, item.Status)
	return nil
}

func (s *Shell) transcribe(ctx context.Context) error {
	if _, ok := s.ctrl.Active(); !ok {
		return errors.New("no active item (open a file first)")
	}
	fmt.Fprintln(s.out, "transcribing...")
	item, err := s.ctrl.Transcribe(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s  %s  %d segments\n", shortID(item.ID), item.Status, len(item.Segments))
	return nil
}

func (s *Shell) show() error {
	item, ok := s.ctrl.Active()
	if !ok {
		return errors.New("no active item")
	}
	if len(item.Segments) == 0 {
		fmt.Fprintf(s.out, "%s has no segments (status %s)\n", item.Name, item.Status)
		return nil
	}
	loopIndex, _, looping := s.ctrl.Loop()
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	for i, seg := range item.Segments {
		mark := " "
		if looping && loopIndex == i {
			mark = "@"
		}
		fmt.Fprintf(tw, "%s%d\t%s\t%s\t%s\n", mark, i+1,
			subtitle.Timestamp(seg.Start, true), subtitle.Timestamp(seg.End, true), seg.Text)
	}
	return tw.Flush()
}

func (s *Shell) segmentAt(arg string) (int, model.Segment, error) {
	item, ok := s.ctrl.Active()
	if !ok {
		return 0, model.Segment{}, errors.New("no active item")
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(item.Segments) {
		return 0, model.Segment{}, fmt.Errorf("no segment %q", arg)
	}
	return n - 1, item.Segments[n-1], nil
}

func (s *Shell) editTimes(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: edit <n> <start> <end>")
	}
	index, seg, err := s.segmentAt(args[0])
	if err != nil {
		return err
	}
	seg.Start = model.CoerceSeconds(args[1])
	seg.End = model.CoerceSeconds(args[2])
	_, err = s.ctrl.EditSegment(index, seg)
	return err
}

func (s *Shell) editText(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: text <n> <words...>")
	}
	index, seg, err := s.segmentAt(args[0])
	if err != nil {
		return err
	}
	seg.Text = strings.Join(args[1:], " ")
	_, err = s.ctrl.EditSegment(index, seg)
	return err
}

func (s *Shell) repeat(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: repeat <n>")
	}
	index, _, err := s.segmentAt(args[0])
	if err != nil {
		return err
	}
	r, on, err := s.ctrl.ToggleRepeat(index)
	if err != nil {
		return err
	}
	if on {
		fmt.Fprintf(s.out, "looping %d: %.3f-%.3f\n", index+1, r.Start, r.End)
	} else {
		fmt.Fprintln(s.out, "loop off")
	}
	return nil
}

func (s *Shell) tick(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: tick <seconds>")
	}
	if target, seek := s.ctrl.CheckPlayback(model.CoerceSeconds(args[0])); seek {
		fmt.Fprintf(s.out, "seek %.3f\n", target)
	} else {
		fmt.Fprintln(s.out, "play")
	}
	return nil
}

func (s *Shell) export(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: export <path.srt|path.vtt>")
	}
	item, ok := s.ctrl.Active()
	if !ok {
		return errors.New("no active item")
	}
	f, err := subtitle.FormatForPath(args[0])
	if err != nil {
		return err
	}
	body, err := subtitle.Render(f, item.Segments)
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[0], []byte(body), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", args[0], err)
	}
	fmt.Fprintf(s.out, "wrote %d segments to %s\n", len(item.Segments), args[0])
	return nil
}

func (s *Shell) archive(ctx context.Context) error {
	if !s.archiver.Enabled() {
		return errors.New("archive is not configured (set CAPTIONDESK_DATABASE_URL or CAPTIONDESK_S3_ENDPOINT)")
	}
	item, ok := s.ctrl.Active()
	if !ok {
		return errors.New("no active item")
	}
	receipt, err := s.archiver.Archive(ctx, item)
	if err != nil {
		return err
	}
	if receipt.Reused {
		fmt.Fprintf(s.out, "%s already archived\n", shortID(receipt.ID))
	} else {
		fmt.Fprintf(s.out, "archived %s (saved=%t)\n", shortID(receipt.ID), receipt.Saved)
	}
	for f, link := range receipt.Exports {
		fmt.Fprintf(s.out, "  %s: %s\n", f, link)
	}
	return nil
}

func (s *Shell) status() error {
	lang, profile := s.ctrl.Options()
	if lang == "" {
		lang = "auto"
	}
	fmt.Fprintf(s.out, "language: %s  model: %s  items: %d\n", lang, profile, s.ctrl.Len())
	if item, ok := s.ctrl.Active(); ok {
		fmt.Fprintf(s.out, "active: %s  %s  %s\n", shortID(item.ID), item.Name, item.Status)
	}
	if msg := s.ctrl.Message(); msg != "" {
		fmt.Fprintf(s.out, "message: %s\n", msg)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

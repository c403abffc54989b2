package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/captiondesk/internal/bootstrap"
	"github.com/dharsanguruparan/captiondesk/internal/config"
	"github.com/dharsanguruparan/captiondesk/internal/mediaref"
	"github.com/dharsanguruparan/captiondesk/internal/model"
	"github.com/dharsanguruparan/captiondesk/internal/processing"
	"github.com/dharsanguruparan/captiondesk/internal/queue"
	"github.com/dharsanguruparan/captiondesk/internal/session"
	"github.com/dharsanguruparan/captiondesk/internal/shell"
	"github.com/dharsanguruparan/captiondesk/internal/subtitle"
	"github.com/dharsanguruparan/captiondesk/internal/worker"
)

var (
	envFiles []string
	apiBase  string
	logLevel string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "captiondesk: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "captiondesk",
		Short: "Subtitle workbench for a speech-to-text service",
		Long: `captiondesk identifies media files by content, reuses results the STT service already has,
transcribes new files, and lets you edit and loop subtitle segments before exporting them.`,
		SilenceUsage: true,
		Version:      bootstrap.Version,
	}
	cmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, ".env files to load before reading the environment")
	cmd.PersistentFlags().StringVar(&apiBase, "api", "", "STT service base URL (overrides CAPTIONDESK_API_BASE)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides CAPTIONDESK_LOG_LEVEL)")
	cmd.AddCommand(
		newPingCmd(),
		newTranscribeCmd(),
		newShellCmd(),
		newEnqueueCmd(),
	)
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if apiBase != "" {
		if cfg.ResolveBase == cfg.APIBase {
			cfg.ResolveBase = strings.TrimRight(apiBase, "/")
		}
		cfg.APIBase = strings.TrimRight(apiBase, "/")
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the STT service is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := bootstrap.Client(cfg, bootstrap.Logger(cfg, "captiondesk"))
			if err != nil {
				return err
			}
			if err := client.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ok\n", cfg.APIBase)
			return nil
		},
	}
}

func newTranscribeCmd() *cobra.Command {
	var (
		language string
		profile  string
		format   string
		outDir   string
		archive  bool
		jobs     int
	)
	cmd := &cobra.Command{
		Use:   "transcribe <file...>",
		Short: "Transcribe media files and write subtitles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f, err := subtitle.ParseFormat(format)
			if err != nil {
				return err
			}
			lang, prof, err := options(cfg, cmd, language, profile)
			if err != nil {
				return err
			}
			logger := bootstrap.Logger(cfg, "captiondesk")
			client, err := bootstrap.Client(cfg, logger)
			if err != nil {
				return err
			}
			proc := worker.NewProcessor(client, nil, logger)
			if archive {
				archiver, cleanup, err := bootstrap.Archiver(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer cleanup()
				proc = worker.NewProcessor(client, archiver, logger)
			}
			if jobs <= 0 {
				jobs = cfg.Workers
			}
			var failed int
			for _, res := range processing.New(proc, jobs).Run(ctx, args, lang, prof) {
				if res.Err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", res.Path, res.Err)
					continue
				}
				if err := writeSubtitles(cmd, f, outDir, res.Path, res.Outcome.Item.Segments); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&language, "lang", "l", "", "language code or auto (default from CAPTIONDESK_LANGUAGE)")
	cmd.Flags().StringVarP(&profile, "model", "m", "", "model size (default from CAPTIONDESK_MODEL)")
	cmd.Flags().StringVar(&format, "format", "srt", "subtitle format: srt or vtt")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory for subtitle files (stdout when empty)")
	cmd.Flags().BoolVar(&archive, "archive", false, "store results in the configured database and bucket")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "files transcribed in parallel (default CAPTIONDESK_WORKERS)")
	return cmd
}

// writeSubtitles prints segments to stdout, or to <outDir>/<name>.<format>.
func writeSubtitles(cmd *cobra.Command, f subtitle.Format, outDir, path string, segments []model.Segment) error {
	body, err := subtitle.Render(f, segments)
	if err != nil {
		return err
	}
	if outDir == "" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), body)
		return err
	}
	dest := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+"."+string(f))
	if err := os.WriteFile(dest, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s -> %s (%d segments)\n", path, dest, len(segments))
	return nil
}

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Open, transcribe, edit and loop subtitles interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := bootstrap.Logger(cfg, "captiondesk")
			client, err := bootstrap.Client(cfg, logger)
			if err != nil {
				return err
			}
			archiver, cleanup, err := bootstrap.Archiver(ctx, cfg, logger)
			if err != nil {
				log.NewHelper(logger).Warnf("archive disabled: %v", err)
				archiver = nil
			}
			defer cleanup()

			ctrl, err := session.New(client, logger)
			if err != nil {
				return err
			}
			defer ctrl.Close()
			ctrl.SetLanguage(cfg.Language)
			if err := ctrl.SetModelProfile(string(cfg.ModelProfile)); err != nil {
				return err
			}
			err = shell.New(ctrl, archiver, cmd.OutOrStdout()).Run(ctx, cmd.InOrStdin())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func newEnqueueCmd() *cobra.Command {
	var (
		language string
		profile  string
	)
	cmd := &cobra.Command{
		Use:   "enqueue <file...>",
		Short: "Queue media files for the batch worker",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			lang, prof, err := options(cfg, cmd, language, profile)
			if err != nil {
				return err
			}
			client := asynq.NewClient(bootstrap.RedisOpt(cfg))
			defer client.Close()
			for _, path := range args {
				abs, err := filepath.Abs(path)
				if err != nil {
					return err
				}
				if _, err := mediaref.FileSource(abs); err != nil {
					return err
				}
				id, err := queue.EnqueueTranscribe(cmd.Context(), client, queue.TranscribePayload{
					Path:         abs,
					Language:     lang,
					ModelProfile: prof,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, abs)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&language, "lang", "l", "", "language code or auto (default from CAPTIONDESK_LANGUAGE)")
	cmd.Flags().StringVarP(&profile, "model", "m", "", "model size (default from CAPTIONDESK_MODEL)")
	return cmd
}

// options merges command flags over configured defaults.
func options(cfg *config.Config, cmd *cobra.Command, language, profile string) (string, model.ModelProfile, error) {
	lang := cfg.Language
	if cmd.Flags().Changed("lang") {
		lang = model.NormalizeLanguage(language)
	}
	prof := cfg.ModelProfile
	if profile != "" {
		p, err := model.ParseModelProfile(profile)
		if err != nil {
			return "", "", err
		}
		prof = p
	}
	return lang, prof, nil
}

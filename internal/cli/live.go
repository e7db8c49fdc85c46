package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	pipeline "github.com/avrelja/sidecoach/core"
	"github.com/avrelja/sidecoach/core/analytics"
	"github.com/avrelja/sidecoach/core/answer"
	"github.com/avrelja/sidecoach/core/audio/miniaudio"
	"github.com/avrelja/sidecoach/core/audio/portaudio"
	"github.com/avrelja/sidecoach/core/conversation"
	"github.com/avrelja/sidecoach/core/intent"
	"github.com/avrelja/sidecoach/core/llms/openai"
	"github.com/avrelja/sidecoach/core/presentation"
	"github.com/avrelja/sidecoach/core/segmenter"
	"github.com/avrelja/sidecoach/core/speechtotext/deepgram"
	"github.com/avrelja/sidecoach/core/vision"
	"github.com/avrelja/sidecoach/core/vision/vlm"
	"github.com/avrelja/sidecoach/internal/ui"
)

var liveUI bool

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Capture audio and stream answer suggestions in real time",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLive(cmd.Context())
	},
}

func init() {
	liveCmd.Flags().BoolVar(&liveUI, "ui", false, "render the terminal dashboard instead of log output")
	rootCmd.AddCommand(liveCmd)
}

func runLive(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("no LLM API key configured, set LLM_API_KEY or llm.api_key")
	}

	source, err := newCaptureClient(cfg.Audio.Engine, cfg.Audio.SampleRate, cfg.Audio.FrameSize)
	if err != nil {
		return fmt.Errorf("failed to open audio capture: %w", err)
	}

	transcriber, err := deepgram.NewTranscriptionClient()
	if err != nil {
		return err
	}

	llm := openai.NewClient(cfg.LLM.APIKey,
		openai.WithBaseURL(cfg.LLM.BaseURL),
		openai.WithModel(cfg.LLM.Model),
	)

	recorder, err := analytics.NewRecorder(cfg.Session.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open session database: %w", err)
	}
	defer recorder.Close()

	opts := []pipeline.Option{
		pipeline.WithAudioSource(source),
		pipeline.WithTranscriber(transcriber),
		pipeline.WithSegmenterOptions(
			segmenter.WithSpeechThreshold(cfg.Audio.VADThreshold),
			segmenter.WithSilenceTimeout(cfg.Audio.SilenceTimeout()),
		),
		pipeline.WithIntentAnalyzer(intent.NewLLMAnalyzer(llm),
			intent.WithMinLength(cfg.Intent.MinLength),
			intent.WithMinConfidence(cfg.Intent.MinConfidence),
		),
		pipeline.WithAnswerGenerator(answer.NewLLMGenerator(llm,
			answer.WithMaxTokens(cfg.LLM.MaxTokens),
			answer.WithTemperature(cfg.LLM.Temperature),
		)),
		pipeline.WithStoreOptions(conversation.WithHistorySize(cfg.MaxConversationHistory)),
		pipeline.WithPresentation(presentation.WithAddr(cfg.Server.Addr())),
		pipeline.WithRecorder(recorder),
	}

	if cfg.Audio.CaptureSelf {
		selfSource, err := newCaptureClient(cfg.Audio.Engine, cfg.Audio.SampleRate, cfg.Audio.FrameSize)
		if err != nil {
			return fmt.Errorf("failed to open self audio capture: %w", err)
		}
		opts = append(opts, pipeline.WithSelfAudioSource(selfSource))
	}

	if cfg.Vision.Enabled && cfg.VLM.APIKey != "" {
		extractor := vlm.NewExtractor(cfg.VLM.APIKey,
			vlm.WithBaseURL(cfg.VLM.BaseURL),
			vlm.WithModel(cfg.VLM.Model),
		)
		opts = append(opts, pipeline.WithScreenWatcher(vision.NewCommandGrabber(), extractor,
			vision.WithInterval(cfg.Vision.CaptureInterval()),
			vision.WithDiffThreshold(cfg.Vision.DiffThreshold),
		))
	}

	p := pipeline.New(opts...)

	if liveUI {
		err = runWithUI(ctx, p)
	} else {
		err = p.Run(ctx)
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if endErr := recorder.End(); endErr != nil {
		slog.Warn("failed to finalize session", "error", endErr)
	}
	slog.Info("session recorded", "session_id", recorder.SessionID())
	return err
}

// runWithUI runs the pipeline in the background and hands the terminal to the
// dashboard; quitting the dashboard tears down the pipeline.
func runWithUI(ctx context.Context, p *pipeline.Pipeline) error {
	events := ui.Attach(p.Bus())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	finished := make(chan error, 1)
	go func() {
		finished <- p.Run(ctx)
	}()

	uiErr := ui.Run(ctx, events)
	cancel()

	select {
	case err := <-finished:
		if uiErr != nil && !errors.Is(uiErr, context.Canceled) {
			return uiErr
		}
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("pipeline did not shut down in time")
	}
}

func newCaptureClient(engine string, sampleRate, frameSize int) (pipeline.AudioSource, error) {
	switch engine {
	case "portaudio":
		return portaudio.NewClient(sampleRate, frameSize)
	case "miniaudio", "":
		return miniaudio.NewClient(sampleRate, frameSize)
	default:
		return nil, fmt.Errorf("unknown audio engine %q", engine)
	}
}

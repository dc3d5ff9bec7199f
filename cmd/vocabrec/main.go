package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/vocab-recognizer/internal/audio"
	"github.com/lexiqai/vocab-recognizer/internal/audio/portaudio"
	"github.com/lexiqai/vocab-recognizer/internal/cli"
	"github.com/lexiqai/vocab-recognizer/internal/config"
	"github.com/lexiqai/vocab-recognizer/internal/events"
	"github.com/lexiqai/vocab-recognizer/internal/observability"
	"github.com/lexiqai/vocab-recognizer/internal/session"
	"github.com/lexiqai/vocab-recognizer/internal/stt"
	"github.com/lexiqai/vocab-recognizer/internal/stt/deepgram"
	"github.com/lexiqai/vocab-recognizer/internal/stt/vosk"
)

const usage = `usage: vocabrec [command]

commands:
  listen          recognize speech from the microphone or AUDIO_INPUT_FILE (default)
  grammar         print the compiled grammar or bias list for VOCAB_PATH
  match <text>    show which vocabulary terms occur in text
  devices         list audio input devices
  models          list model directories under MODELS_DIR
`

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	command, args := "listen", os.Args[1:]
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "listen":
		err = runListen(cfg, logger)
	case "grammar":
		err = cli.Grammar(os.Stdout, cfg)
	case "match":
		if len(args) == 0 {
			err = errors.New("match needs the text to test")
			break
		}
		err = cli.Match(os.Stdout, cfg, strings.Join(args, " "))
	case "devices":
		err = runDevices(os.Stdout)
	case "models":
		err = cli.Models(os.Stdout, cfg)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		logger.Error().Err(err).Str("command", command).Msg("Command failed")
		os.Exit(1)
	}
}

func runListen(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode, err := cfg.Mode()
	if err != nil {
		return err
	}

	logger.Info().
		Str("vocabulary", cfg.VocabPath).
		Str("backend", cfg.DecoderBackend).
		Str("mode", string(mode)).
		Int("sample_rate", cfg.SampleRate).
		Msg("Vocabulary recognizer starting")

	sess, err := session.New(ctx, session.Options{
		VocabularyPath:    cfg.VocabPath,
		VocabularyOptions: cfg.VocabOptions(),
		ModelPath:         modelHandle(cfg),
		SampleRate:        cfg.SampleRate,
		FrameSize:         cfg.FrameSize,
		BufferSize:        cfg.AudioBufferSize,
		Device:            cfg.AudioDevice,
		Mode:              mode,
		Synthesizer:       cli.NewSynthesizer(cfg),
		AudioRetry:        cfg.RetryConfig(),
	}, decoderFactory(cfg, logger), audioOpener(cfg, logger), logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	// Ends the HTTP side once the session finishes
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	var hub *events.Hub
	if cfg.Port != "" {
		if cfg.EventsEnabled {
			hub = events.NewHub(logger)
		}
		server := newServer(cfg, sess, hub, logger)

		g.Go(func() error {
			logger.Info().Str("port", cfg.Port).Msg("Server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			if hub != nil {
				hub.Close()
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	out := cli.NewPrinter(os.Stdout)
	out.Banner(mode, len(sess.Vocabulary()))

	g.Go(func() error {
		defer cancel()
		return sess.Run(gctx, func(h session.Hypothesis) error {
			if hub != nil {
				hub.Publish(sess.ID(), h)
			}
			return out.Hypothesis(h)
		})
	})

	err = g.Wait()
	out.Stopped()
	return err
}

func modelHandle(cfg *config.Config) string {
	if cfg.DecoderBackend == config.BackendDeepgram && cfg.ModelPath == "" {
		return cfg.DeepgramModel
	}
	return cfg.ModelPath
}

func decoderFactory(cfg *config.Config, logger zerolog.Logger) stt.Factory {
	logger = observability.WithComponent(logger, "decoder")
	if cfg.DecoderBackend == config.BackendDeepgram {
		return deepgram.Factory{
			APIKey:                     cfg.DeepgramAPIKey,
			Language:                   cfg.DeepgramLanguage,
			Endpointing:                cfg.DeepgramEndpointing,
			CircuitBreakerMaxFailures:  cfg.CircuitBreakerMaxFailures,
			CircuitBreakerResetTimeout: cfg.CircuitBreakerResetDuration(),
			Logger:                     logger,
		}
	}
	return vosk.Factory{
		ModelsDir:      cfg.ModelsDir,
		ExpansionLimit: cfg.GrammarExpansionLimit,
		LogLevel:       cfg.VoskLogLevel,
		Logger:         logger,
	}
}

func audioOpener(cfg *config.Config, logger zerolog.Logger) audio.Opener {
	if cfg.AudioInputFile != "" {
		return audio.FileOpener(cfg.AudioInputFile)
	}
	return portaudio.Opener{Logger: observability.WithComponent(logger, "audio")}
}

func newServer(cfg *config.Config, sess *session.Session, hub *events.Hub, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"session": func(ctx context.Context) (bool, error) {
			if s := sess.State(); s == session.StateStopped {
				return false, fmt.Errorf("session %s", s)
			}
			return true, nil
		},
	}))

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}
	if hub != nil {
		mux.Handle("/events", hub)
		logger.Info().Msg("Hypothesis events enabled at /events")
	}

	// No WriteTimeout: /events connections are long-lived
	return &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}

func runDevices(w io.Writer) error {
	devices, err := portaudio.ListDevices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Fprintln(w, "no input devices found")
		return nil
	}
	for _, d := range devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %2d  %-40s  %d ch  %.0f Hz\n", marker, d.Index, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
	}
	return nil
}

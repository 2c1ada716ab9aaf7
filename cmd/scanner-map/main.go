package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	trengine "github.com/poisonednumber/scanner-map"
	"github.com/poisonednumber/scanner-map/internal/api"
	"github.com/poisonednumber/scanner-map/internal/config"
	"github.com/poisonednumber/scanner-map/internal/database"
	"github.com/poisonednumber/scanner-map/internal/discord"
	"github.com/poisonednumber/scanner-map/internal/extract"
	"github.com/poisonednumber/scanner-map/internal/ingest"
	"github.com/poisonednumber/scanner-map/internal/livefeed"
	"github.com/poisonednumber/scanner-map/internal/llm"
	"github.com/poisonednumber/scanner-map/internal/storage"
	"github.com/poisonednumber/scanner-map/internal/summarize"
	"github.com/poisonednumber/scanner-map/internal/transcribe"
)

// version, commit, and buildTime are injected at build time via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	var overrides config.Overrides
	var showVersion bool
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.DatabaseURL, "database-url", "", "PostgreSQL connection URL (overrides DATABASE_URL)")
	flag.StringVar(&overrides.AudioDir, "audio-dir", "", "Audio file directory (overrides AUDIO_DIR)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s (commit=%s, built=%s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	startTime := time.Now()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", buildTime).
		Str("log_level", level.String()).
		Msg("scanner-map starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.InitSchema(ctx, trengine.SchemaSQL); err != nil {
		log.Fatal().Err(err).Msg("schema initialization failed")
	}

	if n, err := db.CountAPIKeys(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to count api keys")
	} else if n == 0 {
		plaintext, err := generateAPIKey()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to generate first-boot api key")
		}
		if _, err := db.InsertAPIKey(ctx, plaintext); err != nil {
			log.Fatal().Err(err).Msg("failed to write first-boot api key")
		}
		log.Warn().Str("key", plaintext).Msg("no api keys found — generated one for the ingestion endpoint (save this, it will not be shown again)")
	}

	store, bgServices, err := storage.New(cfg.S3(), cfg.AudioDir, cfg.AudioRetainDays, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize audio storage")
	}
	for _, svc := range bgServices {
		svc.Start()
		defer svc.Stop()
	}
	log.Info().Str("type", store.Type()).Msg("audio storage initialized")

	// Transcription provider + worker pool (spec.md §4.2). TRANSCRIPTION_MODE=none
	// disables transcription entirely; calls still ingest, just never get a
	// filled-in Call.Transcription.
	var workerPool *transcribe.WorkerPool
	var uploaderTranscriber ingest.Transcriber
	if cfg.TranscriptionMode != "none" && cfg.TranscriptionMode != "" {
		transcribeLog := log.With().Str("component", "transcribe").Logger()
		provider, err := transcribe.NewProvider(cfg, transcribeLog)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize transcription provider")
		}
		workerPool = transcribe.NewWorkerPool(
			provider,
			cfg.MaxConcurrentTranscriptions,
			cfg.TranscribeQueueSize,
			cfg.RemoteTranscribeTimeout,
			cfg.PreprocessAudio,
			transcribeLog,
		)
		workerPool.Start()
		defer workerPool.Stop()
		defer provider.Close()
		uploaderTranscriber = workerPool
		log.Info().Str("mode", cfg.TranscriptionMode).Int("workers", cfg.MaxConcurrentTranscriptions).Msg("transcription enabled")
	} else {
		log.Info().Msg("transcription disabled (TRANSCRIPTION_MODE=none)")
	}

	uploadLog := log.With().Str("component", "uploader").Logger()
	uploader := ingest.NewUploader(db, store, uploaderTranscriber, uploadLog)

	// Address extractor + geocoder (spec.md §4.3). Optional: a misconfigured
	// LLM/geocoder provider disables extraction but never blocks ingestion.
	if len(cfg.MappedTalkGroupIDs()) > 0 {
		extractLog := log.With().Str("component", "extract").Logger()
		llmBaseURL := ""
		llmAPIKey := ""
		llmModel := cfg.OllamaModel
		if cfg.AIProvider == "openai" {
			llmBaseURL = ""
			llmAPIKey = cfg.OpenAIAPIKey
			llmModel = cfg.OpenAIModel
		} else {
			llmBaseURL = cfg.OllamaURL
		}
		llmClient, err := llm.New(cfg.AIProvider, llmModel, llmBaseURL, llmAPIKey)
		if err != nil {
			log.Error().Err(err).Msg("address extraction disabled: failed to initialize llm client")
		} else if geocoder, err := extract.NewGeocoder(cfg.GeocodeProvider, cfg.GoogleMapsAPIKey, cfg.LocationIQAPIKey); err != nil {
			log.Error().Err(err).Msg("address extraction disabled: failed to initialize geocoder")
		} else {
			extractor := extract.New(db, llmClient, geocoder, cfg.MappedTalkGroupIDs(), cfg.TargetCountySet(), cfg.GeocodingState, extractLog)
			uploader.SetPostTranscribe(extractor)
			log.Info().Str("ai_provider", cfg.AIProvider).Str("geocode_provider", cfg.GeocodeProvider).Msg("address extraction enabled")
		}
	}

	// Periodic Summariser & Ask-AI (spec.md §4.6) share one LLM client,
	// built independently of the address extractor's so either can be
	// misconfigured without disabling the other.
	var askAI discord.AskAI // left nil (untyped) unless the llm client below initializes
	var summaryLLM llm.Provider
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	if cfg.AIProvider == "openai" {
		summaryLLM, err = llm.New("openai", cfg.OpenAIModel, "", cfg.OpenAIAPIKey)
	} else {
		summaryLLM, err = llm.New("ollama", cfg.OllamaModel, cfg.OllamaURL, "")
	}
	if err != nil {
		log.Error().Err(err).Msg("summariser/ask-ai disabled: failed to initialize llm client")
		summaryLLM = nil
	} else {
		askAI = summarize.NewAskAI(db, summaryLLM, time.Duration(cfg.AskAILookbackHours)*time.Hour, loc, log.With().Str("component", "ask-ai").Logger())
	}

	// Discord Fan-out (spec.md §4.4). Optional: a missing/invalid bot token
	// disables the coalescer entirely, ingestion still works.
	var bot *discord.Bot
	if cfg.DiscordToken != "" {
		discordLog := log.With().Str("component", "discord").Logger()
		bot, err = discord.New(discord.Config{
			Token:        cfg.DiscordToken,
			GuildID:      cfg.DiscordGuildID,
			PublicDomain: cfg.PublicDomain,
		}, askAI, discordLog)
		if err != nil {
			log.Error().Err(err).Msg("discord fan-out disabled: failed to connect bot")
			bot = nil
		} else {
			bot.Coalescer().WithCooldownAndBudget(cfg.CoalesceCooldown, cfg.CoalesceBodyBudget)
			uploader.SetFanOut(&discordFanOut{bot: bot, store: store, db: db, log: discordLog})
			go func() {
				if err := bot.Run(ctx); err != nil && err != context.Canceled {
					discordLog.Error().Err(err).Msg("discord bot stopped")
				}
			}()
			defer bot.Close()
			log.Info().Msg("discord fan-out enabled")
		}
	}

	// Periodic summariser (spec.md §4.6): runs regardless of Discord being
	// configured, the JSON snapshot is always available to the web client;
	// Discord posting is skipped when either the bot or SUMMARY_CHANNEL_ID
	// is absent.
	summaryStore := summarize.NewLatestStore()
	if summaryLLM != nil {
		var poster summarize.DiscordPoster
		if bot != nil && cfg.SummaryChannelID != "" {
			poster = bot
		}
		summaryLog := log.With().Str("component", "summariser").Logger()
		summarizer := summarize.New(db, summaryLLM, poster, cfg.SummaryChannelID, summaryStore,
			cfg.SummaryInterval, time.Duration(cfg.SummaryLookbackHours)*time.Hour, summaryLog)
		go summarizer.Run(ctx)
	}

	if !cfg.AuthEnabled {
		log.Warn().Msg("AUTH_ENABLED=false — API authentication is disabled, all endpoints are open")
	} else if cfg.AuthTokenGenerated {
		log.Info().Str("token", cfg.AuthToken).Msg("AUTH_TOKEN auto-generated (set AUTH_TOKEN in .env for a persistent token)")
	}

	var queueDepth func() int
	if workerPool != nil {
		queueDepth = workerPool.QueueDepth
	}

	// Live Fan-out (spec.md §4.5): two watermark-tracked polling loops
	// publish onto a shared bus; the SSE handler fans that out to browsers.
	liveBus := livefeed.NewBus()
	var classifier llm.Provider // left nil (untyped) unless the client initializes
	var classifierClient *llm.Client
	if cfg.AIProvider == "openai" {
		classifierClient, err = llm.New("openai", cfg.OpenAIModel, "", cfg.OpenAIAPIKey)
	} else {
		classifierClient, err = llm.New("ollama", cfg.OllamaModel, cfg.OllamaURL, "")
	}
	if err == nil {
		classifier = classifierClient
	}
	poller := livefeed.NewPoller(db, liveBus, classifier, cfg.LiveMapPollInterval, cfg.LiveFeedPollInterval, cfg.LivePlaceholderWait, cfg.LivePollBatchSize, log.With().Str("component", "livefeed").Logger())
	go poller.Run(ctx)

	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(api.ServerOptions{
		Config:    cfg,
		DB:        db,
		Store:     store,
		Uploader:  uploader,
		LiveFeed:  liveBus,
		Summary:   summaryStore,
		Stats:     &ingestStats{queueDepth: queueDepth, liveBus: liveBus},
		Version:   fmt.Sprintf("%s (commit=%s, built=%s)", version, commit, buildTime),
		StartTime: startTime,
		Log:       httpLog,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	log.Info().
		Str("listen", cfg.HTTPAddr).
		Str("version", version).
		Dur("startup_ms", time.Since(startTime)).
		Msg("scanner-map ready")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("scanner-map stopped")
}

// ingestStats adapts the worker pool's queue depth and the live-feed bus's
// subscriber count into metrics.IngestStats.
type ingestStats struct {
	queueDepth func() int
	liveBus    *livefeed.Bus
}

func (s *ingestStats) TranscriptionQueueDepth() int {
	if s.queueDepth == nil {
		return 0
	}
	return s.queueDepth()
}

func (s *ingestStats) SSESubscriberCount() int {
	if s.liveBus == nil {
		return 0
	}
	return s.liveBus.SubscriberCount()
}

func generateAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// discordFanOut adapts a *discord.Bot into ingest.FanOut: it resolves the
// talkgroup's county/alpha_tag and the call's audio URL, then hands the
// result to the bot's coalescer (spec.md §4.4).
type discordFanOut struct {
	bot   *discord.Bot
	store storage.AudioStore
	db    *database.DB
	log   zerolog.Logger
}

func (f *discordFanOut) Publish(ctx context.Context, call *database.Call) {
	tg, err := f.db.GetTalkgroup(ctx, call.TalkgroupID)
	if err != nil {
		f.log.Warn().Err(err).Str("talkgroup", call.TalkgroupID).Msg("discord fan-out: talkgroup lookup failed")
		tg = &database.Talkgroup{ID: call.TalkgroupID}
	} else if tg == nil {
		tg = &database.Talkgroup{ID: call.TalkgroupID}
	}

	audioURL, err := f.store.URL(ctx, call.AudioKey)
	if err != nil {
		f.log.Warn().Err(err).Str("audio_key", call.AudioKey).Msg("discord fan-out: audio url resolution failed")
	}

	f.bot.Coalescer().Publish(ctx, discord.CallInfo{
		CallID:        call.ID,
		TalkgroupID:   call.TalkgroupID,
		County:        tg.County,
		AlphaTag:      tg.AlphaTag,
		SourceUnitID:  call.SourceUnitID,
		SignalErrors:  call.SignalErrors,
		SignalSpikes:  call.SignalSpikes,
		Transcription: call.Transcription,
		AudioURL:      audioURL,
	})
}

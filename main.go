package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"

	"studychat/pkg/channels/web"
	"studychat/pkg/config"
	"studychat/pkg/handler"
	"studychat/pkg/llm"
	_ "studychat/pkg/llm/gemini" // register providers
	_ "studychat/pkg/llm/openailm"
	"studychat/pkg/monitor"
	"studychat/pkg/store"
	firestorestore "studychat/pkg/store/firestore"
	"studychat/pkg/store/memory"
	"studychat/pkg/study"
	"studychat/pkg/upload"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const version = "1.0.0"

func main() {
	// --- 0. Load configuration ---
	cfg, sysCfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v\n", err)
	}

	monitor.SetupSlog(sysCfg.LogLevel)
	monitor.PrintBanner(version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- 1. LLM clients ---
	router, err := llm.NewFromConfig(cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to init LLM clients: %v\n", err)
	}

	// --- 2. Conversation store ---
	limits := store.Limits{Title: sysCfg.TitleLimit, Preview: sysCfg.PreviewLimit}
	var st store.Store
	switch cfg.Store.Backend {
	case "firestore":
		fs, err := firestorestore.NewStore(ctx, cfg.Store.ProjectID, limits)
		if err != nil {
			log.Fatalf("Failed to init Firestore store: %v\n", err)
		}
		defer fs.Close()
		st = fs
	default:
		st = memory.NewStore(memory.Options{
			Limits:        limits,
			ChannelBuffer: sysCfg.InternalChannelBuffer,
		})
	}

	// --- 3. Media uploader ---
	var uploader upload.Uploader
	if cfg.Upload.Bucket != "" {
		gcs, err := upload.NewGCSUploader(ctx, cfg.Upload.Bucket)
		if err != nil {
			log.Fatalf("Failed to init uploader: %v\n", err)
		}
		defer gcs.Close()
		uploader = gcs
	}

	// --- 4. Reference material, pipeline and web channel ---
	refs := study.NewRefSource(cfg.Books, cfg.ReferenceText)

	var webCfg web.Config
	if len(cfg.Web) > 0 {
		if err := json.Unmarshal(cfg.Web, &webCfg); err != nil {
			log.Fatalf("Failed to parse web config: %v\n", err)
		}
	}

	channel := web.NewChannel(webCfg, st, router, refs)
	channel.SetPipeline(handler.NewPipeline(st, router, uploader, refs, channel, handler.Options{
		HistoryWindow: sysCfg.HistoryWindow,
		ImageMaxDim:   sysCfg.ImageMaxDim,
		ImageQuality:  sysCfg.ImageQuality,
		LLMTimeout:    time.Duration(sysCfg.LLMTimeoutMs) * time.Millisecond,
	}))

	if err := channel.Start(); err != nil {
		log.Fatalf("Failed to start web channel: %v\n", err)
	}

	// --- 5. Hot reload of reference material ---
	go watchConfig(ctx, refs)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("\nReceived shutdown signal. Stopping services...")

	if err := channel.Stop(); err != nil {
		log.Printf("Web channel stop: %v\n", err)
	}
	log.Println("Bye!")
}

// watchConfig reloads the reference book list and study text when
// config.json changes on disk. Provider and store wiring stays fixed
// for the process lifetime.
func watchConfig(ctx context.Context, refs *study.RefSource) {
	for range config.WatchConfig(ctx, "config.json") {
		cfg, err := config.LoadFile("config.json")
		if err != nil {
			log.Printf("Config reload skipped: %v\n", err)
			continue
		}
		refs.Set(cfg.Books, cfg.ReferenceText)
		log.Printf("Reference material reloaded: %d books\n", len(cfg.Books))
	}
}

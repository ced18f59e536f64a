package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/webdevsk/linkedin-feed-job-scraper/internal/browser"
	"github.com/webdevsk/linkedin-feed-job-scraper/internal/config"
	"github.com/webdevsk/linkedin-feed-job-scraper/internal/control"
	"github.com/webdevsk/linkedin-feed-job-scraper/internal/feed"
	"github.com/webdevsk/linkedin-feed-job-scraper/internal/linkedin"
	"github.com/webdevsk/linkedin-feed-job-scraper/internal/notify"
	"github.com/webdevsk/linkedin-feed-job-scraper/internal/session"
	"github.com/webdevsk/linkedin-feed-job-scraper/internal/store"
)

func main() {
	//load config
	cfg := config.Load()
	log.Printf("🔧 Config loaded. %d hiring patterns, control channel on %s", len(cfg.HiringPatterns), cfg.ControlAddr)

	//open storage
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		log.Fatalf("❌ Failed to create data directory: %v", err)
	}
	kv, err := store.OpenKV(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("❌ Failed to open storage: %v", err)
	}
	defer kv.Close()
	posts := store.NewPostStore(kv)

	//init telegram notifier (optional)
	var notifier *notify.Notifier
	if cfg.TelegramToken != "" {
		notifier, err = notify.NewNotifier(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Fatalf("❌ Failed to init Telegram notifier: %v", err)
		}
		log.Println("🤖 Telegram notifier initialized.")
	}

	//compile hiring classifier
	classifier, err := linkedin.NewClassifier(cfg.HiringPatterns, cfg.ExcludedSubjects)
	if err != nil {
		log.Fatalf("❌ Invalid hiring patterns: %v", err)
	}

	//start control channel
	server := control.NewServer(cfg.ControlAddr, posts)
	go func() {
		if err := server.ListenAndServe(); err != nil {
			log.Fatalf("❌ Control channel failed: %v", err)
		}
	}()

	//shutdown on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Println("🚀 Starting LinkedIn feed job scraper...")

	//init browser
	mgr, err := browser.NewManager(cfg.Headless)
	if err != nil {
		log.Fatalf("❌ Failed to init Playwright: %v", err)
	}
	defer mgr.Close()

	//load linkedin session cookies
	var cookies []playwright.OptionalCookie
	cookieFile := filepath.Join(cfg.CookiesPath, "cookies-linkedin.json")
	if loaded, err := browser.LoadCookies(cookieFile); err != nil {
		log.Printf("⚠️ Could not load linkedin cookies: %v. Continuing, you may need to log in manually.", err)
	} else {
		log.Printf("🍪 Loaded linkedin cookies (%d)", len(loaded))
		cookies = loaded
	}

	browserCtx, err := mgr.NewContext(cookies)
	if err != nil {
		log.Fatalf("❌ Failed to create browser context: %v", err)
	}
	page, err := browserCtx.NewPage()
	if err != nil {
		log.Fatalf("❌ Failed to create new page: %v", err)
	}
	log.Println("✅ Browser initialized successfully!")

	//wire the session controller
	pacing := browser.ScrollPacing{
		MinStepPx: cfg.ScrollMinStepPx,
		MaxStepPx: cfg.ScrollMaxStepPx,
		MinPause:  time.Duration(cfg.ScrollMinPauseMs) * time.Millisecond,
		MaxPause:  time.Duration(cfg.ScrollMaxPauseMs) * time.Millisecond,
	}
	ctrl := session.NewController(ctx, session.Deps{
		Messenger:  server,
		Posts:      posts,
		Classifier: classifier,
		Notifier:   notifier,
		StartObserver: func(onElement feed.OnElement) (func(), error) {
			obs, err := feed.StartObserver(page, onElement)
			if err != nil {
				return nil, err
			}
			return obs.Stop, nil
		},
		Advance: func() error { return browser.NaturalScrollStep(page, pacing) },
		Pause: func(ctx context.Context) {
			browser.RandomPause(ctx, pacing.MinPause, pacing.MaxPause)
		},
		MaxAccepted: cfg.MaxPostsPerSession,
	})

	//arm the readiness gate before navigating
	gate := feed.NewGate(page, ctrl.HandleReady, ctrl.HandleInvalidated)
	gate.Start()
	page.On("close", func(playwright.Page) {
		gate.Close()
	})

	//navigate to the feed
	log.Println("🏠 Navigating to LinkedIn feed...")
	if _, err := page.Goto(cfg.FeedURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(30000),
	}); err != nil {
		log.Fatalf("❌ Failed to load linkedin feed: %v", err)
	}

	//random warm up
	browser.RandomDelay(2000, 4000)
	if err := browser.MouseJiggle(page); err != nil {
		log.Printf("⚠️ Mouse warm-up failed: %v", err)
	}

	//run until terminated; sessions are driven over the control channel
	<-ctx.Done()
	log.Println("🏁 Shutting down...")
	gate.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ Control channel shutdown: %v", err)
	}
}

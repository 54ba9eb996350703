package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kalambet/applybot/internal/answerer"
	"github.com/kalambet/applybot/internal/answers"
	"github.com/kalambet/applybot/internal/config"
	"github.com/kalambet/applybot/internal/engine"
	"github.com/kalambet/applybot/internal/ledger"
	"github.com/kalambet/applybot/internal/llm"
	"github.com/kalambet/applybot/internal/orchestrator"
	"github.com/kalambet/applybot/internal/pacing"
	"github.com/kalambet/applybot/internal/prompt"
	"github.com/kalambet/applybot/internal/resume"
	"github.com/kalambet/applybot/internal/session"
	"github.com/kalambet/applybot/internal/site"
	"github.com/kalambet/applybot/internal/webdriver"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Log in, configure the search and apply to listings",
	Long: `Run one full session against the site.

The data folder must hold config.yaml (the search profile),
plain_text_resume.yaml (the structured resume) and the resume itself as
resume.txt, resume.md, resume.pdf or resume.html. Ledger, answers and the
invocation log are written to <data>/output.

Examples:
  applybot run --data ./data
  applybot run --data ./data --max-pages 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		maxPages, _ := cmd.Flags().GetInt("max-pages")

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runSession(ctx, maxPages)
	},
}

func init() {
	runCmd.Flags().Int("max-pages", -1, "stop after this many result pages (default: apply.max_pages, 0 = no limit)")
}

func runSession(ctx context.Context, maxPages int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg)
	if maxPages >= 0 {
		cfg.Apply.MaxPages = maxPages
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	paths, err := config.ValidateDataFolder(cfg.Data.Dir)
	if err != nil {
		return err
	}

	var (
		params  *config.SearchProfile
		profile *resume.Profile
		text    string
		g       errgroup.Group
	)
	g.Go(func() (err error) {
		params, err = config.LoadSearchProfile(paths.SearchProfile)
		return err
	})
	g.Go(func() (err error) {
		profile, err = resume.LoadProfile(paths.ResumeProfile)
		return err
	})
	g.Go(func() (err error) {
		text, err = resume.LoadText(paths.Resume)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	printStep("Loaded search profile for %s (%s)", params.Login, params.JobTitle)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	printStep("Connecting to %s model %s", cfg.LLM.Vendor, cfg.LLM.Model)
	backend, err := engine.New(ctx, engine.Config{
		Vendor:      cfg.LLM.Vendor,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return fmt.Errorf("creating model backend: %w", err)
	}
	if err := engine.EnsureReady(ctx, backend, cfg.LLM.Model, os.Stderr); err != nil {
		return err
	}

	var limiter *rate.Limiter
	if n := cfg.LLM.RequestsPerMinute; n > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}
	model := llm.New(backend, store, llm.Options{
		Model:        cfg.LLM.Model,
		FallbackWait: cfg.LLM.FallbackWait,
		Limiter:      limiter,
		Logger:       logger,
	})
	ans := answerer.New(model, logger)

	cache, err := answers.Open(ctx, store, logger)
	if err != nil {
		return err
	}
	ldg, err := ledger.Open(ctx, store,
		ledger.Identity{UserLogin: params.Login, JobTitle: params.JobTitle},
		ledger.Options{
			ApplyOnceAtCompany: cfg.Apply.OnceAtCompany,
			Blacklist:          params.JobBlacklist,
			Logger:             logger,
		})
	if err != nil {
		return err
	}

	sel, err := site.LoadSelectors(cfg.Site.Selectors)
	if err != nil {
		return err
	}

	printStep("Starting %s via %s", cfg.WebDriver.Browser, cfg.WebDriver.URL)
	browserSession, err := webdriver.NewSession(ctx, cfg.WebDriver.URL, webdriver.Options{
		Browser: cfg.WebDriver.Browser,
		Args:    []string{"--start-maximized"},
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("starting browser: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := browserSession.Close(closeCtx); err != nil {
			logger.Warn("closing browser session", "error", err)
		}
	}()

	prompter := prompt.Stdio()
	pacer := pacing.New(pacing.Options{Logger: logger, Prompter: prompter})
	browser := site.NewBrowser(browserSession, site.BrowserOptions{
		Selectors:  sel,
		BaseURL:    cfg.Site.BaseURL,
		Pacer:      pacer,
		ActionLow:  cfg.Pacing.ActionLow,
		ActionHigh: cfg.Pacing.ActionHigh,
		Logger:     logger,
	})

	responder := orchestrator.NewResponder(cache, ans, logger)
	loop := orchestrator.NewLoop(orchestrator.Deps{
		Pager:     site.NewPager(browser),
		Scraper:   site.NewScraper(browser),
		Tabs:      browser,
		Applier:   site.NewApplier(browser, responder),
		Responder: responder,
		Ledger:    ldg,
		Pacer:     pacer,
		Logger:    logger,
	}, orchestrator.Options{
		MaxPages:            cfg.Apply.MaxPages,
		MinimumPageDuration: time.Duration(cfg.Pacing.MinimumPageSeconds) * time.Second,
		PageBreakLow:        cfg.Pacing.PageBreakLow,
		PageBreakHigh:       cfg.Pacing.PageBreakHigh,
	})

	machine := session.New(session.Deps{
		Auth:   site.NewAuthenticator(browser, params.Login),
		Search: site.NewSearchConfigurator(browser, prompter, cfg.Prompt.ConfirmTimeout),
		Loop:   loop,
		Logger: logger,
	})

	err = drive(ctx, machine, params, profile, text, ans)
	printStats(loop.Stats())
	if err != nil {
		return err
	}
	printSuccess("Session finished")
	return nil
}

// drive walks the session through its states in order.
func drive(ctx context.Context, m *session.Machine, params *config.SearchProfile, profile *resume.Profile, text string, ans *answerer.Answerer) error {
	if err := m.BindParameters(params); err != nil {
		return err
	}
	if err := m.SetResumeProfile(profile, text); err != nil {
		return err
	}
	if err := m.BindAnswerer(ans); err != nil {
		return err
	}

	printStep("Logging in as %s", params.Login)
	if err := m.Login(ctx); err != nil {
		return err
	}
	printStep("Configuring search for %q", params.JobTitle)
	if err := m.ConfigureSearch(ctx); err != nil {
		return err
	}
	printStep("Applying")
	slog.Debug("session state", "state", fmt.Sprintf("%+v", m.State()))
	return m.StartApplying(ctx)
}

func printStats(s orchestrator.Stats) {
	printStatus("Pages", "%d", s.Pages)
	printStatus("Listings", "%d", s.Listings)
	printStatus("Applied", "%d", s.Applied)
	printStatus("Already applied", "%d", s.AlreadyApplied)
	printStatus("Blacklisted", "%d", s.Blacklisted)
	printStatus("Duplicates", "%d", s.Duplicates)
	printStatus("Failed", "%d", s.Failed)
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"meetme/internal/agenda"
	"meetme/internal/caldav"
	"meetme/internal/config"
	"meetme/internal/google"
	"meetme/internal/ics"
	"meetme/internal/models"
	"meetme/internal/planner"
	"meetme/internal/store"
	"meetme/internal/sweeper"
	"meetme/internal/timeparse"
	"meetme/internal/web"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "meetme",
		Usage: "Find a meeting time that fits everyone's calendar.",
		Commands: []*cli.Command{
			serveCommand(),
			authCommand(),
			freeCommand(),
			purgeCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web API and the expiry sweeper.",
		Action: func(c *cli.Context) error {
			cfg, err := config.NewConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := setupLogger(cfg.LogLevel)
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			if cfg.LogLevel != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}

			st, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			p := planner.New(logger, st)

			opts := web.Options{
				BaseURL:     cfg.HTTP.BaseURL,
				Location:    loc,
				SessionTTL:  cfg.Session.TTL,
				SessionSize: cfg.Session.Size,
			}
			if cfg.CalDAVEnabled() {
				client, err := caldav.NewClient(logger, cfg.CalDAV.URL, cfg.CalDAV.Username, cfg.CalDAV.Password, loc)
				if err != nil {
					return fmt.Errorf("failed to create caldav client: %w", err)
				}
				logger.Info("Using CalDAV calendars", "url", cfg.CalDAV.URL)
				opts.Providers = func(context.Context, *oauth2.Token) (planner.Provider, error) {
					return client, nil
				}
			} else {
				oauthCfg, err := google.OAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.RedirectURL())
				if err != nil {
					return fmt.Errorf("failed to get google oauth config: %w", err)
				}
				logger.Info("Using Google calendars", "redirect", oauthCfg.RedirectURL)
				opts.OAuth = oauthCfg
				opts.Providers = func(ctx context.Context, token *oauth2.Token) (planner.Provider, error) {
					if token == nil {
						return nil, web.ErrUnauthenticated
					}
					client, err := google.NewClient(ctx, logger, oauthCfg, token)
					if err != nil {
						return nil, err
					}
					return client, nil
				}
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sw := sweeper.New(logger, p, cfg.Purge.Cron, cfg.Purge.Retention, loc)
			go func() {
				if err := sw.Start(ctx); err != nil {
					logger.Error("Sweeper failed", "error", err)
				}
			}()

			return web.NewServer(logger, p, opts).Run(ctx, cfg.HTTP.Listen)
		},
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account to get an API token.",
		Action: func(c *cli.Context) error {
			logger := setupLogger("info")
			logger.Info("Starting Google authentication flow.")

			oauthCfg, err := google.OAuthConfig(os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"), google.OutOfBandRedirect)
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := oauthCfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := google.TokenFromWeb(c.Context, oauthCfg, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			fmt.Print("Enter a name for this account (e.g., 'personal', 'work'): ")
			accountName, _ := reader.ReadString('\n')
			accountName = strings.TrimSpace(accountName)
			tokenFile := google.TokenFile(accountName)

			if err := google.SaveToken(tokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", tokenFile)
			return nil
		},
	}
}

func freeCommand() *cli.Command {
	return &cli.Command{
		Name:  "free",
		Usage: "Print the free time in a date range.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "account", Usage: "Google account saved by 'auth'. Defaults to the only saved account."},
			&cli.BoolFlag{Name: "caldav", Usage: "Read calendars from the CalDAV server in CALDAV_URL."},
			&cli.StringSliceFlag{Name: "calendar", Usage: "Calendar ID (Google) or name (CalDAV). Defaults to the primary and selected calendars."},
			&cli.StringFlag{Name: "daterange", Usage: "Dates as MM/DD/YYYY - MM/DD/YYYY. Defaults to the next seven days."},
			&cli.StringFlag{Name: "begin", Value: "9am", Usage: "Start of the daily window."},
			&cli.StringFlag{Name: "end", Value: "5pm", Usage: "End of the daily window."},
			&cli.BoolFlag{Name: "busy", Usage: "Also print busy entries."},
			&cli.StringFlag{Name: "ics", Usage: "Write the free time as an iCalendar file to this path."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.NewConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := setupLogger(cfg.LogLevel)
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			w := timeparse.DefaultWindow(time.Now(), loc)
			if dr := c.String("daterange"); dr != "" {
				if w, err = timeparse.Window(dr, c.String("begin"), c.String("end"), loc); err != nil {
					return err
				}
			} else {
				if w.Begin, err = timeparse.Clock(c.String("begin")); err != nil {
					return err
				}
				if w.End, err = timeparse.Clock(c.String("end")); err != nil {
					return err
				}
			}

			provider, calendarIDs, err := cliProvider(c, cfg, logger, loc)
			if err != nil {
				return err
			}

			proposal, err := planner.New(logger, nil).Propose(c.Context, provider, calendarIDs, w)
			if err != nil {
				return fmt.Errorf("failed to compute free time: %w", err)
			}
			if c.Bool("busy") {
				for _, e := range proposal.Entries {
					fmt.Println(e.Text)
				}
			} else {
				for _, line := range proposal.Free.Lines() {
					fmt.Println(line)
				}
			}

			if path := c.String("ics"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", path, err)
				}
				defer f.Close()
				sched := &models.Schedule{ID: uuid.New(), Window: w, Free: proposal.Free, Participants: 1}
				if err := ics.Write(f, sched, time.Now()); err != nil {
					return err
				}
				logger.Info("Wrote iCalendar file", "file", path)
			}
			return nil
		},
	}
}

// cliProvider picks the calendar source and the calendars to read for the free command.
func cliProvider(c *cli.Context, cfg *config.Config, logger *slog.Logger, loc *time.Location) (planner.Provider, []string, error) {
	wanted := c.StringSlice("calendar")

	if c.Bool("caldav") {
		client, err := caldav.NewClient(logger, cfg.CalDAV.URL, cfg.CalDAV.Username, cfg.CalDAV.Password, loc)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create caldav client: %w", err)
		}
		var ids []string
		for _, name := range wanted {
			path, err := client.FindCalendar(c.Context, name)
			if err != nil {
				return nil, nil, err
			}
			ids = append(ids, path)
		}
		if len(ids) == 0 {
			if ids, err = defaultCalendars(c.Context, client); err != nil {
				return nil, nil, err
			}
		}
		return client, ids, nil
	}

	account := c.String("account")
	if account == "" {
		accounts, err := google.GetTokenAccounts(".")
		if err != nil {
			return nil, nil, fmt.Errorf("could not find any google accounts, did you run auth command? %w", err)
		}
		if len(accounts) != 1 {
			return nil, nil, fmt.Errorf("found %d google accounts, choose one with --account", len(accounts))
		}
		account = accounts[0]
	}
	client, err := google.NewClientForAccount(c.Context, logger, cfg.Google.ClientID, cfg.Google.ClientSecret, account)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create google client for account %s: %w", account, err)
	}
	if len(wanted) > 0 {
		return client, wanted, nil
	}
	ids, err := defaultCalendars(c.Context, client)
	if err != nil {
		return nil, nil, err
	}
	return client, ids, nil
}

func defaultCalendars(ctx context.Context, provider planner.Provider) ([]string, error) {
	calendars, err := provider.ListCalendars(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, cal := range calendars {
		if cal.Primary || cal.Selected {
			ids = append(ids, cal.ID)
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("no primary or selected calendar found, pass --calendar")
	}
	return ids, nil
}

func purgeCommand() *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Delete schedules whose dates have passed.",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "retention", Usage: "Keep schedules that ended less than this long ago. Defaults to SCHEDULE_RETENTION."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.NewConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := setupLogger(cfg.LogLevel)

			st, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			retention := cfg.Purge.Retention
			if c.IsSet("retention") {
				retention = c.Duration("retention")
			}
			n, err := planner.New(logger, st).Purge(c.Context, retention)
			if err != nil {
				return fmt.Errorf("purge failed: %w", err)
			}
			fmt.Printf("Deleted %d schedule(s) that ended before %s.\n", n, agenda.DateOf(time.Now().Add(-retention)))
			return nil
		},
	}
}

func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	db, err := store.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}
	cached, err := store.NewCached(db, cfg.Cache.SchedulesSize, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("Opened schedule store", "path", cfg.Database.Path, "cache", cfg.Cache.SchedulesSize)
	return cached, nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

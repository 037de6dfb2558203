package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/avelis/mailsheets/internal/archive"
	"github.com/avelis/mailsheets/internal/auth"
	"github.com/avelis/mailsheets/internal/config"
	"github.com/avelis/mailsheets/internal/logging"
	"github.com/avelis/mailsheets/internal/mailbox"
	"github.com/avelis/mailsheets/internal/retry"
	"github.com/avelis/mailsheets/internal/state"
	"github.com/avelis/mailsheets/internal/sync"
	"github.com/avelis/mailsheets/internal/tabular"
	"github.com/avelis/mailsheets/internal/theme"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", config.DefaultConfigPath(), "path to the config file")
		dryRun     = flag.Bool("dry-run", false, "report what would be written without appending, marking read, or persisting state")
		history    = flag.Int("history", 0, "print the last n archived runs and exit")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, theme.ErrorStyle.Render("config: "+err.Error()))
		return 1
	}

	logger, closeLog, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		fmt.Fprintln(os.Stderr, theme.ErrorStyle.Render("logging: "+err.Error()))
		return 1
	}
	defer closeLog()

	if *history > 0 {
		return printHistory(cfg, *history)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		fmt.Fprintln(os.Stderr, theme.ErrorStyle.Render("config: "+err.Error()))
		return 1
	}

	fmt.Println(theme.HeaderStyle.Render("mailsheets"))
	fmt.Println(featureLine("filtering", cfg.Filter.Enabled))
	fmt.Println(featureLine("retry", cfg.Retry.Enabled))
	fmt.Println(featureLine("mark as read", cfg.CanModifyMailbox()))
	if *dryRun {
		fmt.Println(theme.WarnStyle.Render("dry run: no remote writes"))
	}
	fmt.Println()

	ctx := context.Background()

	provider, err := auth.NewProvider(cfg.Auth.CredentialsFile, cfg.Auth.TokenFile, cfg.Auth.Scopes, logger)
	if err != nil {
		logger.Error("loading credentials failed", "error", err)
		fmt.Fprintln(os.Stderr, theme.ErrorStyle.Render("auth: "+err.Error()))
		return 1
	}
	client, err := provider.Client(ctx)
	if err != nil {
		logger.Error("authentication failed", "error", err)
		fmt.Fprintln(os.Stderr, theme.ErrorStyle.Render("auth: "+err.Error()))
		return 1
	}

	var mail mailbox.Store
	switch cfg.Mailbox.Source {
	case "imap":
		mail = mailbox.NewIMAPStore(
			cfg.Mailbox.IMAPHost, cfg.Mailbox.IMAPPort,
			cfg.Mailbox.IMAPUsername, cfg.Mailbox.IMAPPassword,
			cfg.Mailbox.IMAPTLS, logger)
	default:
		mail, err = mailbox.NewGmailStore(ctx, client, logger)
		if err != nil {
			logger.Error("creating gmail store failed", "error", err)
			fmt.Fprintln(os.Stderr, theme.ErrorStyle.Render("gmail: "+err.Error()))
			return 1
		}
	}

	sheet, err := tabular.NewSheetsStore(ctx, client, cfg.Sheets.SpreadsheetID, logger)
	if err != nil {
		logger.Error("creating sheets store failed", "error", err)
		fmt.Fprintln(os.Stderr, theme.ErrorStyle.Render("sheets: "+err.Error()))
		return 1
	}

	var rec sync.Recorder
	if cfg.ArchiveFile != "" {
		arc, err := archive.Open(cfg.ArchiveFile, logger)
		if err != nil {
			logger.Warn("opening run archive failed, continuing without it", "error", err)
		} else {
			defer arc.Close()
			rec = arc
		}
	}

	st := state.NewStore(cfg.StateFile, logger)
	exec := retry.New(cfg.Retry.MaxRetries, cfg.Retry.BaseDelay(), logger)
	runner := sync.New(mail, sheet, st, rec, exec, sync.Options{
		Query:         cfg.Mailbox.Query,
		MaxEmails:     cfg.Mailbox.MaxEmails,
		SheetName:     cfg.Sheets.SheetName,
		FilterEnabled: cfg.Filter.Enabled,
		Keywords:      cfg.Filter.Keywords,
		CanMarkRead:   cfg.CanModifyMailbox(),
		DryRun:        *dryRun,
	}, logger)

	stats := runner.Run(ctx)
	fmt.Println(renderSummary(stats))

	if stats.RowsAdded > 0 {
		return 0
	}
	return 1
}

// featureLine renders one enabled/disabled status line for the banner.
func featureLine(name string, on bool) string {
	if on {
		return theme.EnabledStyle.Render("  ● ") + name
	}
	return theme.DisabledStyle.Render("  ○ ") + name
}

// renderSummary renders the end-of-run statistics block.
func renderSummary(stats state.RunStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d\n", theme.LabelStyle.Render("emails processed"), stats.EmailsProcessed)
	fmt.Fprintf(&b, "%s %d\n", theme.LabelStyle.Render("emails filtered "), stats.EmailsFiltered)
	fmt.Fprintf(&b, "%s %d\n", theme.LabelStyle.Render("rows added      "), stats.RowsAdded)
	fmt.Fprintf(&b, "%s %d", theme.LabelStyle.Render("marked as read  "), stats.EmailsMarkedRead)
	out := theme.SummaryBoxStyle.Render(b.String())
	if stats.RowsAdded > 0 {
		return out + "\n" + theme.SuccessStyle.Render(fmt.Sprintf("added %d rows", stats.RowsAdded))
	}
	return out + "\n" + theme.WarnStyle.Render("nothing added this run")
}

// printHistory lists the most recent archived runs.
func printHistory(cfg *config.Config, n int) int {
	if cfg.ArchiveFile == "" {
		fmt.Fprintln(os.Stderr, theme.ErrorStyle.Render("no archive file configured"))
		return 1
	}
	logger, closeLog, err := logging.New("error", "")
	if err == nil {
		defer closeLog()
	}
	arc, err := archive.Open(cfg.ArchiveFile, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, theme.ErrorStyle.Render("archive: "+err.Error()))
		return 1
	}
	defer arc.Close()

	runs, err := arc.RecentRuns(context.Background(), n)
	if err != nil {
		fmt.Fprintln(os.Stderr, theme.ErrorStyle.Render("archive: "+err.Error()))
		return 1
	}
	if len(runs) == 0 {
		fmt.Println("no archived runs")
		return 0
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			theme.LabelStyle.Render(r.ID[:8]),
			fmt.Sprintf("processed %d, filtered %d, added %d, marked %d",
				r.EmailsProcessed, r.EmailsFiltered, r.RowsAdded, r.EmailsMarkedRead))
	}
	return 0
}

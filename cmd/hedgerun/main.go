package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/raykavin/hedgerun"
	"github.com/raykavin/hedgerun/internal/config"
	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/raykavin/hedgerun/pkg/exchange"
	"github.com/raykavin/hedgerun/pkg/exchange/oanda"
	"github.com/raykavin/hedgerun/pkg/logger"
	"github.com/raykavin/hedgerun/pkg/logger/zerolog"
	"github.com/raykavin/hedgerun/pkg/notification"
	"github.com/raykavin/hedgerun/pkg/storage"
	"github.com/spf13/cobra"
	"github.com/xhit/go-str2duration/v2"
)

const timeLayout = "2006-01-02 15:04:05"

// Command line flags
var (
	journalModel   string
	journalAccount string
	journalSince   string
	journalLimit   int
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "hedgerun",
		Short:   "Paired-account hedge and trend entry bot for OANDA",
		Version: "1.0.0",
	}

	rootCmd.AddCommand(buildRunCmd(), buildConfigsCmd(), buildJournalCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the hedge monitors and the entry loop",
		RunE:  runBot,
	}
}

func buildConfigsCmd() *cobra.Command {
	configsCmd := &cobra.Command{
		Use:   "configs",
		Short: "Manage monitor configurations",
	}

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import profiles, accounts and configurations from a seed file",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored configurations",
		RunE:  runList,
	}

	configsCmd.AddCommand(importCmd, listCmd)
	return configsCmd
}

func buildJournalCmd() *cobra.Command {
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Show broker requests sent by the bot",
		RunE:  runJournal,
	}

	journalCmd.Flags().StringVarP(&journalModel, "model", "m", "", "Model name")
	journalCmd.Flags().StringVarP(&journalAccount, "account", "a", "", "Account id")
	journalCmd.Flags().StringVarP(&journalSince, "since", "s", "", "Only requests newer than this (e.g. 12h, 2d)")
	journalCmd.Flags().IntVarP(&journalLimit, "limit", "l", 50, "Maximum number of rows")

	return journalCmd
}

func newLogger(appConfig *config.AppConfig) (logger.Logger, error) {
	return zerolog.New(zerolog.Options{
		Level:      appConfig.Log.Level,
		TimeLayout: timeLayout,
		Colored:    appConfig.Log.Colored,
		JSON:       appConfig.Log.JSON,
	})
}

func openStore() (*config.AppConfig, *storage.Store, error) {
	appConfig, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.FromFile(appConfig.StoragePath)
	if err != nil {
		return nil, nil, err
	}

	return appConfig, store, nil
}

func runBot(cmd *cobra.Command, _ []string) error {
	appConfig, err := config.Load()
	if err != nil {
		return err
	}

	log, err := newLogger(appConfig)
	if err != nil {
		return err
	}

	store, err := storage.FromFile(appConfig.StoragePath)
	if err != nil {
		return err
	}

	options := []hedgerun.Option{
		hedgerun.WithLogger(log),
		hedgerun.WithStorage(store),
	}
	options = append(options, exchangeOptions(appConfig, log)...)
	options = append(options, notifierOptions(appConfig)...)

	bot, err := hedgerun.New(appConfig.Settings, options...)
	if err != nil {
		_ = store.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return bot.Run(ctx)
}

// exchangeOptions registers one OANDA client per environment. In paper mode the
// orders go to an in-memory broker while prices still come from OANDA.
func exchangeOptions(appConfig *config.AppConfig, log logger.Logger) []hedgerun.Option {
	options := make([]hedgerun.Option, 0, 2)

	for _, environment := range []string{oanda.EnvironmentPractice, oanda.EnvironmentLive} {
		var exch core.Exchange = oanda.NewClient(appConfig.BaseURL(environment), log,
			oanda.WithTimeout(appConfig.CallTimeout))

		if appConfig.Paper {
			exch = exchange.NewPaperBroker(log, exchange.WithDataFeed(exch))
		}

		options = append(options, hedgerun.WithExchange(environment, exch))
	}

	return options
}

func notifierOptions(appConfig *config.AppConfig) []hedgerun.Option {
	var options []hedgerun.Option

	if appConfig.Mail.Enabled {
		options = append(options, hedgerun.WithNotifier(notification.NewMail(notification.MailParams{
			SMTPServerAddress: appConfig.Mail.Server,
			SMTPServerPort:    appConfig.Mail.Port,
			From:              appConfig.Mail.From,
			To:                appConfig.Mail.To,
			Password:          appConfig.Mail.Password,
			MinSeverity:       core.Severity(appConfig.Mail.MinSeverity),
		})))
	}

	if appConfig.Webhook.Enabled {
		options = append(options, hedgerun.WithNotifier(notification.NewWebhook(notification.WebhookParams{
			URL:      appConfig.Webhook.URL,
			Token:    appConfig.Webhook.Token,
			Username: appConfig.Username,
			Timeout:  appConfig.Webhook.Timeout,
		})))
	}

	return options
}

func runImport(_ *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	seed, err := config.LoadSeed(args[0])
	if err != nil {
		return err
	}

	imported, err := seed.Import(store)
	fmt.Printf("%d records imported from %s\n", imported, args[0])
	return err
}

func runList(cmd *cobra.Command, _ []string) error {
	appConfig, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	configs, err := store.Configs()
	if err != nil {
		return err
	}

	active := make(map[string]bool)
	if appConfig.Username != "" {
		profiles, err := store.ProfilesForUser(cmd.Context(), appConfig.Username)
		if err != nil {
			return err
		}
		resolved, err := store.ListActiveConfigs(cmd.Context(), profiles)
		if err != nil {
			return err
		}
		for _, cfg := range resolved {
			active[cfg.Name()] = cfg.Primary.HasToken() && cfg.Secondary.HasToken()
		}
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Profile", "Model", "Instrument", "Env", "Status", "Primary", "Secondary",
		"Loss", "Profit", "Mult.", "EMA", "Cron P.", "Cron S.", "Tokens"})

	for _, cfg := range configs {
		tokens := "-"
		if ok, found := active[cfg.Name()]; found {
			tokens = strconv.FormatBool(ok)
		}

		table.Append([]string{
			cfg.Profile,
			cfg.ModelName,
			cfg.Instrument,
			cfg.Environment,
			cfg.Status,
			cfg.Primary.ID,
			cfg.Secondary.ID,
			fmt.Sprintf("%.1f", cfg.LossTriggerPips),
			fmt.Sprintf("%.2f", cfg.ProfitTriggerPips),
			fmt.Sprintf("%.2f", cfg.HedgeMultiplier),
			fmt.Sprintf("%d/%d %s", cfg.EMAShortPeriod, cfg.EMALongPeriod, cfg.TrendTimeframe),
			cfg.CronPrimary,
			cfg.CronSecondary,
			tokens,
		})
	}

	table.Render()
	return nil
}

func runJournal(_ *cobra.Command, _ []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var filters []core.JournalFilter
	if journalModel != "" {
		filters = append(filters, core.WithModel(journalModel))
	}
	if journalAccount != "" {
		filters = append(filters, core.WithAccount(journalAccount))
	}
	if journalSince != "" {
		since, err := str2duration.ParseDuration(journalSince)
		if err != nil {
			return fmt.Errorf("invalid since: %w", err)
		}
		filters = append(filters, core.WithTimeAfterOrEqual(time.Now().Add(-since)))
	}

	entries, err := store.Entries(filters...)
	if err != nil {
		return err
	}
	if journalLimit > 0 && len(entries) > journalLimit {
		entries = entries[len(entries)-journalLimit:]
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Profile", "Model", "Account", "Kind", "Instrument", "Ref.", "Units",
		"Price", "Accepted", "Error"})

	for _, entry := range entries {
		table.Append([]string{
			entry.Time.Format(timeLayout),
			entry.Profile,
			entry.Model,
			entry.AccountID,
			string(entry.Kind),
			entry.Instrument,
			entry.Reference,
			strconv.FormatInt(entry.Units, 10),
			fmt.Sprintf("%.5f", entry.Price),
			strconv.FormatBool(entry.Accepted),
			entry.Error,
		})
	}

	table.SetFooter([]string{"", "", "", "", "", "", "", "", "", "TOTAL", strconv.Itoa(len(entries))})
	table.Render()
	return nil
}

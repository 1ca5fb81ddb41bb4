package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tempo-agent/tempo/internal/calendar"
	"github.com/tempo-agent/tempo/internal/config"
	"github.com/tempo-agent/tempo/internal/engine"
	"github.com/tempo-agent/tempo/internal/learner"
	"github.com/tempo-agent/tempo/internal/linkstore"
	"github.com/tempo-agent/tempo/internal/memstore"
	"github.com/tempo-agent/tempo/internal/notify"
)

var (
	// Global flags
	verbose bool
	output  string
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tempo",
	Short: "Calendar decision agent",
	Long: `tempo watches your calendar, scores what matters, and proposes
schedule changes: prep blocks before high-stakes meetings, buffers
after long runs, reschedules for collisions.

Nothing touches your calendar without approval unless you grant a
policy autonomy, and even then writes land only on the dedicated
actions calendar.

Core Commands:
  run          Execute one decision cycle
  daemon       Run cycles continuously
  status       Show pending actions and agent state
  confirm      Approve a proposed action
  reject       Decline a proposed action and cool its class down
  edit         Adjust a proposal's time window, then approve it
  rule         Manage natural-language scheduling rules
  policy       Manage standing policies
  outcome      Report how an event actually went
  cleanup      Archive stale actions and lapsed cooldowns`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		syncConfigFlagToEnv()
		setupLogging()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (json, table)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.tempo/config.yaml)")
}

func syncConfigFlagToEnv() {
	path := strings.TrimSpace(cfgFile)
	if path == "" {
		return
	}
	_ = os.Setenv("TEMPO_CONFIG", path)
}

func setupLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func jsonOutput() bool {
	return strings.EqualFold(output, "json")
}

// app bundles everything a command needs: config, both stores, and the
// engine wired over the guarded calendar.
type app struct {
	cfg    *config.Config
	links  *linkstore.Store
	mem    *memstore.Store
	engine *engine.Engine
	log    *slog.Logger
}

// openApp loads configuration and opens both stores. Callers must Close.
func openApp() (*app, error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, err
	}
	log := slog.Default()

	links, err := linkstore.Open(cfg.LinksDBPath(), log)
	if err != nil {
		return nil, err
	}
	mem, err := memstore.Open(cfg.MemoryDBPath(), log)
	if err != nil {
		links.Close()
		return nil, err
	}

	adapter, err := calendar.NewFileAdapter(cfg.CalendarFilePath())
	if err != nil {
		mem.Close()
		links.Close()
		return nil, err
	}

	var pref notify.Preference = notify.StaticPreference()
	if cfg.Features.AdaptiveNotifications {
		pref = learner.New(mem, log)
	}
	router := notify.NewRouter(buildChannels(cfg, log), cfg.DefaultChannel(), pref, log)

	eng := engine.New(cfg, calendar.NewGuarded(adapter, cfg.ActionsCalendarID),
		links, mem, router, log)
	return &app{cfg: cfg, links: links, mem: mem, engine: eng, log: log}, nil
}

func (a *app) Close() {
	a.mem.Close()
	a.links.Close()
}

// buildChannels instantiates the configured delivery channels. Unknown
// names are skipped with a warning; the system log channel is always
// available as a fallback.
func buildChannels(cfg *config.Config, log *slog.Logger) []notify.Channel {
	channels := []notify.Channel{notify.NewLogChannel(log)}
	for _, name := range cfg.NotificationChannels {
		if name == "system" {
			continue
		}
		log.Warn("unknown notification channel, skipping", "channel", name)
	}
	return channels
}

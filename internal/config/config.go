// Package config provides configuration management for tempo.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (TEMPO_*)
// 3. Project config (.tempo/config.yaml in cwd)
// 4. Home config (~/.tempo/config.yaml)
// 5. Defaults
//
// The loaded value is immutable for the duration of a cycle: the engine
// takes a Config by value at cycle start and no component reads ambient
// state mid-cycle.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tempo-agent/tempo/internal/types"
)

// Config holds all tempo configuration.
type Config struct {
	// MaxAutonomyLevel is "confirm" or "autonomous". Fail-closed
	// default: confirm.
	MaxAutonomyLevel string `yaml:"max_autonomy_level" json:"max_autonomy_level"`

	// DaemonEnabled is the global kill switch. A cycle started while
	// false exits immediately without any store mutation.
	DaemonEnabled bool `yaml:"daemon_enabled" json:"daemon_enabled"`

	// BaseDir is the tempo data directory (default: ~/.tempo).
	BaseDir string `yaml:"base_dir" json:"base_dir"`

	// ActionsCalendarID is the only calendar the engine may write to.
	ActionsCalendarID string `yaml:"actions_calendar_id" json:"actions_calendar_id"`

	// CalendarPath is the YAML calendar file the file backend reads and
	// writes (default: <base_dir>/calendar.yaml).
	CalendarPath string `yaml:"calendar_path" json:"calendar_path"`

	// ActionCleanupDays bounds the active working set: applied/canceled
	// actions older than this are archived, and rejection cooldowns
	// last this long.
	ActionCleanupDays int `yaml:"action_cleanup_days" json:"action_cleanup_days"`

	// MemoryDecayHalfLifeDays controls how quickly old outcomes lose
	// weight in scoring and learning.
	MemoryDecayHalfLifeDays int `yaml:"memory_decay_half_life_days" json:"memory_decay_half_life_days"`

	// MaxNudgesPerDay caps new proposals per day.
	MaxNudgesPerDay int `yaml:"max_nudges_per_day" json:"max_nudges_per_day"`

	// CycleIntervalMinutes is the daemon tick interval.
	CycleIntervalMinutes int `yaml:"cycle_interval_minutes" json:"cycle_interval_minutes"`

	// ProposalTTLHours is how long a proposed action waits for a
	// response before expiring.
	ProposalTTLHours int `yaml:"proposal_ttl_hours" json:"proposal_ttl_hours"`

	// LookaheadDays is the snapshot window.
	LookaheadDays int `yaml:"lookahead_days" json:"lookahead_days"`

	// QuietHours are windows during which proposals are computed and
	// queued but not delivered.
	QuietHours QuietHoursConfig `yaml:"quiet_hours" json:"quiet_hours"`

	// Planner settings.
	Planner PlannerConfig `yaml:"planner" json:"planner"`

	// Workday settings feed overload detection.
	Workday WorkdayConfig `yaml:"workday" json:"workday"`

	// Features gates optional decision sources.
	Features FeatureConfig `yaml:"features" json:"features"`

	// NotificationChannels lists delivery channels in preference order;
	// the first entry is the default.
	NotificationChannels []string `yaml:"notification_channels" json:"notification_channels"`
}

// QuietHoursConfig holds "HH:MM-HH:MM" windows; overnight windows
// (22:00-07:00) are supported.
type QuietHoursConfig struct {
	Weekdays string `yaml:"weekdays" json:"weekdays"`
	Weekends string `yaml:"weekends" json:"weekends"`
}

// PlannerConfig holds action-shaping parameters.
type PlannerConfig struct {
	// PrepScoreThreshold is the minimum event score that triggers a
	// prep proposal.
	PrepScoreThreshold float64 `yaml:"prep_score_threshold" json:"prep_score_threshold"`

	// DefaultPrepMinutes is used when no prep history exists.
	DefaultPrepMinutes int `yaml:"default_prep_minutes" json:"default_prep_minutes"`

	// BufferMinutes is the length of generated buffer blocks.
	BufferMinutes int `yaml:"buffer_minutes" json:"buffer_minutes"`

	// ResetBreakMinutes is the length of mid-run recovery breaks.
	ResetBreakMinutes int `yaml:"reset_break_minutes" json:"reset_break_minutes"`

	// BackToBackGapMinutes is the maximum gap that still counts as
	// back-to-back.
	BackToBackGapMinutes int `yaml:"back_to_back_gap_minutes" json:"back_to_back_gap_minutes"`
}

// WorkdayConfig bounds the working day for overload detection.
type WorkdayConfig struct {
	StartHour int `yaml:"start_hour" json:"start_hour"`
	EndHour   int `yaml:"end_hour" json:"end_hour"`

	// OverloadFraction of working minutes scheduled flags the day.
	OverloadFraction float64 `yaml:"overload_fraction" json:"overload_fraction"`
}

// FeatureConfig gates optional rule/policy sources. All default on; an
// explicit false in any config layer disables the feature.
type FeatureConfig struct {
	Rules                 bool `yaml:"rules" json:"rules"`
	Policies              bool `yaml:"policies" json:"policies"`
	Conflicts             bool `yaml:"conflicts" json:"conflicts"`
	AdaptiveNotifications bool `yaml:"adaptive_notifications" json:"adaptive_notifications"`

	// set tracks which fields the YAML layer explicitly provided, so an
	// explicit false survives the merge.
	set map[string]bool
}

// UnmarshalYAML tracks explicitly provided feature flags.
func (f *FeatureConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]bool
	if err := value.Decode(&raw); err != nil {
		return err
	}
	f.set = make(map[string]bool, len(raw))
	assign := func(key string, dst *bool) {
		if v, ok := raw[key]; ok {
			*dst = v
			f.set[key] = true
		}
	}
	assign("rules", &f.Rules)
	assign("policies", &f.Policies)
	assign("conflicts", &f.Conflicts)
	assign("adaptive_notifications", &f.AdaptiveNotifications)
	return nil
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		MaxAutonomyLevel:        string(types.AutonomyConfirm),
		DaemonEnabled:           false,
		BaseDir:                 filepath.Join(homeDir, ".tempo"),
		ActionCleanupDays:       30,
		MemoryDecayHalfLifeDays: 90,
		MaxNudgesPerDay:         12,
		CycleIntervalMinutes:    15,
		ProposalTTLHours:        24,
		LookaheadDays:           7,
		Planner: PlannerConfig{
			PrepScoreThreshold:   0.75,
			DefaultPrepMinutes:   30,
			BufferMinutes:        10,
			ResetBreakMinutes:    25,
			BackToBackGapMinutes: 10,
		},
		Workday: WorkdayConfig{
			StartHour:        9,
			EndHour:          18,
			OverloadFraction: 0.9,
		},
		Features: FeatureConfig{
			Rules:                 true,
			Policies:              true,
			Conflicts:             true,
			AdaptiveNotifications: true,
		},
		NotificationChannels: []string{"system"},
	}
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	homeConfig, _ := loadFromPath(homeConfigPath())
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	projectConfig, _ := loadFromPath(projectConfigPath())
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	cfg = applyEnv(cfg)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AutonomyLevel returns the parsed global autonomy level, failing closed
// to confirm.
func (c *Config) AutonomyLevel() types.AutonomyLevel {
	return types.ParseAutonomyLevel(c.MaxAutonomyLevel)
}

// LinksDBPath is the link graph store file.
func (c *Config) LinksDBPath() string {
	return filepath.Join(c.BaseDir, "links.db")
}

// MemoryDBPath is the memory store file.
func (c *Config) MemoryDBPath() string {
	return filepath.Join(c.BaseDir, "memory.db")
}

// CalendarFilePath is the file-backend calendar, defaulting into BaseDir.
func (c *Config) CalendarFilePath() string {
	if c.CalendarPath != "" {
		return c.CalendarPath
	}
	return filepath.Join(c.BaseDir, "calendar.yaml")
}

// DefaultChannel returns the first configured notification channel.
func (c *Config) DefaultChannel() string {
	if len(c.NotificationChannels) > 0 {
		return c.NotificationChannels[0]
	}
	return "system"
}

// InQuietHours reports whether t falls inside the configured quiet window
// for its weekday class.
func (c *Config) InQuietHours(t time.Time) bool {
	window := c.QuietHours.Weekdays
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		window = c.QuietHours.Weekends
	}
	return inWindow(window, t)
}

// inWindow checks an "HH:MM-HH:MM" window, handling overnight spans.
func inWindow(window string, t time.Time) bool {
	start, end, ok := parseWindow(window)
	if !ok {
		return false
	}
	cur := t.Hour()*60 + t.Minute()
	if start > end { // overnight, e.g. 22:00-07:00
		return cur >= start || cur < end
	}
	return cur >= start && cur < end
}

func parseWindow(window string) (startMin, endMin int, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(window), "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, err1 := parseClock(parts[0])
	end, err2 := parseClock(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return start, end, true
}

func parseClock(s string) (int, error) {
	hm := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(hm) != 2 {
		return 0, fmt.Errorf("bad clock value %q", s)
	}
	h, err := strconv.Atoi(hm[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(hm[1])
	if err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value out of range %q", s)
	}
	return h*60 + m, nil
}

func (c *Config) validate() error {
	if c.ActionCleanupDays <= 0 {
		return fmt.Errorf("action_cleanup_days must be positive, got %d", c.ActionCleanupDays)
	}
	if c.MemoryDecayHalfLifeDays <= 0 {
		return fmt.Errorf("memory_decay_half_life_days must be positive, got %d", c.MemoryDecayHalfLifeDays)
	}
	if c.Workday.OverloadFraction <= 0 || c.Workday.OverloadFraction > 1 {
		return fmt.Errorf("workday.overload_fraction must be in (0,1], got %v", c.Workday.OverloadFraction)
	}
	for _, w := range []string{c.QuietHours.Weekdays, c.QuietHours.Weekends} {
		if w == "" {
			continue
		}
		if _, _, ok := parseWindow(w); !ok {
			return fmt.Errorf("bad quiet_hours window %q (want HH:MM-HH:MM)", w)
		}
	}
	return nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tempo", "config.yaml")
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("TEMPO_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".tempo", "config.yaml")
}

// loadFromPath loads config from a YAML file.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("TEMPO_MAX_AUTONOMY_LEVEL"); v != "" {
		cfg.MaxAutonomyLevel = v
	}
	if v := os.Getenv("TEMPO_BASE_DIR"); v != "" {
		cfg.BaseDir = v
	}
	if v := os.Getenv("TEMPO_ACTIONS_CALENDAR_ID"); v != "" {
		cfg.ActionsCalendarID = v
	}
	if v := os.Getenv("TEMPO_CALENDAR_PATH"); v != "" {
		cfg.CalendarPath = v
	}
	switch os.Getenv("TEMPO_DAEMON_ENABLED") {
	case "true", "1":
		cfg.DaemonEnabled = true
	case "false", "0":
		cfg.DaemonEnabled = false
	}
	if v := os.Getenv("TEMPO_MAX_NUDGES_PER_DAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxNudgesPerDay = n
		}
	}
	return cfg
}

// mergeStr overwrites dst with src when src is non-empty.
func mergeStr(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// mergeInt overwrites dst with src when src is non-zero.
func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

// mergeFloat overwrites dst with src when src is non-zero.
func mergeFloat(dst *float64, src float64) {
	if src != 0 {
		*dst = src
	}
}

// merge merges src into dst, with src values taking precedence.
func merge(dst, src *Config) *Config {
	mergeStr(&dst.MaxAutonomyLevel, src.MaxAutonomyLevel)
	mergeStr(&dst.BaseDir, src.BaseDir)
	mergeStr(&dst.ActionsCalendarID, src.ActionsCalendarID)
	mergeStr(&dst.CalendarPath, src.CalendarPath)
	if src.DaemonEnabled {
		dst.DaemonEnabled = true
	}
	mergeInt(&dst.ActionCleanupDays, src.ActionCleanupDays)
	mergeInt(&dst.MemoryDecayHalfLifeDays, src.MemoryDecayHalfLifeDays)
	mergeInt(&dst.MaxNudgesPerDay, src.MaxNudgesPerDay)
	mergeInt(&dst.CycleIntervalMinutes, src.CycleIntervalMinutes)
	mergeInt(&dst.ProposalTTLHours, src.ProposalTTLHours)
	mergeInt(&dst.LookaheadDays, src.LookaheadDays)
	mergeStr(&dst.QuietHours.Weekdays, src.QuietHours.Weekdays)
	mergeStr(&dst.QuietHours.Weekends, src.QuietHours.Weekends)
	mergePlanner(&dst.Planner, &src.Planner)
	mergeWorkday(&dst.Workday, &src.Workday)
	mergeFeatures(&dst.Features, &src.Features)
	if len(src.NotificationChannels) > 0 {
		dst.NotificationChannels = src.NotificationChannels
	}
	return dst
}

func mergePlanner(dst, src *PlannerConfig) {
	mergeFloat(&dst.PrepScoreThreshold, src.PrepScoreThreshold)
	mergeInt(&dst.DefaultPrepMinutes, src.DefaultPrepMinutes)
	mergeInt(&dst.BufferMinutes, src.BufferMinutes)
	mergeInt(&dst.ResetBreakMinutes, src.ResetBreakMinutes)
	mergeInt(&dst.BackToBackGapMinutes, src.BackToBackGapMinutes)
}

func mergeWorkday(dst, src *WorkdayConfig) {
	mergeInt(&dst.StartHour, src.StartHour)
	mergeInt(&dst.EndHour, src.EndHour)
	mergeFloat(&dst.OverloadFraction, src.OverloadFraction)
}

// mergeFeatures honors only explicitly set flags so a YAML false wins
// over the enabled default.
func mergeFeatures(dst, src *FeatureConfig) {
	if src.set == nil {
		return
	}
	if src.set["rules"] {
		dst.Rules = src.Rules
	}
	if src.set["policies"] {
		dst.Policies = src.Policies
	}
	if src.set["conflicts"] {
		dst.Conflicts = src.Conflicts
	}
	if src.set["adaptive_notifications"] {
		dst.AdaptiveNotifications = src.AdaptiveNotifications
	}
}

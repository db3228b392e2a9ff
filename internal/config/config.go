package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"calgrid/internal/dateutil"
	appLog "calgrid/internal/log"
	"calgrid/internal/view"
)

const (
	DefaultTimezone = "UTC"
	DefaultLocale   = "en"
	DefaultRefresh  = "*/15 * * * *"
	DefaultCacheDir = "./var/ics-cache"
)

// FeedConfig describes a single ICS subscription source.
type FeedConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// Schedule puts every event of the feed in this lane.
	Schedule string `yaml:"schedule,omitempty" json:"schedule,omitempty"`
	// Class is copied to every event of the feed.
	Class string `yaml:"class,omitempty" json:"class,omitempty"`
}

// ScheduleConfig is one resource lane of the day columns.
type ScheduleConfig struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
	Class string `yaml:"class,omitempty" json:"class,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Locale is a BCP 47 tag (e.g. "en", "de-CH").
	Locale string `yaml:"locale" json:"locale"`

	// Timezone is the IANA timezone used as canonical display zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Views lists the available views, as a list of names or a map of
	// name to {cols, rows}.
	Views       Views  `yaml:"views" json:"views"`
	DefaultView string `yaml:"default_view" json:"default_view"`

	// TimeFrom / TimeTo bound the time axis in minutes of day; TimeStep is
	// the grid line interval.
	TimeFrom int `yaml:"time_from" json:"time_from"`
	TimeTo   int `yaml:"time_to" json:"time_to"`
	TimeStep int `yaml:"time_step" json:"time_step"`

	// SnapToInterval (minutes) snaps created, moved and resized edges.
	SnapToInterval int `yaml:"snap_to_interval" json:"snap_to_interval"`

	EditableEvents     EditableEvents `yaml:"editable_events" json:"editable_events"`
	EventCreateMinDrag float64        `yaml:"event_create_min_drag" json:"event_create_min_drag"`

	Schedules []ScheduleConfig `yaml:"schedules,omitempty" json:"schedules,omitempty"`

	// HideWeekdays lists weekday names ("saturday", "sat").
	HideWeekdays []string `yaml:"hide_weekdays,omitempty" json:"hide_weekdays,omitempty"`
	HideWeekends bool     `yaml:"hide_weekends" json:"hide_weekends"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// MinDate / MaxDate / DisableDays use the 2006-01-02 layout.
	MinDate     string   `yaml:"min_date,omitempty" json:"min_date,omitempty"`
	MaxDate     string   `yaml:"max_date,omitempty" json:"max_date,omitempty"`
	DisableDays []string `yaml:"disable_days,omitempty" json:"disable_days,omitempty"`

	// MultidayEvents defaults to true. When false, events are cut at the end
	// of their start day.
	MultidayEvents *bool `yaml:"multiday_events,omitempty" json:"multiday_events,omitempty"`
	// AllDayEvents lays all-day events out in their own bar.
	AllDayEvents   bool `yaml:"all_day_events" json:"all_day_events"`
	TruncateMonths bool `yaml:"truncate_months" json:"truncate_months"`

	HoldDelayMs   int `yaml:"hold_delay_ms" json:"hold_delay_ms"`
	ClickWindowMs int `yaml:"click_window_ms" json:"click_window_ms"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for periodic feed refresh.
	RefreshCron string       `yaml:"refresh" json:"refresh"`
	Feeds       []FeedConfig `yaml:"feeds" json:"feeds"`
	CacheDir    string       `yaml:"cache_dir" json:"cache_dir"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Locale:             DefaultLocale,
		Timezone:           DefaultTimezone,
		Views:              defaultViews(),
		DefaultView:        string(view.Week),
		TimeFrom:           0,
		TimeTo:             dateutil.MinutesPerDay,
		TimeStep:           60,
		EditableEvents:     EditableEvents{Create: true, Drag: true, Resize: true, Delete: true},
		EventCreateMinDrag: 15,
		WeekStart:          "monday",
		HoldDelayMs:        1000,
		ClickWindowMs:      400,
		RefreshCron:        DefaultRefresh,
		Feeds:              []FeedConfig{},
		CacheDir:           DefaultCacheDir,
		LogLevel:           "info",
	}
}

func defaultViews() Views {
	v := make(Views, len(view.DefaultSpecs))
	for id, s := range view.DefaultSpecs {
		v[id] = s
	}
	return v
}

// Normalize fills in missing values and replaces invalid ones with defaults,
// logging a warning for each replacement, so that partially-filled configs
// still behave correctly.
func (c *Config) Normalize() {
	if c.Locale == "" {
		c.Locale = DefaultLocale
	} else if _, err := language.Parse(c.Locale); err != nil {
		appLog.Warn("config: invalid locale, using default", "locale", c.Locale, "error", err)
		c.Locale = DefaultLocale
	}

	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	} else if _, err := time.LoadLocation(c.Timezone); err != nil {
		appLog.Warn("config: unknown timezone, using default", "timezone", c.Timezone, "error", err)
		c.Timezone = DefaultTimezone
	}

	c.normalizeViews()

	if c.TimeFrom < 0 || c.TimeTo > dateutil.MinutesPerDay || c.TimeFrom >= c.TimeTo {
		if c.TimeTo != 0 || c.TimeFrom != 0 {
			appLog.Warn("config: invalid time window, showing the whole day", "time_from", c.TimeFrom, "time_to", c.TimeTo)
		}
		c.TimeFrom, c.TimeTo = 0, dateutil.MinutesPerDay
	}
	if c.TimeStep <= 0 {
		c.TimeStep = 60
	}
	if c.SnapToInterval < 0 {
		appLog.Warn("config: negative snap_to_interval ignored", "snap_to_interval", c.SnapToInterval)
		c.SnapToInterval = 0
	}
	if c.EventCreateMinDrag < 0 {
		c.EventCreateMinDrag = 0
	}

	// WeekStart default & validation.
	switch c.WeekStart {
	case "monday", "sunday":
	case "":
		c.WeekStart = "monday"
	default:
		appLog.Warn("config: unknown week_start, using monday", "week_start", c.WeekStart)
		c.WeekStart = "monday"
	}

	kept := c.HideWeekdays[:0]
	for _, name := range c.HideWeekdays {
		if _, ok := parseWeekday(name); !ok {
			appLog.Warn("config: unknown weekday in hide_weekdays", "weekday", name)
			continue
		}
		kept = append(kept, name)
	}
	c.HideWeekdays = kept

	c.normalizeDates()

	if c.HoldDelayMs <= 0 {
		c.HoldDelayMs = 1000
	}
	if c.ClickWindowMs <= 0 {
		c.ClickWindowMs = 400
	}

	if c.RefreshCron == "" {
		c.RefreshCron = DefaultRefresh
	} else if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		appLog.Warn("config: invalid refresh schedule, using default", "refresh", c.RefreshCron, "error", err)
		c.RefreshCron = DefaultRefresh
	}

	c.normalizeFeeds()

	if c.CacheDir == "" {
		c.CacheDir = DefaultCacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) normalizeViews() {
	if len(c.Views) == 0 {
		c.Views = defaultViews()
	}
	if _, ok := c.Views[view.ID(c.DefaultView)]; !ok {
		fallback := ""
		for _, id := range view.Order {
			if _, ok := c.Views[id]; ok {
				fallback = string(id)
				break
			}
		}
		if c.DefaultView != "" {
			appLog.Warn("config: default_view not available", "default_view", c.DefaultView, "fallback", fallback)
		}
		c.DefaultView = fallback
	}
}

func (c *Config) normalizeDates() {
	check := func(key, s string) string {
		if s == "" {
			return ""
		}
		if _, err := time.Parse(dateutil.DayKeyLayout, s); err != nil {
			appLog.Warn("config: invalid date ignored", "key", key, "value", s)
			return ""
		}
		return s
	}
	c.MinDate = check("min_date", c.MinDate)
	c.MaxDate = check("max_date", c.MaxDate)
	if c.MinDate != "" && c.MaxDate != "" && c.MaxDate < c.MinDate {
		appLog.Warn("config: max_date before min_date, both ignored", "min_date", c.MinDate, "max_date", c.MaxDate)
		c.MinDate, c.MaxDate = "", ""
	}

	days := c.DisableDays[:0]
	for _, d := range c.DisableDays {
		if d = check("disable_days", d); d != "" {
			days = append(days, d)
		}
	}
	c.DisableDays = days
}

func (c *Config) normalizeFeeds() {
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	seen := make(map[string]bool, len(c.Feeds))
	feeds := c.Feeds[:0]
	for i, f := range c.Feeds {
		f.URL = strings.TrimSpace(f.URL)
		if f.URL == "" {
			appLog.Warn("config: feed without url ignored", "index", i)
			continue
		}
		if f.ID == "" {
			f.ID = "feed-" + strconv.Itoa(i+1)
		}
		if seen[f.ID] {
			appLog.Warn("config: duplicate feed id ignored", "id", f.ID)
			continue
		}
		seen[f.ID] = true
		feeds = append(feeds, f)
	}
	c.Feeds = feeds
}

// Location returns the configured display timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Language returns the configured locale as a language tag.
func (c *Config) Language() language.Tag {
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return language.English
	}
	return tag
}

func (c *Config) StartWeekOnSunday() bool {
	return c.WeekStart == "sunday"
}

// Multiday reports whether multi-day events are kept whole.
func (c *Config) Multiday() bool {
	return c.MultidayEvents == nil || *c.MultidayEvents
}

// HiddenWeekdays merges hide_weekdays and hide_weekends.
func (c *Config) HiddenWeekdays() []time.Weekday {
	seen := make(map[time.Weekday]bool)
	var out []time.Weekday
	add := func(d time.Weekday) {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	for _, name := range c.HideWeekdays {
		if d, ok := parseWeekday(name); ok {
			add(d)
		}
	}
	if c.HideWeekends {
		add(time.Saturday)
		add(time.Sunday)
	}
	return out
}

// DateBounds returns min_date and max_date in the display timezone; unset
// bounds are zero.
func (c *Config) DateBounds() (min, max time.Time) {
	loc := c.Location()
	if c.MinDate != "" {
		min, _ = time.ParseInLocation(dateutil.DayKeyLayout, c.MinDate, loc)
	}
	if c.MaxDate != "" {
		max, _ = time.ParseInLocation(dateutil.DayKeyLayout, c.MaxDate, loc)
	}
	return min, max
}

// DisabledDates returns disable_days in the display timezone.
func (c *Config) DisabledDates() []time.Time {
	loc := c.Location()
	out := make([]time.Time, 0, len(c.DisableDays))
	for _, s := range c.DisableDays {
		if d, err := time.ParseInLocation(dateutil.DayKeyLayout, s, loc); err == nil {
			out = append(out, d)
		}
	}
	return out
}

func (c *Config) HoldDelay() time.Duration {
	return time.Duration(c.HoldDelayMs) * time.Millisecond
}

func (c *Config) ClickWindow() time.Duration {
	return time.Duration(c.ClickWindowMs) * time.Millisecond
}

// ScheduleIDs returns the configured lanes in order.
func (c *Config) ScheduleIDs() []string {
	ids := make([]string, 0, len(c.Schedules))
	for _, s := range c.Schedules {
		ids = append(ids, s.ID)
	}
	return ids
}

func parseWeekday(name string) (time.Weekday, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if len(n) < 3 {
		return 0, false
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if n == full || n == full[:3] {
			return d, true
		}
	}
	return 0, false
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshalled into Config and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	return Parse(data)
}

// Parse decodes and normalizes a YAML document. Keys missing from data keep
// their default values.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	// Views and feeds come from the document only.
	cfg.Views = nil
	cfg.Feeds = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.Normalize()
	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrapf(err, "create config dir %s", dir)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".calgrid-config-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp config")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp config")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync temp config")
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "replace config %s", path)
	}
	return nil
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

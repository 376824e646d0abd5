package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultHTTPListen      = ":8080"
	defaultHealthPath      = "/healthz"
	defaultReadyPath       = "/readyz"
	defaultWebhookPath     = "/webhook"
	defaultMaxBodyBytes    = 2 << 20
	defaultNATSURL         = "nats://127.0.0.1:4222"
	defaultNATSSubject     = "alertrouter.webhooks"
	defaultNATSStream      = "ALERTROUTER_WEBHOOKS"
	defaultNATSConsumer    = "alertrouter-ingest"
	defaultNATSGroup       = "alertrouter-workers"
	defaultNATSAckWaitSec  = 30
	defaultNATSMaxDeliver  = -1
	defaultNATSMaxPending  = 2048

	defaultDedupTTLSeconds      = 900
	defaultChartLookbackMinutes = 15
	defaultChartStep            = "30s"
	defaultChartTimeoutSeconds  = 8
	defaultTitlePrefix          = "[ALERT]"
	defaultDisplayTimezone      = "Asia/Shanghai"

	// ChannelTypeTelegram identifies Telegram chat destinations.
	ChannelTypeTelegram = "telegram"
	// ChannelTypeWebhook identifies generic HTTP webhook destinations.
	ChannelTypeWebhook = "webhook"
)

// Config holds service runtime settings, routing rules, and channel tables.
// Params: TOML sections from one file or a merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service      ServiceConfig             `toml:"service"`
	Log          LogConfig                 `toml:"log"`
	Ingest       IngestConfig              `toml:"ingest"`
	Routing      []RoutingRule             `toml:"routing"`
	Channels     map[string]ChannelConfig  `toml:"channel"`
	Templates    map[string]TemplateConfig `toml:"template"`
	JenkinsDedup JenkinsDedupConfig        `toml:"jenkins_dedup"`
	Chart        ChartConfig               `toml:"chart"`
	Defaults     DefaultsConfig            `toml:"defaults"`
}

// ServiceConfig contains process-level settings.
// Params: service name used in logs.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name string `toml:"name"`
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// IngestConfig defines inbound webhook interfaces.
// Params: embedded HTTP and NATS subscription controls.
// Returns: ingestion runtime options.
type IngestConfig struct {
	HTTP HTTPIngestConfig `toml:"http"`
	NATS NATSIngestConfig `toml:"nats"`
}

// HTTPIngestConfig configures the webhook HTTP endpoint.
// Params: listen address, endpoint paths, and body size limit.
// Returns: HTTP ingest behavior.
type HTTPIngestConfig struct {
	Listen       string `toml:"listen"`
	HealthPath   string `toml:"health_path"`
	ReadyPath    string `toml:"ready_path"`
	WebhookPath  string `toml:"webhook_path"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

// NATSIngestConfig configures JetStream queue-consumer ingestion of webhook payloads.
// Params: connection and ack/redelivery policy; stream routing keys are runtime-fixed.
// Returns: NATS ingest behavior.
type NATSIngestConfig struct {
	Enabled       bool     `toml:"enabled"`
	URL           []string `toml:"url"`
	Subject       string   `toml:"-"`
	Stream        string   `toml:"-"`
	ConsumerName  string   `toml:"-"`
	DeliverGroup  string   `toml:"-"`
	AckWaitSec    int      `toml:"ack_wait_sec"`
	MaxDeliver    int      `toml:"max_deliver"`
	MaxAckPending int      `toml:"max_ack_pending"`
}

// RoutingRule is one ordered routing table entry.
// Params: optional label match conditions, destination channels, and default flag.
// Returns: rule evaluated in file order by the router.
type RoutingRule struct {
	Match   map[string]string `toml:"match"`
	SendTo  []string          `toml:"send_to"`
	Default bool              `toml:"default"`
}

// ChannelConfig is one immutable delivery destination.
// Params: channel type plus transport-specific fields.
// Returns: static channel definition resolved at load time.
type ChannelConfig struct {
	Type         string `toml:"type"`
	Enabled      bool   `toml:"enabled"`
	SendResolved bool   `toml:"send_resolved"`
	ImageEnabled bool   `toml:"image_enabled"`
	Template     string `toml:"template"`
	WebhookURL   string `toml:"webhook_url"`
	BotToken     string `toml:"bot_token"`
	ChatID       string `toml:"chat_id"`
	APIBase      string `toml:"api_base"`
	ProxyURL     string `toml:"proxy_url"`
}

// TemplateConfig holds one named message template body.
// Params: Go text/template source referenced by channel.template.
// Returns: template entry compiled once at startup.
type TemplateConfig struct {
	Message string `toml:"message"`
}

// JenkinsDedupConfig controls the CI firing-suppression window.
// Params: enable flag, window length, and resolved-clears-key toggle.
// Returns: dedup cache policy.
type JenkinsDedupConfig struct {
	Enabled         bool `toml:"enabled"`
	TTLSeconds      int  `toml:"ttl_seconds"`
	ClearOnResolved bool `toml:"clear_on_resolved"`
}

// ChartConfig controls trend-chart generation for telegram photo delivery.
// Params: enable flag, query window, fetch timeout, and render endpoints.
// Returns: chart generator settings.
type ChartConfig struct {
	Enabled         bool   `toml:"enabled"`
	LookbackMinutes int    `toml:"lookback_minutes"`
	Step            string `toml:"step"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	GrafanaURL      string `toml:"grafana_url"`
	PrometheusURL   string `toml:"prometheus_url"`
}

// DefaultsConfig carries presentation defaults used by the orchestrator.
// Params: message title prefix and display timezone for timestamps.
// Returns: rendering defaults.
type DefaultsConfig struct {
	TitlePrefix     string `toml:"title_prefix"`
	DisplayTimezone string `toml:"display_timezone"`
}

// rawConfig mirrors the TOML model before default-true booleans are resolved.
// Params: decoded sections from one TOML source.
// Returns: raw snapshot with explicit-presence pointers.
type rawConfig struct {
	Service      ServiceConfig               `toml:"service"`
	Log          LogConfig                   `toml:"log"`
	Ingest       IngestConfig                `toml:"ingest"`
	Routing      []RoutingRule               `toml:"routing"`
	Channel      map[string]rawChannelConfig `toml:"channel"`
	Template     map[string]TemplateConfig   `toml:"template"`
	JenkinsDedup rawJenkinsDedupConfig       `toml:"jenkins_dedup"`
	Chart        rawChartConfig              `toml:"chart"`
	Defaults     DefaultsConfig              `toml:"defaults"`
}

// rawChannelConfig keeps pointer booleans so omitted flags can default to true.
// Params: channel fields as written in TOML.
// Returns: intermediate channel body used for normalization.
type rawChannelConfig struct {
	Type         string `toml:"type"`
	Enabled      *bool  `toml:"enabled"`
	SendResolved *bool  `toml:"send_resolved"`
	ImageEnabled bool   `toml:"image_enabled"`
	Template     string `toml:"template"`
	WebhookURL   string `toml:"webhook_url"`
	BotToken     string `toml:"bot_token"`
	ChatID       string `toml:"chat_id"`
	APIBase      string `toml:"api_base"`
	ProxyURL     string `toml:"proxy_url"`
}

type rawJenkinsDedupConfig struct {
	Enabled         *bool `toml:"enabled"`
	TTLSeconds      int   `toml:"ttl_seconds"`
	ClearOnResolved *bool `toml:"clear_on_resolved"`
}

type rawChartConfig struct {
	Enabled         *bool  `toml:"enabled"`
	LookbackMinutes int    `toml:"lookback_minutes"`
	Step            string `toml:"step"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	GrafanaURL      string `toml:"grafana_url"`
	PrometheusURL   string `toml:"prometheus_url"`
}

// ConfigSource describes a file or directory config source.
// Params: exactly one of file path or directory path.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI builds a normalized source descriptor from CLI paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var raw rawConfig
	var err error
	if src.File != "" {
		raw, err = loadFile(src.File)
	} else {
		raw, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	cfg := normalizeRawConfig(raw)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot.
// Returns: decoded raw config or read/decode error.
func loadFile(path string) (rawConfig, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return rawConfig{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	var raw rawConfig
	if err := toml.Unmarshal(body, &raw); err != nil {
		return rawConfig{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	return raw, nil
}

// loadDir reads and merges TOML files from one directory in name order.
// Params: directory containing config fragments.
// Returns: merged raw snapshot or load/decode error.
func loadDir(dir string) (rawConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return rawConfig{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return rawConfig{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged rawConfig
	for _, file := range files {
		fragment, err := loadFile(file)
		if err != nil {
			return rawConfig{}, err
		}
		mergeRawConfig(&merged, fragment)
	}
	return merged, nil
}

// mergeRawConfig overlays one fragment onto the accumulated snapshot.
// Params: destination snapshot and next fragment.
// Returns: merged snapshot side-effect in dst.
func mergeRawConfig(dst *rawConfig, src rawConfig) {
	if src.Service != (ServiceConfig{}) {
		dst.Service = src.Service
	}
	if src.Log != (LogConfig{}) {
		dst.Log = src.Log
	}
	if src.Ingest.HTTP != (HTTPIngestConfig{}) {
		dst.Ingest.HTTP = src.Ingest.HTTP
	}
	if src.Ingest.NATS.Enabled || len(src.Ingest.NATS.URL) > 0 {
		dst.Ingest.NATS = src.Ingest.NATS
	}
	dst.Routing = append(dst.Routing, src.Routing...)
	if len(src.Channel) > 0 {
		if dst.Channel == nil {
			dst.Channel = make(map[string]rawChannelConfig, len(src.Channel))
		}
		for name, channel := range src.Channel {
			dst.Channel[name] = channel
		}
	}
	if len(src.Template) > 0 {
		if dst.Template == nil {
			dst.Template = make(map[string]TemplateConfig, len(src.Template))
		}
		for name, tpl := range src.Template {
			dst.Template[name] = tpl
		}
	}
	if src.JenkinsDedup != (rawJenkinsDedupConfig{}) {
		dst.JenkinsDedup = src.JenkinsDedup
	}
	if src.Chart != (rawChartConfig{}) {
		dst.Chart = src.Chart
	}
	if src.Defaults != (DefaultsConfig{}) {
		dst.Defaults = src.Defaults
	}
}

// normalizeRawConfig resolves pointer booleans into the runtime model.
// Params: merged raw snapshot.
// Returns: runtime config with default-true flags resolved.
func normalizeRawConfig(raw rawConfig) Config {
	cfg := Config{
		Service:   raw.Service,
		Log:       raw.Log,
		Ingest:    raw.Ingest,
		Routing:   raw.Routing,
		Templates: raw.Template,
		Defaults:  raw.Defaults,
		JenkinsDedup: JenkinsDedupConfig{
			Enabled:         boolOrTrue(raw.JenkinsDedup.Enabled),
			TTLSeconds:      raw.JenkinsDedup.TTLSeconds,
			ClearOnResolved: boolOrTrue(raw.JenkinsDedup.ClearOnResolved),
		},
		Chart: ChartConfig{
			Enabled:         boolOrTrue(raw.Chart.Enabled),
			LookbackMinutes: raw.Chart.LookbackMinutes,
			Step:            raw.Chart.Step,
			TimeoutSeconds:  raw.Chart.TimeoutSeconds,
			GrafanaURL:      raw.Chart.GrafanaURL,
			PrometheusURL:   raw.Chart.PrometheusURL,
		},
	}

	if len(raw.Channel) > 0 {
		cfg.Channels = make(map[string]ChannelConfig, len(raw.Channel))
		for name, channel := range raw.Channel {
			cfg.Channels[name] = ChannelConfig{
				Type:         strings.ToLower(strings.TrimSpace(channel.Type)),
				Enabled:      boolOrTrue(channel.Enabled),
				SendResolved: boolOrTrue(channel.SendResolved),
				ImageEnabled: channel.ImageEnabled,
				Template:     channel.Template,
				WebhookURL:   channel.WebhookURL,
				BotToken:     channel.BotToken,
				ChatID:       channel.ChatID,
				APIBase:      channel.APIBase,
				ProxyURL:     channel.ProxyURL,
			}
		}
	}
	return cfg
}

// boolOrTrue resolves an omitted TOML boolean to true.
// Params: decoded pointer value.
// Returns: explicit value or true when absent.
func boolOrTrue(value *bool) bool {
	if value == nil {
		return true
	}
	return *value
}

// applyDefaults fills omitted config fields with safe defaults.
// Params: cfg pointer to decoded snapshot.
// Returns: defaults applied in place.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = "alertrouter"
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	if strings.TrimSpace(cfg.Ingest.HTTP.Listen) == "" {
		cfg.Ingest.HTTP.Listen = defaultHTTPListen
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.HealthPath) == "" {
		cfg.Ingest.HTTP.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.ReadyPath) == "" {
		cfg.Ingest.HTTP.ReadyPath = defaultReadyPath
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.WebhookPath) == "" {
		cfg.Ingest.HTTP.WebhookPath = defaultWebhookPath
	}
	if cfg.Ingest.HTTP.MaxBodyBytes <= 0 {
		cfg.Ingest.HTTP.MaxBodyBytes = defaultMaxBodyBytes
	}

	if cfg.Ingest.NATS.Enabled {
		if len(cfg.Ingest.NATS.URL) == 0 {
			cfg.Ingest.NATS.URL = []string{defaultNATSURL}
		}
		cfg.Ingest.NATS.Subject = defaultNATSSubject
		cfg.Ingest.NATS.Stream = defaultNATSStream
		cfg.Ingest.NATS.ConsumerName = defaultNATSConsumer
		cfg.Ingest.NATS.DeliverGroup = defaultNATSGroup
		if cfg.Ingest.NATS.AckWaitSec <= 0 {
			cfg.Ingest.NATS.AckWaitSec = defaultNATSAckWaitSec
		}
		if cfg.Ingest.NATS.MaxDeliver == 0 {
			cfg.Ingest.NATS.MaxDeliver = defaultNATSMaxDeliver
		}
		if cfg.Ingest.NATS.MaxAckPending <= 0 {
			cfg.Ingest.NATS.MaxAckPending = defaultNATSMaxPending
		}
	}

	if cfg.JenkinsDedup.TTLSeconds <= 0 {
		cfg.JenkinsDedup.TTLSeconds = defaultDedupTTLSeconds
	}

	if cfg.Chart.LookbackMinutes <= 0 {
		cfg.Chart.LookbackMinutes = defaultChartLookbackMinutes
	}
	if strings.TrimSpace(cfg.Chart.Step) == "" {
		cfg.Chart.Step = defaultChartStep
	}
	if cfg.Chart.TimeoutSeconds <= 0 {
		cfg.Chart.TimeoutSeconds = defaultChartTimeoutSeconds
	}

	if strings.TrimSpace(cfg.Defaults.TitlePrefix) == "" {
		cfg.Defaults.TitlePrefix = defaultTitlePrefix
	}
	if strings.TrimSpace(cfg.Defaults.DisplayTimezone) == "" {
		cfg.Defaults.DisplayTimezone = defaultDisplayTimezone
	}
}

// validateConfig validates the full runtime configuration.
// Params: cfg snapshot to validate.
// Returns: first validation error.
func validateConfig(cfg Config) error {
	if len(cfg.Routing) == 0 {
		return errors.New("routing section is required: at least one routing rule must be configured")
	}
	if len(cfg.Channels) == 0 {
		return errors.New("channel section is required: at least one channel must be configured")
	}

	for i, rule := range cfg.Routing {
		if len(rule.SendTo) == 0 {
			return fmt.Errorf("routing rule %d has no send_to channels", i)
		}
		if len(rule.Match) == 0 && !rule.Default {
			return fmt.Errorf("routing rule %d needs either a match table or default = true", i)
		}
	}

	for name, channel := range cfg.Channels {
		switch channel.Type {
		case ChannelTypeTelegram:
			if strings.TrimSpace(channel.BotToken) == "" {
				return fmt.Errorf("channel %q: telegram channels require bot_token", name)
			}
			if strings.TrimSpace(channel.ChatID) == "" {
				return fmt.Errorf("channel %q: telegram channels require chat_id", name)
			}
		case ChannelTypeWebhook:
			if strings.TrimSpace(channel.WebhookURL) == "" {
				return fmt.Errorf("channel %q: webhook channels require webhook_url", name)
			}
		default:
			return fmt.Errorf("channel %q has unsupported type %q", name, channel.Type)
		}
		if channel.Template != "" {
			if _, ok := cfg.Templates[channel.Template]; !ok {
				return fmt.Errorf("channel %q references unknown template %q", name, channel.Template)
			}
		}
	}
	return nil
}

// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/framelat/internal/core"
)

// Config represents the top-level configuration.
// Maps to the `framelat:` root key in YAML.
type Config struct {
	Node       NodeConfig       `mapstructure:"node"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Sender     SenderConfig     `mapstructure:"sender"`
	Receiver   ReceiverConfig   `mapstructure:"receiver"`
	Correlator CorrelatorConfig `mapstructure:"correlator"`
	AckChannel AckChannelConfig `mapstructure:"ack_channel"`
	Report     ReportConfig     `mapstructure:"report"`
}

// ─── Node Identity ───

// NodeConfig contains node identification settings.
type NodeConfig struct {
	Hostname string `mapstructure:"hostname"` // Empty = os.Hostname()
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`   // trace / debug / info / warn / error
	Pattern string           `mapstructure:"pattern"` // %time %level %field %msg %caller %n
	Time    string           `mapstructure:"time"`    // Go time layout
	File    FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Endpoints ───

// Pipeline kinds.
const (
	PipelineGst   = "gst"
	PipelineSynth = "synth"
)

// PipelineConfig selects and tunes the media pipeline an endpoint drives.
type PipelineConfig struct {
	Kind string `mapstructure:"kind"` // gst | synth

	// gst
	Launch        string `mapstructure:"launch"`         // gst-launch description; empty = built-in
	Element       string `mapstructure:"element"`        // encoder (sender) or decoder (receiver) name
	RenderElement string `mapstructure:"render_element"` // receiver video sink name

	// media transport: sender target / receiver listen address
	Media string `mapstructure:"media"`

	// synth
	FrameRate      float64       `mapstructure:"frame_rate"`
	FrameCount     int           `mapstructure:"frame_count"` // 0 = until stopped
	RawSize        int           `mapstructure:"raw_size"`
	MinEncodedSize int           `mapstructure:"min_encoded_size"`
	MaxEncodedSize int           `mapstructure:"max_encoded_size"`
	MTU            int           `mapstructure:"mtu"`
	EncodeDelay    time.Duration `mapstructure:"encode_delay"`
	DecodeDelay    time.Duration `mapstructure:"decode_delay"`
}

// SenderConfig configures the sending endpoint.
type SenderConfig struct {
	AckListen        string         `mapstructure:"ack_listen"`
	ReceiverAckAddr  string         `mapstructure:"receiver_ack_addr"`
	HandshakeTimeout time.Duration  `mapstructure:"handshake_timeout"`
	Drain            time.Duration  `mapstructure:"drain"` // wait for late acks after the pipeline ends
	Pipeline         PipelineConfig `mapstructure:"pipeline"`
}

// ReceiverConfig configures the receiving endpoint.
type ReceiverConfig struct {
	AckListen string         `mapstructure:"ack_listen"`
	AckStage  string         `mapstructure:"ack_stage"` // decode-source | render
	Pipeline  PipelineConfig `mapstructure:"pipeline"`
}

// CorrelatorConfig tunes ack-to-record binding.
type CorrelatorConfig struct {
	LookbackWindow int `mapstructure:"lookback_window"`
	AckQueueSize   int `mapstructure:"ack_queue_size"`
}

// AckChannelConfig tunes the acknowledgment socket.
type AckChannelConfig struct {
	ReadBuffer int `mapstructure:"read_buffer"`
	DSCP       int `mapstructure:"dscp"` // 0 = leave unmarked
}

// ReportConfig controls the end-of-run statistics output.
type ReportConfig struct {
	Format      string    `mapstructure:"format"` // text | yaml
	Percentiles []float64 `mapstructure:"percentiles"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `framelat: ...`.
type configRoot struct {
	Framelat Config `mapstructure:"framelat"`
}

// Load loads configuration from file. An empty path loads defaults only.
// Env vars use the FRAMELAT_ prefix (e.g., FRAMELAT_LOG_LEVEL).
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `framelat.` key prefix maps to `FRAMELAT_` via the key replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Framelat

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("framelat.log.level", "info")
	v.SetDefault("framelat.log.pattern", "%time [%level] %field %msg%n")
	v.SetDefault("framelat.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("framelat.log.file.enabled", false)
	v.SetDefault("framelat.log.file.path", "/var/log/framelat/framelat.log")
	v.SetDefault("framelat.log.file.rotation.max_size_mb", 100)
	v.SetDefault("framelat.log.file.rotation.max_age_days", 30)
	v.SetDefault("framelat.log.file.rotation.max_backups", 5)
	v.SetDefault("framelat.log.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("framelat.metrics.enabled", false)
	v.SetDefault("framelat.metrics.listen", ":9091")
	v.SetDefault("framelat.metrics.path", "/metrics")

	// Sender defaults
	v.SetDefault("framelat.sender.ack_listen", "0.0.0.0:0")
	v.SetDefault("framelat.sender.receiver_ack_addr", "127.0.0.1:5001")
	v.SetDefault("framelat.sender.handshake_timeout", "10s")
	v.SetDefault("framelat.sender.drain", "1s")
	v.SetDefault("framelat.sender.pipeline.kind", PipelineGst)
	v.SetDefault("framelat.sender.pipeline.element", "x264enc")
	v.SetDefault("framelat.sender.pipeline.media", "127.0.0.1:5000")
	v.SetDefault("framelat.sender.pipeline.frame_rate", 30.0)
	v.SetDefault("framelat.sender.pipeline.raw_size", 1920*1080*3/2)
	v.SetDefault("framelat.sender.pipeline.min_encoded_size", 8000)
	v.SetDefault("framelat.sender.pipeline.max_encoded_size", 60000)
	v.SetDefault("framelat.sender.pipeline.mtu", 1200)
	v.SetDefault("framelat.sender.pipeline.encode_delay", "4ms")

	// Receiver defaults
	v.SetDefault("framelat.receiver.ack_listen", "0.0.0.0:5001")
	v.SetDefault("framelat.receiver.ack_stage", string(core.StageDecodeSource))
	v.SetDefault("framelat.receiver.pipeline.kind", PipelineGst)
	v.SetDefault("framelat.receiver.pipeline.element", "avdec_h264")
	v.SetDefault("framelat.receiver.pipeline.render_element", "render")
	v.SetDefault("framelat.receiver.pipeline.media", "0.0.0.0:5000")
	v.SetDefault("framelat.receiver.pipeline.raw_size", 1920*1080*3/2)
	v.SetDefault("framelat.receiver.pipeline.decode_delay", "3ms")

	// Correlator defaults
	v.SetDefault("framelat.correlator.lookback_window", 15)
	v.SetDefault("framelat.correlator.ack_queue_size", 256)

	// Ack channel defaults
	v.SetDefault("framelat.ack_channel.read_buffer", 4096)
	v.SetDefault("framelat.ack_channel.dscp", 0)

	// Report defaults
	v.SetDefault("framelat.report.format", "text")
	v.SetDefault("framelat.report.percentiles", []float64{5, 25, 50, 75, 95})
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be trace/debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Path == "" {
		return fmt.Errorf("%w: log.file.path is required when log.file.enabled=true", core.ErrConfigInvalid)
	}

	// ── Node hostname auto-detect ──
	if cfg.Node.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Node.Hostname = hostname
	}

	// ── Pipelines ──
	if err := cfg.Sender.Pipeline.validate("sender"); err != nil {
		return err
	}
	if err := cfg.Receiver.Pipeline.validate("receiver"); err != nil {
		return err
	}
	if cfg.Sender.Pipeline.Kind == PipelineSynth {
		p := cfg.Sender.Pipeline
		if p.FrameRate <= 0 {
			return fmt.Errorf("%w: sender.pipeline.frame_rate must be > 0", core.ErrConfigInvalid)
		}
		if p.MinEncodedSize <= 0 || p.MaxEncodedSize < p.MinEncodedSize {
			return fmt.Errorf("%w: sender.pipeline encoded size range [%d,%d] is invalid",
				core.ErrConfigInvalid, p.MinEncodedSize, p.MaxEncodedSize)
		}
		if p.MTU <= 0 {
			return fmt.Errorf("%w: sender.pipeline.mtu must be > 0", core.ErrConfigInvalid)
		}
	}
	if cfg.Sender.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: sender.handshake_timeout must be > 0", core.ErrConfigInvalid)
	}

	// ── Receiver ack stage ──
	stage, err := core.ParseStage(cfg.Receiver.AckStage)
	if err != nil || (stage != core.StageDecodeSource && stage != core.StageRender) {
		return fmt.Errorf("%w: receiver.ack_stage %q (must be decode-source/render)", core.ErrConfigInvalid, cfg.Receiver.AckStage)
	}

	// ── Correlator ──
	if cfg.Correlator.LookbackWindow < 0 {
		return fmt.Errorf("%w: correlator.lookback_window must be >= 0", core.ErrConfigInvalid)
	}
	if cfg.Correlator.AckQueueSize <= 0 {
		cfg.Correlator.AckQueueSize = 256
	}

	// ── Ack channel ──
	if cfg.AckChannel.ReadBuffer <= 0 {
		cfg.AckChannel.ReadBuffer = 4096
	}
	if cfg.AckChannel.DSCP < 0 || cfg.AckChannel.DSCP > 63 {
		return fmt.Errorf("%w: ack_channel.dscp must be within 0..63", core.ErrConfigInvalid)
	}

	// ── Report ──
	if cfg.Report.Format != "text" && cfg.Report.Format != "yaml" {
		return fmt.Errorf("%w: invalid report format: %s (must be text/yaml)", core.ErrConfigInvalid, cfg.Report.Format)
	}
	for _, p := range cfg.Report.Percentiles {
		if p < 0 || p > 100 {
			return fmt.Errorf("%w: percentile %v out of range 0..100", core.ErrConfigInvalid, p)
		}
	}

	return nil
}

func (p *PipelineConfig) validate(side string) error {
	switch p.Kind {
	case PipelineGst, PipelineSynth:
	default:
		return fmt.Errorf("%w: unsupported %s.pipeline.kind: %s (must be gst/synth)", core.ErrConfigInvalid, side, p.Kind)
	}
	if p.Media == "" {
		return fmt.Errorf("%w: %s.pipeline.media is required", core.ErrConfigInvalid, side)
	}
	return nil
}

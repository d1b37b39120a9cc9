package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the HTTP and WebSocket surface listens on.
	DefaultAddr = ":43127"
	// DefaultGRPCAddr is the default TCP address of the gRPC control service.
	DefaultGRPCAddr = ":43128"
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 64 << 10
	// DefaultMaxClients bounds concurrent WebSocket connections. Zero disables the limit.
	DefaultMaxClients = 64

	// DefaultGRPCExportCodec compresses gRPC history exports.
	DefaultGRPCExportCodec = "snappy"

	// DefaultTickRate is the simulation frequency in hertz.
	DefaultTickRate = 60
	// DefaultStatusRate is how often status frames are pushed to observers, in hertz.
	DefaultStatusRate = 10

	// MinCaptureInterval rejects capture rates above 120 Hz.
	MinCaptureInterval = time.Second / 120
	// DefaultCaptureInterval records snapshots at 30 Hz.
	DefaultCaptureInterval = time.Second / 30
	// DefaultRetentionWindow keeps ten seconds of history per entity.
	DefaultRetentionWindow = 10 * time.Second
	// DefaultRecordKinematics captures velocity and movement mode alongside poses.
	DefaultRecordKinematics = true
	// DefaultPauseAnimation freezes body animation while their history is scrubbed.
	DefaultPauseAnimation = true

	// DefaultSpeedMultipliers lists the preset multipliers from slowest to fastest.
	DefaultSpeedMultipliers = "0.25,0.5,1,2,4"
	// DefaultSpeed names the preset selected at startup.
	DefaultSpeed = "normal"

	// DefaultDemoBodies is how many autonomous bodies the demo world spawns.
	DefaultDemoBodies = 8
	// DefaultDemoSeed makes the demo world deterministic.
	DefaultDemoSeed int64 = 1

	// DefaultInputMaxAge rejects control frames older than this.
	DefaultInputMaxAge = 250 * time.Millisecond

	// DefaultDumpDir is where history dump bundles are written.
	DefaultDumpDir = "dumps"
	// DefaultDumpWindow bounds how frequently history dumps may be requested.
	DefaultDumpWindow = time.Minute
	// DefaultDumpBurst sets how many history dumps may be requested per window.
	DefaultDumpBurst = 1
	// DefaultDumpMaxBundles caps how many history bundles stay on disk.
	DefaultDumpMaxBundles = 20
	// DefaultDumpMaxAge expires history bundles older than a day.
	DefaultDumpMaxAge = 24 * time.Hour

	// DefaultLogLevel controls verbosity for service logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "rewind.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// ExportCodecNames lists the accepted gRPC history export codecs.
var ExportCodecNames = []string{"gzip", "snappy"}

// SpeedPresetNames lists the accepted preset names from slowest to fastest.
var SpeedPresetNames = []string{"slowest", "slower", "normal", "faster", "fastest"}

// Config captures all runtime tunables for the rewind service.
type Config struct {
	Address          string
	GRPCAddress      string
	AllowedOrigins   []string
	MaxPayloadBytes  int64
	PingInterval     time.Duration
	MaxClients       int
	TLSCertPath      string
	TLSKeyPath       string
	AdminToken       string
	AuthSecret       string
	GRPCSharedSecret string
	GRPCClientCAPath string
	GRPCExportCodec  string

	TickRate   int
	StatusRate int

	Capture          CaptureConfig
	SpeedMultipliers []float64
	DefaultSpeed     string

	DemoBodies int
	DemoSeed   int64

	InputMaxAge      time.Duration
	InputMinInterval time.Duration

	DumpDir    string
	DumpWindow time.Duration
	DumpBurst  int

	// DumpMaxBundles and DumpMaxAge bound the retained bundles; zero disables a bound.
	DumpMaxBundles int
	DumpMaxAge     time.Duration

	Logging LoggingConfig
}

// CaptureConfig holds the per-entity history tunables applied to every engine.
type CaptureConfig struct {
	Interval         time.Duration
	Retention        time.Duration
	RecordKinematics bool
	PauseAnimation   bool
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// TickInterval converts the configured tick rate into a step duration.
func (c *Config) TickInterval() time.Duration {
	if c == nil || c.TickRate <= 0 {
		return time.Second / DefaultTickRate
	}
	return time.Second / time.Duration(c.TickRate)
}

// Load reads the service configuration from environment variables, applying sane defaults
// and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:          getString("REWIND_ADDR", DefaultAddr),
		GRPCAddress:      DefaultGRPCAddr,
		AllowedOrigins:   parseList(os.Getenv("REWIND_ALLOWED_ORIGINS")),
		MaxPayloadBytes:  DefaultMaxPayloadBytes,
		PingInterval:     DefaultPingInterval,
		MaxClients:       DefaultMaxClients,
		TLSCertPath:      strings.TrimSpace(os.Getenv("REWIND_TLS_CERT")),
		TLSKeyPath:       strings.TrimSpace(os.Getenv("REWIND_TLS_KEY")),
		AdminToken:       strings.TrimSpace(os.Getenv("REWIND_ADMIN_TOKEN")),
		AuthSecret:       strings.TrimSpace(os.Getenv("REWIND_AUTH_SECRET")),
		GRPCSharedSecret: strings.TrimSpace(os.Getenv("REWIND_GRPC_SHARED_SECRET")),
		GRPCClientCAPath: strings.TrimSpace(os.Getenv("REWIND_GRPC_CLIENT_CA")),
		GRPCExportCodec:  strings.ToLower(getString("REWIND_GRPC_EXPORT_CODEC", DefaultGRPCExportCodec)),
		TickRate:         DefaultTickRate,
		StatusRate:       DefaultStatusRate,
		Capture: CaptureConfig{
			Interval:         DefaultCaptureInterval,
			Retention:        DefaultRetentionWindow,
			RecordKinematics: DefaultRecordKinematics,
			PauseAnimation:   DefaultPauseAnimation,
		},
		DefaultSpeed:   strings.ToLower(getString("REWIND_DEFAULT_SPEED", DefaultSpeed)),
		DemoBodies:     DefaultDemoBodies,
		DemoSeed:       DefaultDemoSeed,
		InputMaxAge:    DefaultInputMaxAge,
		DumpDir:        getString("REWIND_DUMP_DIR", DefaultDumpDir),
		DumpWindow:     DefaultDumpWindow,
		DumpBurst:      DefaultDumpBurst,
		DumpMaxBundles: DefaultDumpMaxBundles,
		DumpMaxAge:     DefaultDumpMaxAge,
		Logging: LoggingConfig{
			Level:      getString("REWIND_LOG_LEVEL", DefaultLogLevel),
			Path:       getString("REWIND_LOG_PATH", DefaultLogPath),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	//1.- An explicitly empty gRPC address disables the control service.
	if raw, ok := os.LookupEnv("REWIND_GRPC_ADDR"); ok {
		cfg.GRPCAddress = strings.TrimSpace(raw)
	}

	//2.- Transport limits.
	if raw := strings.TrimSpace(os.Getenv("REWIND_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			report("REWIND_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw)
		} else {
			cfg.MaxPayloadBytes = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("REWIND_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			report("REWIND_PING_INTERVAL must be a positive duration, got %q", raw)
		} else {
			cfg.PingInterval = duration
		}
	}
	if raw := strings.TrimSpace(os.Getenv("REWIND_MAX_CLIENTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			report("REWIND_MAX_CLIENTS must be a non-negative integer, got %q", raw)
		} else {
			cfg.MaxClients = value
		}
	}

	//3.- Simulation cadence.
	if raw := strings.TrimSpace(os.Getenv("REWIND_TICK_HZ")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 || value > 1000 {
			report("REWIND_TICK_HZ must be an integer between 1 and 1000, got %q", raw)
		} else {
			cfg.TickRate = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("REWIND_STATUS_HZ")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			report("REWIND_STATUS_HZ must be a positive integer, got %q", raw)
		} else {
			cfg.StatusRate = value
		}
	}

	//4.- History capture tunables.
	if raw := strings.TrimSpace(os.Getenv("REWIND_CAPTURE_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < MinCaptureInterval {
			report("REWIND_CAPTURE_INTERVAL must be a duration of at least %s, got %q", MinCaptureInterval, raw)
		} else {
			cfg.Capture.Interval = duration
		}
	}
	if raw := strings.TrimSpace(os.Getenv("REWIND_RETENTION_WINDOW")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			report("REWIND_RETENTION_WINDOW must be a positive duration, got %q", raw)
		} else {
			cfg.Capture.Retention = duration
		}
	}
	if cfg.Capture.Retention < cfg.Capture.Interval {
		report("REWIND_RETENTION_WINDOW (%s) must not be shorter than REWIND_CAPTURE_INTERVAL (%s)",
			cfg.Capture.Retention, cfg.Capture.Interval)
	}
	if raw := strings.TrimSpace(os.Getenv("REWIND_RECORD_KINEMATICS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			report("REWIND_RECORD_KINEMATICS must be a boolean value, got %q", raw)
		} else {
			cfg.Capture.RecordKinematics = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("REWIND_PAUSE_ANIMATION")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			report("REWIND_PAUSE_ANIMATION must be a boolean value, got %q", raw)
		} else {
			cfg.Capture.PauseAnimation = value
		}
	}

	//5.- Speed presets.
	multipliers, err := parseMultipliers(getString("REWIND_SPEED_MULTIPLIERS", DefaultSpeedMultipliers))
	if err != nil {
		report("REWIND_SPEED_MULTIPLIERS %v", err)
	} else {
		cfg.SpeedMultipliers = multipliers
	}
	if !validPreset(cfg.DefaultSpeed) {
		report("REWIND_DEFAULT_SPEED must be one of %s, got %q", strings.Join(SpeedPresetNames, "|"), cfg.DefaultSpeed)
	}

	//6.- Demo world.
	if raw := strings.TrimSpace(os.Getenv("REWIND_DEMO_BODIES")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			report("REWIND_DEMO_BODIES must be a non-negative integer, got %q", raw)
		} else {
			cfg.DemoBodies = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("REWIND_DEMO_SEED")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			report("REWIND_DEMO_SEED must be an integer, got %q", raw)
		} else {
			cfg.DemoSeed = value
		}
	}

	//7.- Control input gate.
	if raw := strings.TrimSpace(os.Getenv("REWIND_INPUT_MAX_AGE")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			report("REWIND_INPUT_MAX_AGE must be a non-negative duration, got %q", raw)
		} else {
			cfg.InputMaxAge = duration
		}
	}
	if raw := strings.TrimSpace(os.Getenv("REWIND_INPUT_MIN_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			report("REWIND_INPUT_MIN_INTERVAL must be a non-negative duration, got %q", raw)
		} else {
			cfg.InputMinInterval = duration
		}
	}

	//8.- History dumps.
	if raw := strings.TrimSpace(os.Getenv("REWIND_DUMP_WINDOW")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			report("REWIND_DUMP_WINDOW must be a positive duration, got %q", raw)
		} else {
			cfg.DumpWindow = duration
		}
	}
	if raw := strings.TrimSpace(os.Getenv("REWIND_DUMP_BURST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			report("REWIND_DUMP_BURST must be a positive integer, got %q", raw)
		} else {
			cfg.DumpBurst = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("REWIND_DUMP_MAX_BUNDLES")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			report("REWIND_DUMP_MAX_BUNDLES must be a non-negative integer, got %q", raw)
		} else {
			cfg.DumpMaxBundles = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("REWIND_DUMP_MAX_AGE")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			report("REWIND_DUMP_MAX_AGE must be a non-negative duration, got %q", raw)
		} else {
			cfg.DumpMaxAge = duration
		}
	}

	//9.- Logging.
	if raw := strings.TrimSpace(os.Getenv("REWIND_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			report("REWIND_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw)
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("REWIND_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			report("REWIND_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw)
		} else {
			cfg.Logging.MaxBackups = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("REWIND_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			report("REWIND_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw)
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("REWIND_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			report("REWIND_LOG_COMPRESS must be a boolean value, got %q", raw)
		} else {
			cfg.Logging.Compress = value
		}
	}

	if (cfg.TLSCertPath == "") != (cfg.TLSKeyPath == "") {
		report("REWIND_TLS_CERT and REWIND_TLS_KEY must be provided together")
	}
	if cfg.GRPCClientCAPath != "" && cfg.TLSCertPath == "" {
		report("REWIND_GRPC_CLIENT_CA requires REWIND_TLS_CERT and REWIND_TLS_KEY")
	}
	if !slices.Contains(ExportCodecNames, cfg.GRPCExportCodec) {
		report("REWIND_GRPC_EXPORT_CODEC must be one of %s, got %q", strings.Join(ExportCodecNames, "|"), cfg.GRPCExportCodec)
	}

	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}

func parseMultipliers(raw string) ([]float64, error) {
	items := parseList(raw)
	if len(items) != len(SpeedPresetNames) {
		return nil, fmt.Errorf("must list %d values, got %q", len(SpeedPresetNames), raw)
	}
	values := make([]float64, len(items))
	for i, item := range items {
		value, err := strconv.ParseFloat(item, 64)
		if err != nil || !(value > 0) || value > 1000 {
			return nil, fmt.Errorf("must contain positive numbers, got %q", item)
		}
		values[i] = value
	}
	return values, nil
}

func validPreset(name string) bool {
	for _, candidate := range SpeedPresetNames {
		if candidate == name {
			return true
		}
	}
	return false
}

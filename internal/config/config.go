// Package config loads presence-meter settings from defaults, an optional
// YAML file, PRESENCE_ environment variables and command-line flags, in
// that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/presence-meter/internal/gpio"
	"github.com/sweeney/presence-meter/internal/logic"
	"github.com/sweeney/presence-meter/internal/mqtt"
	"github.com/sweeney/presence-meter/internal/source"
	"github.com/sweeney/presence-meter/internal/status"
)

// EnvPrefix is prepended to the upper-cased flag name, with dashes turned
// into underscores, to form the environment variable for an option.
const EnvPrefix = "PRESENCE_"

// DefaultIndicatorName names the controller built from the flat options.
const DefaultIndicatorName = "battery"

// IndicatorConfig describes one level controller in the YAML file.
// Unset fields inherit the top-level values.
type IndicatorConfig struct {
	Name            string           `yaml:"name"`
	PresenceTimeout *time.Duration   `yaml:"presence_timeout"`
	HoldAtMax       *time.Duration   `yaml:"hold_at_max"`
	FillSpeed       *float64         `yaml:"fill_speed"`
	DrainSpeed      *float64         `yaml:"drain_speed"`
	MaxIndex        *int             `yaml:"max_index"`
	Levels          []logic.LevelDef `yaml:"levels"`
}

// Config holds every presence-meter option.
type Config struct {
	// Line source
	Source        string        `yaml:"source"`
	Port          string        `yaml:"port"`
	Baud          int           `yaml:"baud"`
	TCPAddr       string        `yaml:"tcp_addr"`
	MQTTLineTopic string        `yaml:"mqtt_line_topic"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`

	// Parsing
	Unit          string   `yaml:"unit"`
	DefaultSensor string   `yaml:"default_sensor"`
	Sensors       []string `yaml:"sensors"`
	LegacyLiteral string   `yaml:"legacy_literal"`

	// Trigger logic
	LessThan       bool          `yaml:"less_than"`
	ThresholdCm    float64       `yaml:"threshold_cm"`
	Cooldown       time.Duration `yaml:"cooldown"`
	Smoothing      time.Duration `yaml:"smoothing"`
	MaxStepCm      float64       `yaml:"max_step_cm"`
	MinConsecutive int           `yaml:"min_consecutive"`

	// Level controller
	PresenceTimeout time.Duration     `yaml:"presence_timeout"`
	HoldAtMax       time.Duration     `yaml:"hold_at_max"`
	FillSpeed       float64           `yaml:"fill_speed"`
	DrainSpeed      float64           `yaml:"drain_speed"`
	MaxIndex        int               `yaml:"max_index"`
	Indicators      []IndicatorConfig `yaml:"indicators"`
	Tick            time.Duration     `yaml:"tick"`

	// Outputs
	Broker      string        `yaml:"broker"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Heartbeat   time.Duration `yaml:"heartbeat"`
	HTTPAddr    string        `yaml:"http"`

	// GPIO
	GPIOChip       string        `yaml:"gpio_chip"`
	PulsePin       int           `yaml:"pulse_pin"`
	HoldToRepeat   bool          `yaml:"hold_to_repeat"`
	RepeatInterval time.Duration `yaml:"repeat_interval"`
	LEDPin         int           `yaml:"led_pin"`
	BlinkHz        float64       `yaml:"blink_hz"`

	// Logging and modes
	LogLevel     string `yaml:"log_level"`
	LogAllLines  bool   `yaml:"log_all_lines"`
	LogTriggers  bool   `yaml:"log_triggers"`
	LogPerSensor bool   `yaml:"log_per_sensor"`
	TUI          bool   `yaml:"tui"`
	PrintLine    bool   `yaml:"-"`
	ConfigFile   string `yaml:"-"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Source:      string(source.KindSerial),
		Port:        "/dev/ttyUSB0",
		Baud:        115200,
		ReadTimeout: source.DefaultReadTimeout,

		Unit:          string(logic.Millimeters),
		DefaultSensor: "DEFAULT",
		LegacyLiteral: "true",

		LessThan:       true,
		ThresholdCm:    50,
		Cooldown:       500 * time.Millisecond,
		Smoothing:      250 * time.Millisecond,
		MaxStepCm:      0,
		MinConsecutive: 1,

		PresenceTimeout: 2 * time.Second,
		HoldAtMax:       5 * time.Second,
		FillSpeed:       6,
		DrainSpeed:      4,
		MaxIndex:        5,
		Tick:            20 * time.Millisecond,

		TopicPrefix: mqtt.DefaultTopicPrefix,
		Heartbeat:   15 * time.Minute,
		HTTPAddr:    ":8080",

		GPIOChip:       gpio.DefaultChip,
		PulsePin:       gpio.Disabled,
		HoldToRepeat:   true,
		RepeatInterval: 50 * time.Millisecond,
		LEDPin:         gpio.Disabled,
		BlinkHz:        6,

		LogLevel:    "info",
		LogTriggers: true,
	}
}

// BindFlags registers every option on fs with c's current values as defaults.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "YAML config file")

	fs.StringVar(&c.Source, "source", c.Source, "Line source (serial, tcp, stdin, mqtt)")
	fs.StringVar(&c.Port, "port", c.Port, "Serial port device")
	fs.IntVar(&c.Baud, "baud", c.Baud, "Serial baud rate")
	fs.StringVar(&c.TCPAddr, "tcp-addr", c.TCPAddr, "host:port of a line-oriented TCP sensor feed")
	fs.StringVar(&c.MQTTLineTopic, "mqtt-line-topic", c.MQTTLineTopic, "MQTT topic carrying sensor lines")
	fs.DurationVar(&c.ReadTimeout, "read-timeout", c.ReadTimeout, "Line source read timeout")

	fs.StringVar(&c.Unit, "unit", c.Unit, "Unit of numeric readings (mm, cm)")
	fs.StringVar(&c.DefaultSensor, "default-sensor", c.DefaultSensor, "Sensor id for bare numeric lines")
	fs.StringSliceVar(&c.Sensors, "sensors", c.Sensors, "Accepted sensor ids (empty accepts any)")
	fs.StringVar(&c.LegacyLiteral, "legacy-literal", c.LegacyLiteral, "Line that triggers without a distance (empty disables)")

	fs.BoolVar(&c.LessThan, "less-than", c.LessThan, "Trigger when smoothed distance <= threshold (false: >=)")
	fs.Float64Var(&c.ThresholdCm, "threshold-cm", c.ThresholdCm, "Trigger threshold in centimeters")
	fs.DurationVar(&c.Cooldown, "cooldown", c.Cooldown, "Minimum time between any two triggers")
	fs.DurationVar(&c.Smoothing, "smoothing", c.Smoothing, "Smoothing time constant")
	fs.Float64Var(&c.MaxStepCm, "max-step-cm", c.MaxStepCm, "Per-sample step cap in centimeters (0 disables)")
	fs.IntVar(&c.MinConsecutive, "min-consecutive", c.MinConsecutive, "Consecutive samples required to trigger")

	fs.DurationVar(&c.PresenceTimeout, "presence-timeout", c.PresenceTimeout, "How long a trigger keeps presence active")
	fs.DurationVar(&c.HoldAtMax, "hold-at-max", c.HoldAtMax, "How long the level stays at max")
	fs.Float64Var(&c.FillSpeed, "fill-speed", c.FillSpeed, "Fill speed in levels per second")
	fs.Float64Var(&c.DrainSpeed, "drain-speed", c.DrainSpeed, "Drain speed in levels per second")
	fs.IntVar(&c.MaxIndex, "max-index", c.MaxIndex, "Highest level index")
	fs.DurationVar(&c.Tick, "tick", c.Tick, "Processing tick interval")

	fs.StringVar(&c.Broker, "broker", c.Broker, "MQTT broker address (empty disables MQTT)")
	fs.StringVar(&c.TopicPrefix, "topic-prefix", c.TopicPrefix, "MQTT topic prefix")
	fs.DurationVar(&c.Heartbeat, "heartbeat", c.Heartbeat, "Heartbeat interval (0 to disable)")
	fs.StringVar(&c.HTTPAddr, "http", c.HTTPAddr, "HTTP status address (empty to disable)")

	fs.StringVar(&c.GPIOChip, "gpio-chip", c.GPIOChip, "GPIO character device")
	fs.IntVar(&c.PulsePin, "pulse-pin", c.PulsePin, "BCM pin of the manual pulse button (-1 disables)")
	fs.BoolVar(&c.HoldToRepeat, "hold-to-repeat", c.HoldToRepeat, "Repeat pulses while the button is held")
	fs.DurationVar(&c.RepeatInterval, "repeat-interval", c.RepeatInterval, "Pulse interval while the button is held")
	fs.IntVar(&c.LEDPin, "led-pin", c.LEDPin, "BCM pin of the hold-phase LED (-1 disables)")
	fs.Float64Var(&c.BlinkHz, "blink-hz", c.BlinkHz, "Hold-phase blink frequency")

	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
	fs.BoolVar(&c.LogAllLines, "log-all-lines", c.LogAllLines, "Log every received line at debug level")
	fs.BoolVar(&c.LogTriggers, "log-triggers", c.LogTriggers, "Log every accepted trigger")
	fs.BoolVar(&c.LogPerSensor, "log-per-sensor", c.LogPerSensor, "Log every smoothed sample at debug level")
	fs.BoolVar(&c.TUI, "tui", c.TUI, "Show the live terminal monitor")
	fs.BoolVar(&c.PrintLine, "print-line", c.PrintLine, "Read one line, print how it parses and exit")
}

// LoadFile overlays values from a YAML file. Unknown keys are rejected.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// EnvName returns the environment variable for a flag name.
func EnvName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// LoadFromEnv overlays values from PRESENCE_ environment variables.
// List options take comma-separated values.
func (c *Config) LoadFromEnv() error {
	fs := pflag.NewFlagSet("env", pflag.ContinueOnError)
	c.BindFlags(fs)

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		v, ok := os.LookupEnv(EnvName(f.Name))
		if !ok || v == "" {
			return
		}
		if err := f.Value.Set(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvName(f.Name), err))
		}
	})
	return errors.Join(errs...)
}

// ApplyFlags copies every flag explicitly set on from into c.
// from must have been populated by BindFlags.
func (c *Config) ApplyFlags(from *pflag.FlagSet) error {
	to := pflag.NewFlagSet("apply", pflag.ContinueOnError)
	c.BindFlags(to)

	var errs []error
	from.Visit(func(f *pflag.Flag) {
		t := to.Lookup(f.Name)
		if t == nil {
			return
		}
		var err error
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			err = t.Value.(pflag.SliceValue).Replace(sv.GetSlice())
		} else {
			err = t.Value.Set(f.Value.String())
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("--%s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// Load builds the effective config. flags holds the values bound to fs.
func Load(fs *pflag.FlagSet, flags *Config) (*Config, error) {
	cfg := NewConfig()
	path := flags.ConfigFile
	if path == "" {
		path = os.Getenv(EnvName("config"))
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := cfg.ApplyFlags(fs); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	kind, err := source.ParseKind(c.Source)
	if err != nil {
		return err
	}
	switch kind {
	case source.KindSerial:
		if c.Port == "" {
			return fmt.Errorf("port is required for the serial source")
		}
		if c.Baud <= 0 {
			return fmt.Errorf("baud must be positive, got %d", c.Baud)
		}
	case source.KindTCP:
		if c.TCPAddr == "" {
			return fmt.Errorf("tcp-addr is required for the tcp source")
		}
	case source.KindStdin:
		if c.TUI {
			return fmt.Errorf("tui cannot be used with the stdin source")
		}
	case source.KindMQTT:
		if c.MQTTLineTopic == "" {
			return fmt.Errorf("mqtt-line-topic is required for the mqtt source")
		}
		if c.Broker == "" {
			return fmt.Errorf("broker is required for the mqtt source")
		}
	}

	if _, err := logic.ParseUnit(c.Unit); err != nil {
		return err
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"read-timeout", c.ReadTimeout},
		{"cooldown", c.Cooldown},
		{"smoothing", c.Smoothing},
		{"presence-timeout", c.PresenceTimeout},
		{"hold-at-max", c.HoldAtMax},
		{"heartbeat", c.Heartbeat},
		{"repeat-interval", c.RepeatInterval},
	}
	for _, d := range durations {
		if d.d < 0 {
			return fmt.Errorf("%s must not be negative, got %v", d.name, d.d)
		}
	}
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be positive, got %v", c.Tick)
	}
	if c.MaxStepCm < 0 {
		return fmt.Errorf("max-step-cm must not be negative, got %v", c.MaxStepCm)
	}
	if c.MinConsecutive < 0 {
		return fmt.Errorf("min-consecutive must not be negative, got %d", c.MinConsecutive)
	}
	if c.BlinkHz < 0 {
		return fmt.Errorf("blink-hz must not be negative, got %v", c.BlinkHz)
	}
	if c.HoldToRepeat && c.PulsePin != gpio.Disabled && c.RepeatInterval <= 0 {
		return fmt.Errorf("repeat-interval must be positive with hold-to-repeat")
	}

	seen := make(map[string]bool)
	for _, lc := range c.LevelConfigs() {
		key := strings.ToLower(lc.Name)
		if lc.Name == "" {
			return fmt.Errorf("indicator name is required")
		}
		if seen[key] {
			return fmt.Errorf("duplicate indicator %q", lc.Name)
		}
		seen[key] = true
		if lc.FillSpeed <= 0 || lc.DrainSpeed <= 0 {
			return fmt.Errorf("indicator %s: fill and drain speeds must be positive", lc.Name)
		}
		if lc.PresenceTimeout < 0 || lc.HoldAtMax < 0 {
			return fmt.Errorf("indicator %s: durations must not be negative", lc.Name)
		}
		if len(lc.Levels) == 0 {
			return fmt.Errorf("indicator %s: at least one level is required", lc.Name)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// ParserConfig returns the line parser settings. Call after Validate.
func (c *Config) ParserConfig() logic.ParserConfig {
	unit, _ := logic.ParseUnit(c.Unit)
	return logic.ParserConfig{
		LegacyTrueLiteral: c.LegacyLiteral,
		DefaultSensorID:   c.DefaultSensor,
		Unit:              unit,
		AllowedSensorIDs:  c.Sensors,
	}
}

// ProcessorConfig returns the smoothing and trigger settings.
func (c *Config) ProcessorConfig() logic.ProcessorConfig {
	return logic.ProcessorConfig{
		Smoother: logic.SmootherConfig{
			Smoothing:          c.Smoothing,
			MaxStepPerSampleCm: c.MaxStepCm,
		},
		Trigger: logic.TriggerConfig{
			LessThanTriggers:      c.LessThan,
			ThresholdCm:           c.ThresholdCm,
			RetriggerCooldown:     c.Cooldown,
			MinConsecutiveSamples: c.MinConsecutive,
		},
	}
}

// LevelConfigs returns one controller config per indicator. Without an
// indicators list, a single "battery" controller uses the flat options.
func (c *Config) LevelConfigs() []logic.LevelConfig {
	if len(c.Indicators) == 0 {
		return []logic.LevelConfig{{
			Name:            DefaultIndicatorName,
			Levels:          logic.DefaultLevels(c.MaxIndex),
			PresenceTimeout: c.PresenceTimeout,
			HoldAtMax:       c.HoldAtMax,
			FillSpeed:       c.FillSpeed,
			DrainSpeed:      c.DrainSpeed,
		}}
	}

	out := make([]logic.LevelConfig, 0, len(c.Indicators))
	for _, ic := range c.Indicators {
		lc := logic.LevelConfig{
			Name:            ic.Name,
			Levels:          ic.Levels,
			PresenceTimeout: c.PresenceTimeout,
			HoldAtMax:       c.HoldAtMax,
			FillSpeed:       c.FillSpeed,
			DrainSpeed:      c.DrainSpeed,
		}
		if ic.PresenceTimeout != nil {
			lc.PresenceTimeout = *ic.PresenceTimeout
		}
		if ic.HoldAtMax != nil {
			lc.HoldAtMax = *ic.HoldAtMax
		}
		if ic.FillSpeed != nil {
			lc.FillSpeed = *ic.FillSpeed
		}
		if ic.DrainSpeed != nil {
			lc.DrainSpeed = *ic.DrainSpeed
		}
		if len(lc.Levels) == 0 {
			maxIndex := c.MaxIndex
			if ic.MaxIndex != nil {
				maxIndex = *ic.MaxIndex
			}
			lc.Levels = logic.DefaultLevels(maxIndex)
		}
		out = append(out, lc)
	}
	return out
}

// SourceConfig returns the line source settings. Call after Validate.
func (c *Config) SourceConfig() source.Config {
	kind, _ := source.ParseKind(c.Source)
	return source.Config{
		Kind:        kind,
		Port:        c.Port,
		Baud:        c.Baud,
		TCPAddr:     c.TCPAddr,
		MQTTTopic:   c.MQTTLineTopic,
		ReadTimeout: c.ReadTimeout,
	}
}

// StatusConfig returns the settings shown on the status page.
func (c *Config) StatusConfig() status.Config {
	return status.Config{
		Source:          c.Source,
		TickMs:          c.Tick.Milliseconds(),
		ThresholdCm:     c.ThresholdCm,
		LessThan:        c.LessThan,
		CooldownMs:      c.Cooldown.Milliseconds(),
		SmoothingMs:     c.Smoothing.Milliseconds(),
		MinConsecutive:  c.MinConsecutive,
		PresenceTimeout: c.PresenceTimeout.Milliseconds(),
		HeartbeatMs:     c.Heartbeat.Milliseconds(),
		Broker:          c.Broker,
		TopicPrefix:     c.TopicPrefix,
		HTTPAddr:        c.HTTPAddr,
	}
}

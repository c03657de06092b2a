package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/presence-meter/internal/logic"
	"github.com/sweeney/presence-meter/internal/source"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "presence.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func parseFlags(t *testing.T, args ...string) (*pflag.FlagSet, *Config) {
	t.Helper()
	flags := NewConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.BindFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs, flags
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "serial", cfg.Source)
	assert.Equal(t, 115200, cfg.Baud)
	assert.Equal(t, 500*time.Millisecond, cfg.Cooldown)
	assert.Equal(t, 250*time.Millisecond, cfg.Smoothing)
	assert.Equal(t, -1, cfg.PulsePin)
	assert.Equal(t, -1, cfg.LEDPin)
	assert.Empty(t, cfg.Broker)
}

func TestLoadWithoutOverrides(t *testing.T) {
	fs, flags := parseFlags(t)

	cfg, err := Load(fs, flags)
	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeFile(t, `
threshold_cm: 30
cooldown: 2s
fill_speed: 3
broker: tcp://file:1883
`)
	t.Setenv("PRESENCE_COOLDOWN", "1s")
	t.Setenv("PRESENCE_FILL_SPEED", "4.5")

	fs, flags := parseFlags(t, "--config", path, "--fill-speed", "8")

	cfg, err := Load(fs, flags)
	require.NoError(t, err)

	assert.Equal(t, 30.0, cfg.ThresholdCm, "file overrides default")
	assert.Equal(t, time.Second, cfg.Cooldown, "env overrides file")
	assert.Equal(t, 8.0, cfg.FillSpeed, "flag overrides env")
	assert.Equal(t, "tcp://file:1883", cfg.Broker)
	assert.Equal(t, 4.0, cfg.DrainSpeed, "untouched option keeps default")
}

func TestLoadConfigFileFromEnv(t *testing.T) {
	path := writeFile(t, "source: stdin\n")
	t.Setenv("PRESENCE_CONFIG", path)

	fs, flags := parseFlags(t)
	cfg, err := Load(fs, flags)
	require.NoError(t, err)
	assert.Equal(t, "stdin", cfg.Source)
}

func TestFlagSetToDefaultStillWins(t *testing.T) {
	t.Setenv("PRESENCE_LESS_THAN", "false")

	fs, flags := parseFlags(t, "--less-than=true")
	cfg, err := Load(fs, flags)
	require.NoError(t, err)
	assert.True(t, cfg.LessThan)
}

func TestSensorsList(t *testing.T) {
	t.Setenv("PRESENCE_SENSORS", "A,B")

	fs, flags := parseFlags(t)
	cfg, err := Load(fs, flags)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, cfg.Sensors)

	fs, flags = parseFlags(t, "--sensors", "C")
	cfg, err = Load(fs, flags)
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, cfg.Sensors)
}

func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("PRESENCE_THRESHOLD_CM", "near")

	err := NewConfig().LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRESENCE_THRESHOLD_CM")
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "treshold_cm: 30\n")

	err := NewConfig().LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "treshold_cm")
}

func TestLoadFileMissing(t *testing.T) {
	err := NewConfig().LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.LoadFile(writeFile(t, "")))
	assert.Equal(t, NewConfig(), cfg)
}

func TestIndicatorsFromFile(t *testing.T) {
	path := writeFile(t, `
hold_at_max: 3s
fill_speed: 5
indicators:
  - name: battery
    levels:
      - label: empty
      - label: half
        enter_up_cue: blip
      - label: full
        enter_up_cue: charge
        enter_down_cue: drop
        hold_at_max_cue: fanfare
  - name: door
    max_index: 2
    drain_speed: 1.5
    presence_timeout: 500ms
`)
	cfg := NewConfig()
	require.NoError(t, cfg.LoadFile(path))
	require.NoError(t, cfg.Validate())

	levels := cfg.LevelConfigs()
	require.Len(t, levels, 2)

	battery := levels[0]
	assert.Equal(t, "battery", battery.Name)
	require.Len(t, battery.Levels, 3)
	assert.Equal(t, logic.LevelDef{Label: "full", EnterUpCue: "charge", EnterDownCue: "drop", HoldAtMaxCue: "fanfare"}, battery.Levels[2])
	assert.Equal(t, 3*time.Second, battery.HoldAtMax)
	assert.Equal(t, 5.0, battery.FillSpeed)
	assert.Equal(t, 4.0, battery.DrainSpeed)

	door := levels[1]
	assert.Equal(t, logic.DefaultLevels(2), door.Levels)
	assert.Equal(t, 1.5, door.DrainSpeed)
	assert.Equal(t, 500*time.Millisecond, door.PresenceTimeout)
	assert.Equal(t, 3*time.Second, door.HoldAtMax)
}

func TestDefaultIndicator(t *testing.T) {
	cfg := NewConfig()
	cfg.MaxIndex = 3

	levels := cfg.LevelConfigs()
	require.Len(t, levels, 1)
	assert.Equal(t, DefaultIndicatorName, levels[0].Name)
	assert.Equal(t, 3, levels[0].MaxIndex())
	assert.Equal(t, 2*time.Second, levels[0].PresenceTimeout)
	assert.Equal(t, 5*time.Second, levels[0].HoldAtMax)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"unknown source", func(c *Config) { c.Source = "usb" }, "unknown source"},
		{"serial without port", func(c *Config) { c.Port = "" }, "port is required"},
		{"zero baud", func(c *Config) { c.Baud = 0 }, "baud must be positive"},
		{"tcp without addr", func(c *Config) { c.Source = "tcp" }, "tcp-addr is required"},
		{"mqtt without topic", func(c *Config) { c.Source = "mqtt"; c.Broker = "tcp://b:1883" }, "mqtt-line-topic is required"},
		{"mqtt without broker", func(c *Config) { c.Source = "mqtt"; c.MQTTLineTopic = "lines" }, "broker is required"},
		{"tui with stdin", func(c *Config) { c.Source = "stdin"; c.TUI = true }, "tui cannot be used with the stdin source"},
		{"unknown unit", func(c *Config) { c.Unit = "in" }, "unknown unit"},
		{"negative cooldown", func(c *Config) { c.Cooldown = -time.Second }, "cooldown must not be negative"},
		{"negative smoothing", func(c *Config) { c.Smoothing = -time.Second }, "smoothing must not be negative"},
		{"zero tick", func(c *Config) { c.Tick = 0 }, "tick must be positive"},
		{"negative max step", func(c *Config) { c.MaxStepCm = -1 }, "max-step-cm"},
		{"negative blink", func(c *Config) { c.BlinkHz = -1 }, "blink-hz"},
		{"zero fill speed", func(c *Config) { c.FillSpeed = 0 }, "speeds must be positive"},
		{"negative drain speed", func(c *Config) { c.DrainSpeed = -2 }, "speeds must be positive"},
		{"no levels", func(c *Config) { c.MaxIndex = -1 }, "at least one level"},
		{"repeat without interval", func(c *Config) { c.PulsePin = 17; c.RepeatInterval = 0 }, "repeat-interval"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "invalid log level"},
		{"unnamed indicator", func(c *Config) { c.Indicators = []IndicatorConfig{{}} }, "name is required"},
		{"duplicate indicator", func(c *Config) {
			c.Indicators = []IndicatorConfig{{Name: "a"}, {Name: "A"}}
		}, "duplicate indicator"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadWrapsValidationError(t *testing.T) {
	fs, flags := parseFlags(t, "--tick", "0s")
	_, err := Load(fs, flags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestDerivedConfigs(t *testing.T) {
	fs, flags := parseFlags(t,
		"--unit", "cm",
		"--default-sensor", "X",
		"--legacy-literal=",
		"--less-than=false",
		"--threshold-cm", "120",
		"--min-consecutive", "3",
		"--max-step-cm", "15",
		"--source", "tcp",
		"--tcp-addr", "sensor.local:7000",
	)
	cfg, err := Load(fs, flags)
	require.NoError(t, err)

	pc := cfg.ParserConfig()
	assert.Equal(t, logic.Centimeters, pc.Unit)
	assert.Equal(t, "X", pc.DefaultSensorID)
	assert.Empty(t, pc.LegacyTrueLiteral)

	proc := cfg.ProcessorConfig()
	assert.False(t, proc.Trigger.LessThanTriggers)
	assert.Equal(t, 120.0, proc.Trigger.ThresholdCm)
	assert.Equal(t, 3, proc.Trigger.MinConsecutiveSamples)
	assert.Equal(t, 500*time.Millisecond, proc.Trigger.RetriggerCooldown)
	assert.Equal(t, 15.0, proc.Smoother.MaxStepPerSampleCm)

	sc := cfg.SourceConfig()
	assert.Equal(t, source.KindTCP, sc.Kind)
	assert.Equal(t, "sensor.local:7000", sc.TCPAddr)

	st := cfg.StatusConfig()
	assert.Equal(t, int64(20), st.TickMs)
	assert.Equal(t, int64(500), st.CooldownMs)
	assert.Equal(t, "tcp", st.Source)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "PRESENCE_THRESHOLD_CM", EnvName("threshold-cm"))
	assert.Equal(t, "PRESENCE_HTTP", EnvName("http"))
}

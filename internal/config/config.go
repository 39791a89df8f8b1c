// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/tneurolab/crossdetect/internal/detect"
)

const (
	AppName       = "crossdetect"
	ConfigType    = "yaml"
	DefaultConfig = `# Crossing Detector Configuration

# Audio device settings
device_index: -1        # -1 for default capture device
sample_rate: 48000      # Sample rate in Hz
channels: 1             # Number of capture channels
buffer_size: 1024       # Frames per capture callback
input_channel: 0        # Channel to monitor for crossings
threshold_channel: -1   # Channel supplying the threshold in channel mode (-1 = none)

# Threshold
threshold_mode: "constant"  # constant, random, channel, average, adaptive
constant_threshold: 0.0     # Fixed threshold; RMS multiplier in average mode
random_min: -180.0          # Lower bound of the uniform draw in random mode
random_max: 180.0           # Upper bound of the uniform draw in random mode
average_decay_seconds: 5.0  # RMS smoothing time constant in average mode

# Crossing criteria
rising: true            # Detect upward crossings
falling: false          # Detect downward crossings
past_span: 0            # Extra samples before the crossing that must vote
future_span: 0          # Extra samples after the crossing that must vote
past_strict: 1.0        # Fraction of past_span required on the correct side
future_strict: 1.0      # Fraction of future_span required on the correct side
use_jump_limit: false   # Reject single-sample steps larger than jump_limit
jump_limit: 5.0
jump_limit_sleep: 0.0   # Cooldown after a rejected jump, in seconds
use_buffer_end_mask: false
buffer_end_mask_ms: 3   # Ignore crossings this close to the end of a buffer

# Event output
event_duration_ms: 5    # Spacing between an event's on and off halves
timeout_ms: 1000        # Refractory period after an event onset

# Adaptive threshold
indicator_target: 180.0
use_indicator_range: true
indicator_range_min: -180.0
indicator_range_max: 180.0
start_learning_rate: 0.02
min_learning_rate: 0.005
decay_rate: 0.00003
use_threshold_range: true
threshold_range_min: -180.0
threshold_range_max: 180.0

# Serial event output (optional TTL pulse sink)
serial_port: ""         # e.g. /dev/ttyUSB0; empty disables the serial sink
serial_baud: 115200

# Output
debug: false            # Enable debug output
`
)

// Settings holds all application configuration
type Settings struct {
	// Audio device settings
	DeviceIndex      int     `mapstructure:"device_index"`
	SampleRate       float64 `mapstructure:"sample_rate"`
	Channels         int     `mapstructure:"channels"`
	BufferSize       int     `mapstructure:"buffer_size"`
	InputChannel     int     `mapstructure:"input_channel"`
	ThresholdChannel int     `mapstructure:"threshold_channel"`

	// Threshold
	ThresholdMode       string  `mapstructure:"threshold_mode"`
	ConstantThreshold   float64 `mapstructure:"constant_threshold"`
	RandomMin           float64 `mapstructure:"random_min"`
	RandomMax           float64 `mapstructure:"random_max"`
	AverageDecaySeconds float64 `mapstructure:"average_decay_seconds"`

	// Crossing criteria
	Rising           bool    `mapstructure:"rising"`
	Falling          bool    `mapstructure:"falling"`
	PastSpan         int     `mapstructure:"past_span"`
	FutureSpan       int     `mapstructure:"future_span"`
	PastStrict       float64 `mapstructure:"past_strict"`
	FutureStrict     float64 `mapstructure:"future_strict"`
	UseJumpLimit     bool    `mapstructure:"use_jump_limit"`
	JumpLimit        float64 `mapstructure:"jump_limit"`
	JumpLimitSleep   float64 `mapstructure:"jump_limit_sleep"`
	UseBufferEndMask bool    `mapstructure:"use_buffer_end_mask"`
	BufferEndMaskMs  int     `mapstructure:"buffer_end_mask_ms"`

	// Event output
	EventDurationMs int `mapstructure:"event_duration_ms"`
	TimeoutMs       int `mapstructure:"timeout_ms"`

	// Adaptive threshold
	IndicatorTarget   float64 `mapstructure:"indicator_target"`
	UseIndicatorRange bool    `mapstructure:"use_indicator_range"`
	IndicatorRangeMin float64 `mapstructure:"indicator_range_min"`
	IndicatorRangeMax float64 `mapstructure:"indicator_range_max"`
	StartLearningRate float64 `mapstructure:"start_learning_rate"`
	MinLearningRate   float64 `mapstructure:"min_learning_rate"`
	DecayRate         float64 `mapstructure:"decay_rate"`
	UseThresholdRange bool    `mapstructure:"use_threshold_range"`
	ThresholdRangeMin float64 `mapstructure:"threshold_range_min"`
	ThresholdRangeMax float64 `mapstructure:"threshold_range_max"`

	// Serial event output
	SerialPort string `mapstructure:"serial_port"`
	SerialBaud int    `mapstructure:"serial_baud"`

	// Output
	Debug bool `mapstructure:"debug"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/crossdetect/
func Init() error {
	// Set defaults
	viper.SetDefault("device_index", -1)
	viper.SetDefault("sample_rate", 48000)
	viper.SetDefault("channels", 1)
	viper.SetDefault("buffer_size", 1024)
	viper.SetDefault("input_channel", 0)
	viper.SetDefault("threshold_channel", -1)
	viper.SetDefault("threshold_mode", "constant")
	viper.SetDefault("constant_threshold", 0.0)
	viper.SetDefault("random_min", -180.0)
	viper.SetDefault("random_max", 180.0)
	viper.SetDefault("average_decay_seconds", 5.0)
	viper.SetDefault("rising", true)
	viper.SetDefault("falling", false)
	viper.SetDefault("past_span", 0)
	viper.SetDefault("future_span", 0)
	viper.SetDefault("past_strict", 1.0)
	viper.SetDefault("future_strict", 1.0)
	viper.SetDefault("use_jump_limit", false)
	viper.SetDefault("jump_limit", 5.0)
	viper.SetDefault("jump_limit_sleep", 0.0)
	viper.SetDefault("use_buffer_end_mask", false)
	viper.SetDefault("buffer_end_mask_ms", 3)
	viper.SetDefault("event_duration_ms", 5)
	viper.SetDefault("timeout_ms", 1000)
	viper.SetDefault("indicator_target", 180.0)
	viper.SetDefault("use_indicator_range", true)
	viper.SetDefault("indicator_range_min", -180.0)
	viper.SetDefault("indicator_range_max", 180.0)
	viper.SetDefault("start_learning_rate", 0.02)
	viper.SetDefault("min_learning_rate", 0.005)
	viper.SetDefault("decay_rate", 0.00003)
	viper.SetDefault("use_threshold_range", true)
	viper.SetDefault("threshold_range_min", -180.0)
	viper.SetDefault("threshold_range_max", 180.0)
	viper.SetDefault("serial_port", "")
	viper.SetDefault("serial_baud", 115200)
	viper.SetDefault("debug", false)

	// Support both config.yaml and .config.yaml
	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		// Try config.yaml as fallback
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	// Read config file - if not found, create default in XDG config dir
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config found - create default in ~/.config/crossdetect/
			xdgConfigPath := filepath.Join(configDir, AppName)
			if err = ensureConfigExists(xdgConfigPath); err != nil {
				return err
			}
			// Read the newly created config
			if err = viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
		} else {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

var thresholdModes = map[string]detect.ThresholdMode{
	"constant": detect.ThresholdConstant,
	"random":   detect.ThresholdRandom,
	"channel":  detect.ThresholdChannel,
	"average":  detect.ThresholdAverage,
	"adaptive": detect.ThresholdAdaptive,
}

// Validate checks that all settings are within acceptable ranges
func (s *Settings) Validate() error {
	var errs []error

	// Audio device settings
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %v", s.SampleRate))
	}
	if s.Channels < 1 || s.Channels > 8 {
		errs = append(errs, fmt.Errorf("channels must be between 1 and 8, got %d", s.Channels))
	}
	if s.BufferSize < 64 || s.BufferSize > 8192 {
		errs = append(errs, fmt.Errorf("buffer_size must be between 64 and 8192, got %d", s.BufferSize))
	}
	if s.InputChannel < 0 || s.InputChannel >= s.Channels {
		errs = append(errs, fmt.Errorf("input_channel must name a capture channel (0-%d), got %d", s.Channels-1, s.InputChannel))
	}
	if s.ThresholdChannel >= s.Channels {
		errs = append(errs, fmt.Errorf("threshold_channel must name a capture channel or -1, got %d", s.ThresholdChannel))
	}
	if s.ThresholdChannel >= 0 && s.ThresholdChannel == s.InputChannel {
		errs = append(errs, fmt.Errorf("threshold_channel must differ from input_channel (%d)", s.InputChannel))
	}

	mode, ok := thresholdModes[s.ThresholdMode]
	if !ok {
		errs = append(errs, fmt.Errorf("threshold_mode must be constant, random, channel, average or adaptive, got %q", s.ThresholdMode))
	}
	if ok && mode == detect.ThresholdChannel && s.ThresholdChannel < 0 {
		errs = append(errs, fmt.Errorf("threshold_mode channel requires threshold_channel to be set"))
	}

	// Serial sink
	if s.SerialPort != "" && s.SerialBaud <= 0 {
		errs = append(errs, fmt.Errorf("serial_baud must be positive, got %d", s.SerialBaud))
	}

	// The detector validates its own numeric ranges; surface those errors
	// alongside the settings-level ones so one pass reports everything.
	if ok {
		if err := s.DetectorConfig().Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// DetectorConfig converts the settings into a detector configuration. Call
// Validate first; an unknown threshold_mode maps to constant here.
func (s *Settings) DetectorConfig() detect.Config {
	return detect.Config{
		Mode:                thresholdModes[s.ThresholdMode],
		ConstantThreshold:   s.ConstantThreshold,
		RandomMin:           s.RandomMin,
		RandomMax:           s.RandomMax,
		AverageDecaySeconds: s.AverageDecaySeconds,
		Rising:              s.Rising,
		Falling:             s.Falling,
		EventDurationMs:     s.EventDurationMs,
		TimeoutMs:           s.TimeoutMs,
		PastSpan:            s.PastSpan,
		FutureSpan:          s.FutureSpan,
		PastStrict:          s.PastStrict,
		FutureStrict:        s.FutureStrict,
		UseJumpLimit:        s.UseJumpLimit,
		JumpLimit:           s.JumpLimit,
		JumpLimitSleepSec:   s.JumpLimitSleep,
		UseBufferEndMask:    s.UseBufferEndMask,
		BufferEndMaskMs:     s.BufferEndMaskMs,
		IndicatorTarget:     s.IndicatorTarget,
		UseIndicatorRange:   s.UseIndicatorRange,
		IndicatorRange:      [2]float64{s.IndicatorRangeMin, s.IndicatorRangeMax},
		StartLearningRate:   s.StartLearningRate,
		MinLearningRate:     s.MinLearningRate,
		DecayRate:           s.DecayRate,
		UseThresholdRange:   s.UseThresholdRange,
		ThresholdRange:      [2]float64{s.ThresholdRangeMin, s.ThresholdRangeMax},
	}
}

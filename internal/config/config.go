// Package config loads the irrigator configuration from YAML over built-in
// defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/irrigator/internal/gpio"
)

// Config is the daemon configuration.
type Config struct {
	Schedule ScheduleConfig `yaml:"schedule"`
	GPIO     GPIOConfig     `yaml:"gpio"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	HTTP     HTTPConfig     `yaml:"http"`
	Status   StatusConfig   `yaml:"status"`
}

// ScheduleConfig is the fixed watering schedule.
type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval"` // time between the end of one cycle and the start of the next
	Duration time.Duration `yaml:"duration"` // length of one watering cycle
	Tick     time.Duration `yaml:"tick"`     // scheduler check period
}

// GPIOConfig selects the chip and output lines.
type GPIOConfig struct {
	Chip     string `yaml:"chip"`
	PinMotor int    `yaml:"pin_motor"`
	PinLight int    `yaml:"pin_light"` // -1 disables the indicator
}

// MQTTConfig configures event publishing.
type MQTTConfig struct {
	Broker     string `yaml:"broker"` // empty disables MQTT
	ClientID   string `yaml:"client_id"`
	BufferSize int    `yaml:"buffer_size"`
}

// HTTPConfig configures the status server.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the server
}

// StatusConfig configures periodic status reporting.
type StatusConfig struct {
	ReportEvery time.Duration `yaml:"report_every"`
	NetworkFile string        `yaml:"network_file"`
}

// Default returns the production configuration.
func Default() *Config {
	return &Config{
		Schedule: ScheduleConfig{
			Interval: 8 * time.Hour,
			Duration: 10 * time.Minute,
			Tick:     time.Second,
		},
		GPIO: GPIOConfig{
			Chip:     gpio.DefaultChip,
			PinMotor: gpio.DefaultPinMotor,
			PinLight: gpio.DefaultPinLight,
		},
		MQTT: MQTTConfig{
			Broker:     "tcp://192.168.1.200:1883",
			ClientID:   "irrigator",
			BufferSize: 1000,
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
		Status: StatusConfig{
			ReportEvery: time.Hour,
			NetworkFile: "/run/pi-helper.env",
		},
	}
}

// Debug returns the short-cycle schedule used for bench testing: water for a
// minute every six minutes.
func Debug() *Config {
	cfg := Default()
	cfg.Schedule.Interval = 6 * time.Minute
	cfg.Schedule.Duration = time.Minute
	return cfg
}

// Load reads a YAML file over base. A missing file yields base unchanged;
// fields absent from the file keep their base values.
func Load(filename string, base *Config) (*Config, error) {
	if base == nil {
		base = Default()
	}
	cfg := *base

	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", filename, err)
	}

	return &cfg, nil
}

// Validate checks the schedule and pin assignment.
func (c *Config) Validate() error {
	s := c.Schedule
	if s.Tick <= 0 {
		return fmt.Errorf("schedule.tick must be positive, got %v", s.Tick)
	}
	if s.Duration <= 0 {
		return fmt.Errorf("schedule.duration must be positive, got %v", s.Duration)
	}
	if s.Duration >= s.Interval {
		return fmt.Errorf("schedule.duration (%v) must be shorter than schedule.interval (%v)", s.Duration, s.Interval)
	}
	if c.GPIO.PinMotor < 0 {
		return fmt.Errorf("gpio.pin_motor must be set, got %d", c.GPIO.PinMotor)
	}
	if c.GPIO.PinLight < gpio.NoPin {
		return fmt.Errorf("gpio.pin_light must be a line number or %d, got %d", gpio.NoPin, c.GPIO.PinLight)
	}
	if c.GPIO.PinLight == c.GPIO.PinMotor {
		return fmt.Errorf("gpio.pin_light and gpio.pin_motor are both %d", c.GPIO.PinMotor)
	}
	if c.Status.ReportEvery < 0 {
		return fmt.Errorf("status.report_every must not be negative, got %v", c.Status.ReportEvery)
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

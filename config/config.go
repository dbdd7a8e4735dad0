// Package config loads zcal settings from a JSON file, with overrides from
// a .env file and the environment.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mastercactapus/zcal/coord"
	"github.com/mastercactapus/zcal/gcode"
	"github.com/mastercactapus/zcal/machine"
	"github.com/mastercactapus/zcal/zswitch"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config is the complete runtime configuration.
type Config struct {
	ZSwitch zswitch.Config
	Machine machine.Options

	// Scripts holds the parsed hook gcode, keyed by zswitch hook name.
	Scripts map[string][]gcode.Block

	// Port is a local serial device; SPJS, if set, is used instead.
	Port string
	Baud int
	SPJS string

	Addr     string
	DB       string
	LogLevel string
}

// file mirrors the JSON layout. Pointers distinguish unset from zero.
type file struct {
	SwitchX *float64 `json:"zswitch_x_pos"`
	SwitchY *float64 `json:"zswitch_y_pos"`
	SwitchZ *float64 `json:"zswitch_z_pos"`

	LiftZ      *float64 `json:"lift_z"`
	SafeStartZ *float64 `json:"safe_start_z"`
	MoveSpeed  *float64 `json:"move_speed"`
	ZMoveSpeed *float64 `json:"z_move_speed"`

	Samples          *int     `json:"samples"`
	SamplesTolerance *float64 `json:"samples_tolerance"`
	SamplesMaxCount  *int     `json:"samples_max_count"`
	Method           *string  `json:"z_calc_method"`
	TrimCount        *int     `json:"z_trim_count"`

	RecoverLift        *float64 `json:"recover_lift_mm"`
	RecoverPauseMS     *int     `json:"recover_pause_ms"`
	RecoverMaxAttempts *int     `json:"recover_max_attempts"`
	DefaultRefTool     *int     `json:"default_ref_tool"`

	StartGCode        string `json:"start_gcode"`
	BeforePickupGCode string `json:"before_pickup_gcode"`
	AfterPickupGCode  string `json:"after_pickup_gcode"`
	FinishGCode       string `json:"finish_gcode"`

	Tools        []int       `json:"tools"`
	InitialTool  *int        `json:"initial_tool"`
	ChangePos    *[3]float64 `json:"change_pos"`
	TravelHeight *float64    `json:"travel_height"`
	ProbeFeed    *float64    `json:"probe_feed"`
	ProbeMax     *float64    `json:"probe_max_distance"`

	Port     string `json:"port"`
	Baud     int    `json:"baud"`
	SPJS     string `json:"spjs"`
	Addr     string `json:"addr"`
	DB       string `json:"db"`
	LogLevel string `json:"log_level"`
}

// Default returns the stock configuration. The switch position is unset.
func Default() Config {
	return Config{
		ZSwitch: zswitch.DefaultConfig(),
		Machine: machine.Options{
			TravelHeight: 30,
			ProbeFeed:    300,
			InitialTool:  -1,
		},
		Scripts:  map[string][]gcode.Block{},
		Baud:     115200,
		Addr:     ":8080",
		DB:       "zcal.db",
		LogLevel: "info",
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}
func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
func setString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// Decode applies a JSON document on top of Default and validates the
// result. The environment is not consulted.
func Decode(data []byte) (Config, error) {
	cfg := Default()
	var f file
	err := json.Unmarshal(data, &f)
	if err != nil {
		return cfg, errors.Wrap(err, "decode config")
	}

	z := &cfg.ZSwitch
	z.SwitchX, z.SwitchY, z.SwitchZ = f.SwitchX, f.SwitchY, f.SwitchZ
	setFloat(&z.LiftZ, f.LiftZ)
	setFloat(&z.SafeStartZ, f.SafeStartZ)
	setFloat(&z.MoveSpeed, f.MoveSpeed)
	setFloat(&z.ZMoveSpeed, f.ZMoveSpeed)
	setInt(&z.Samples, f.Samples)
	setFloat(&z.SamplesTolerance, f.SamplesTolerance)
	// max count follows samples unless given
	z.SamplesMaxCount = z.Samples
	setInt(&z.SamplesMaxCount, f.SamplesMaxCount)
	if f.Method != nil {
		z.Method, err = zswitch.ParseMethod(*f.Method)
		if err != nil {
			return cfg, errors.Wrap(err, "z_calc_method")
		}
	}
	setInt(&z.TrimCount, f.TrimCount)
	setFloat(&z.RecoverLift, f.RecoverLift)
	if f.RecoverPauseMS != nil {
		z.RecoverPause = time.Duration(*f.RecoverPauseMS) * time.Millisecond
	}
	setInt(&z.RecoverMaxAttempts, f.RecoverMaxAttempts)
	setInt(&z.DefaultRefTool, f.DefaultRefTool)
	setFloat(&z.Probe.MaxDistance, f.ProbeMax)

	for name, src := range map[string]string{
		zswitch.HookStart:        f.StartGCode,
		zswitch.HookBeforePickup: f.BeforePickupGCode,
		zswitch.HookAfterPickup:  f.AfterPickupGCode,
		zswitch.HookFinish:       f.FinishGCode,
	} {
		if strings.TrimSpace(src) == "" {
			continue
		}
		blocks, err := gcode.Parse(src)
		if err != nil {
			return cfg, errors.Wrapf(err, "%s_gcode", name)
		}
		for _, b := range blocks {
			if err = b.Validate(); err != nil {
				return cfg, errors.Wrapf(err, "%s_gcode", name)
			}
		}
		cfg.Scripts[name] = blocks
	}

	m := &cfg.Machine
	m.Tools = f.Tools
	setInt(&m.InitialTool, f.InitialTool)
	if f.ChangePos != nil {
		m.ChangePos = coord.Point{X: f.ChangePos[0], Y: f.ChangePos[1], Z: f.ChangePos[2]}
	}
	setFloat(&m.TravelHeight, f.TravelHeight)
	setFloat(&m.ProbeFeed, f.ProbeFeed)

	setString(&cfg.Port, f.Port)
	if f.Baud != 0 {
		cfg.Baud = f.Baud
	}
	setString(&cfg.SPJS, f.SPJS)
	setString(&cfg.Addr, f.Addr)
	setString(&cfg.DB, f.DB)
	setString(&cfg.LogLevel, f.LogLevel)

	return cfg, cfg.Validate()
}

// Validate checks the machine and calibration settings.
func (c Config) Validate() error {
	err := c.ZSwitch.Validate()
	if err != nil {
		return err
	}
	seen := make(map[int]bool, len(c.Machine.Tools))
	for _, t := range c.Machine.Tools {
		if t < 0 {
			return errors.Errorf("tools: invalid tool number %d", t)
		}
		if seen[t] {
			return errors.Errorf("tools: T%d listed twice", t)
		}
		seen[t] = true
	}
	if c.Machine.ProbeFeed <= 0 {
		return errors.New("probe_feed must be > 0")
	}
	_, err = logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return errors.Wrap(err, "log_level")
	}
	return nil
}

// Load reads the JSON config at path, if it exists, then applies
// overrides from .env and the environment.
func Load(path string) (Config, error) {
	data := []byte("{}")
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logrus.Warnf("config file %s does not exist, using defaults", path)
		case err != nil:
			return Config{}, errors.Wrap(err, "read config")
		default:
			data = b
		}
	}
	cfg, err := Decode(data)
	if err != nil {
		return cfg, err
	}

	_ = godotenv.Load(".env") // ignore missing file
	err = cfg.applyEnv(os.Getenv)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }

	setString(&c.Port, env("ZCAL_PORT"))
	setString(&c.SPJS, env("ZCAL_SPJS"))
	setString(&c.Addr, env("ZCAL_ADDR"))
	setString(&c.DB, env("ZCAL_DB"))
	setString(&c.LogLevel, env("ZCAL_LOG_LEVEL"))
	if v := env("ZCAL_BAUD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "invalid ZCAL_BAUD")
		}
		c.Baud = n
	}
	return nil
}

package mga

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the tunables of the trajectory calculator and of the search.
type Config struct {
	// Differential evolution.
	CRMin           float64 `mapstructure:"cr_min"`
	CRMax           float64 `mapstructure:"cr_max"`
	CRExponent      float64 `mapstructure:"cr_exponent"`
	F               float64 `mapstructure:"f"`
	PopSizeDimScale int     `mapstructure:"popsize_dim_scale"`
	MaxGenerations  int     `mapstructure:"max_generations"`

	// DSM time offsets, as fractions of the leg duration.
	DSMOffsetMin         float64 `mapstructure:"dsm_offset_min"`
	DSMOffsetMax         float64 `mapstructure:"dsm_offset_max"`
	ResonantDSMOffsetMin float64 `mapstructure:"resonant_dsm_offset_min"`
	ResonantDSMOffsetMax float64 `mapstructure:"resonant_dsm_offset_max"`

	// Leg durations: transfer legs as multiples of the Hohmann time of flight between both orbits,
	// resonant legs as multiples of the body's period. MinLegDuration is in seconds.
	TransferLegMin float64 `mapstructure:"transfer_leg_min"`
	TransferLegMax float64 `mapstructure:"transfer_leg_max"`
	ResonantLegMin float64 `mapstructure:"resonant_leg_min"`
	ResonantLegMax float64 `mapstructure:"resonant_leg_max"`
	MinLegDuration float64 `mapstructure:"min_leg_duration"`

	// Ejection ΔV, as multiples of the ideal Hohmann ejection ΔV.
	EjectionDVScaleMin float64 `mapstructure:"ejection_dv_scale_min"`
	EjectionDVScaleMax float64 `mapstructure:"ejection_dv_scale_max"`

	// Insertion adds the circularization burn at the destination to the trajectory.
	Insertion bool `mapstructure:"insertion"`

	// Search.
	ProgressStep   int   `mapstructure:"progress_step"`
	SplitThreshold int   `mapstructure:"split_threshold"`
	MaxAttempts    int   `mapstructure:"max_attempts"`
	Workers        int   `mapstructure:"workers"`
	Seed           int64 `mapstructure:"seed"`
}

// DefaultConfig returns a configuration which works for interplanetary searches in the solar system.
func DefaultConfig() Config {
	return Config{
		CRMin:                0.1,
		CRMax:                0.9,
		CRExponent:           1,
		F:                    0.8,
		PopSizeDimScale:      50,
		MaxGenerations:       500,
		DSMOffsetMin:         0.01,
		DSMOffsetMax:         0.99,
		ResonantDSMOffsetMin: 0.1,
		ResonantDSMOffsetMax: 0.9,
		TransferLegMin:       0.35,
		TransferLegMax:       1.75,
		ResonantLegMin:       1,
		ResonantLegMax:       4,
		MinLegDuration:       6 * secondsPerDay,
		EjectionDVScaleMin:   0.9,
		EjectionDVScaleMax:   1.1,
		Insertion:            true,
		ProgressStep:         500,
		SplitThreshold:       100,
		MaxAttempts:          1000,
		Workers:              0,
		Seed:                 1,
	}
}

// settings returns the configuration as viper keys.
func (c Config) settings() map[string]interface{} {
	return map[string]interface{}{
		"cr_min":                  c.CRMin,
		"cr_max":                  c.CRMax,
		"cr_exponent":             c.CRExponent,
		"f":                       c.F,
		"popsize_dim_scale":       c.PopSizeDimScale,
		"max_generations":         c.MaxGenerations,
		"dsm_offset_min":          c.DSMOffsetMin,
		"dsm_offset_max":          c.DSMOffsetMax,
		"resonant_dsm_offset_min": c.ResonantDSMOffsetMin,
		"resonant_dsm_offset_max": c.ResonantDSMOffsetMax,
		"transfer_leg_min":        c.TransferLegMin,
		"transfer_leg_max":        c.TransferLegMax,
		"resonant_leg_min":        c.ResonantLegMin,
		"resonant_leg_max":        c.ResonantLegMax,
		"min_leg_duration":        c.MinLegDuration,
		"ejection_dv_scale_min":   c.EjectionDVScaleMin,
		"ejection_dv_scale_max":   c.EjectionDVScaleMax,
		"insertion":               c.Insertion,
		"progress_step":           c.ProgressStep,
		"split_threshold":         c.SplitThreshold,
		"max_attempts":            c.MaxAttempts,
		"workers":                 c.Workers,
		"seed":                    c.Seed,
	}
}

// RegisterDefaults sets the default configuration on the provided viper instance, under the provided
// key prefix (e.g. "search" for a [search] table in a scenario file).
func RegisterDefaults(v *viper.Viper, prefix string) {
	for key, value := range DefaultConfig().settings() {
		if prefix != "" {
			key = prefix + "." + key
		}
		v.SetDefault(key, value)
	}
}

// ConfigFromViper reads the configuration under the provided key prefix, and validates it.
// Keys are read one by one so that flags, environment variables and defaults bound to the full
// key take precedence as usual; missing keys keep their default value.
func ConfigFromViper(v *viper.Viper, prefix string) (Config, error) {
	sub := viper.New()
	for key, value := range DefaultConfig().settings() {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if v.IsSet(full) {
			value = v.Get(full)
		}
		sub.Set(key, value)
	}
	var c Config
	if err := sub.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("could not decode configuration: %w", err)
	}
	return c, c.Validate()
}

// LoadConfig reads the configuration file (TOML, YAML or JSON) at path, if any. Every key may be
// overwritten by an environment variable, e.g. MGA_MAX_GENERATIONS.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	RegisterDefaults(v, "")
	v.SetEnvPrefix("MGA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	return ConfigFromViper(v, "")
}

// Validate returns an error if the configuration bounds are inconsistent.
func (c Config) Validate() error {
	var errs []error
	bounds := func(name string, lo, hi, min, max float64) {
		if lo > hi || lo < min || hi > max {
			errs = append(errs, fmt.Errorf("%s bounds [%g, %g] must be ordered within [%g, %g]", name, lo, hi, min, max))
		}
	}
	bounds("CR", c.CRMin, c.CRMax, 0, 1)
	bounds("DSM offset", c.DSMOffsetMin, c.DSMOffsetMax, 0, 1)
	bounds("resonant DSM offset", c.ResonantDSMOffsetMin, c.ResonantDSMOffsetMax, 0, 1)
	bounds("transfer leg", c.TransferLegMin, c.TransferLegMax, 0, maxFloat)
	bounds("resonant leg", c.ResonantLegMin, c.ResonantLegMax, 0, maxFloat)
	bounds("ejection ΔV scale", c.EjectionDVScaleMin, c.EjectionDVScaleMax, 0, maxFloat)
	if c.CRExponent <= 0 {
		errs = append(errs, errors.New("CR exponent must be positive"))
	}
	if c.F <= 0 || c.F > 2 {
		errs = append(errs, fmt.Errorf("F=%g must be within (0, 2]", c.F))
	}
	if c.PopSizeDimScale < 1 {
		errs = append(errs, errors.New("population size scale must be at least 1"))
	}
	if c.MaxGenerations < 1 {
		errs = append(errs, errors.New("at least one generation is required"))
	}
	if c.MinLegDuration < 0 {
		errs = append(errs, errors.New("minimum leg duration cannot be negative"))
	}
	if c.ProgressStep < 1 {
		errs = append(errs, errors.New("progress step must be at least 1"))
	}
	if c.SplitThreshold < 1 {
		errs = append(errs, errors.New("split threshold must be at least 1"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, errors.New("at least one attempt is required"))
	}
	if c.Workers < 0 {
		errs = append(errs, errors.New("number of workers cannot be negative"))
	}
	return errors.Join(errs...)
}

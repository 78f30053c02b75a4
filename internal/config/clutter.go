package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigPath is the path to the canonical clutter defaults file.
const DefaultConfigPath = "config/clutter.defaults.json"

// ClutterConfig is the root configuration for a clutter run. Every field is
// optional; the Get* accessors supply defaults for anything left unset, so
// partial files are safe.
type ClutterConfig struct {
	// Thresholds on stdev/mean. Setting the max selects the range policy.
	ClutterThreshMin *float64 `json:"clutter_thresh_min,omitempty" mapstructure:"clutter_thresh_min"`
	ClutterThreshMax *float64 `json:"clutter_thresh_max,omitempty" mapstructure:"clutter_thresh_max"`

	// Dilation radius in gates.
	Radius *int `json:"radius,omitempty" mapstructure:"radius"`

	// Expected sweep shape. Frames of any other shape are skipped.
	// A zero value for both accepts the shape of the first readable frame.
	Rows *int `json:"rows,omitempty" mapstructure:"rows"`
	Cols *int `json:"cols,omitempty" mapstructure:"cols"`

	// Counting is "per_cell" or "scalar".
	Counting *string `json:"counting,omitempty" mapstructure:"counting"`

	// Output
	WriteRadar *bool   `json:"write_radar,omitempty" mapstructure:"write_radar"`
	OutFile    *string `json:"out_file,omitempty" mapstructure:"out_file"`
	FieldName  *string `json:"field_name,omitempty" mapstructure:"field_name"`

	// Input handling
	ReflectivityField *string `json:"reflectivity_field,omitempty" mapstructure:"reflectivity_field"`
	SkipUnreadable    *bool   `json:"skip_unreadable,omitempty" mapstructure:"skip_unreadable"`

	// Run ledger; empty disables recording.
	DBPath *string `json:"db_path,omitempty" mapstructure:"db_path"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyClutterConfig returns a ClutterConfig with all fields set to nil.
func EmptyClutterConfig() *ClutterConfig {
	return &ClutterConfig{}
}

// DefaultClutterConfig returns a config with every field populated from the
// built-in defaults.
func DefaultClutterConfig() *ClutterConfig {
	return &ClutterConfig{
		ClutterThreshMin:  ptrFloat64(0.0002),
		Radius:            ptrInt(1),
		Rows:              ptrInt(9200),
		Cols:              ptrInt(501),
		Counting:          ptrString("per_cell"),
		WriteRadar:        ptrBool(true),
		OutFile:           ptrString("xsapr_clutter.nc"),
		FieldName:         ptrString("xsapr_clutter"),
		ReflectivityField: ptrString("reflectivity"),
		SkipUnreadable:    ptrBool(false),
		DBPath:            ptrString(""),
	}
}

var supportedExts = map[string]bool{".json": true, ".toml": true, ".yaml": true, ".yml": true}

// LoadClutterConfig loads a ClutterConfig from a JSON, TOML or YAML file.
// Fields omitted from the file stay nil and fall back to the Get* defaults.
func LoadClutterConfig(path string) (*ClutterConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if !supportedExts[ext] {
		return nil, fmt.Errorf("config file must have .json, .toml or .yaml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	v := viper.New()
	v.SetConfigFile(cleanPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyClutterConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *ClutterConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadClutterConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable.
func (c *ClutterConfig) Validate() error {
	if c.ClutterThreshMin != nil {
		if v := *c.ClutterThreshMin; math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("clutter_thresh_min must be finite, got %v", v)
		}
	}
	if c.ClutterThreshMax != nil {
		if math.IsNaN(*c.ClutterThreshMax) {
			return fmt.Errorf("clutter_thresh_max must not be NaN")
		}
		if *c.ClutterThreshMax <= c.GetClutterThreshMin() {
			return fmt.Errorf("clutter_thresh_max (%v) must be greater than clutter_thresh_min (%v)",
				*c.ClutterThreshMax, c.GetClutterThreshMin())
		}
	}
	if c.Radius != nil && *c.Radius < 0 {
		return fmt.Errorf("radius must be non-negative, got %d", *c.Radius)
	}
	if c.Rows != nil && *c.Rows < 0 {
		return fmt.Errorf("rows must be non-negative, got %d", *c.Rows)
	}
	if c.Cols != nil && *c.Cols < 0 {
		return fmt.Errorf("cols must be non-negative, got %d", *c.Cols)
	}
	if (c.GetRows() == 0) != (c.GetCols() == 0) {
		return fmt.Errorf("rows and cols must both be set or both be zero, got %dx%d", c.GetRows(), c.GetCols())
	}
	if c.Counting != nil {
		switch strings.ToLower(strings.TrimSpace(*c.Counting)) {
		case "", "per_cell", "scalar":
		default:
			return fmt.Errorf("counting must be 'per_cell' or 'scalar', got %q", *c.Counting)
		}
	}
	if c.GetWriteRadar() && c.GetOutFile() == "" {
		return fmt.Errorf("out_file is required when write_radar is true")
	}
	return nil
}

// GetClutterThreshMin returns the clutter_thresh_min value or the default.
func (c *ClutterConfig) GetClutterThreshMin() float64 {
	if c.ClutterThreshMin == nil {
		return 0.0002
	}
	return *c.ClutterThreshMin
}

// GetClutterThreshMax returns clutter_thresh_max and whether it was set.
func (c *ClutterConfig) GetClutterThreshMax() (float64, bool) {
	if c.ClutterThreshMax == nil {
		return 0, false
	}
	return *c.ClutterThreshMax, true
}

// GetRadius returns the radius value or the default.
func (c *ClutterConfig) GetRadius() int {
	if c.Radius == nil {
		return 1
	}
	return *c.Radius
}

// GetRows returns the expected ray count or the default.
func (c *ClutterConfig) GetRows() int {
	if c.Rows == nil {
		return 9200
	}
	return *c.Rows
}

// GetCols returns the expected gate count or the default.
func (c *ClutterConfig) GetCols() int {
	if c.Cols == nil {
		return 501
	}
	return *c.Cols
}

// GetCounting returns the counting policy name or the default.
func (c *ClutterConfig) GetCounting() string {
	if c.Counting == nil || *c.Counting == "" {
		return "per_cell"
	}
	return strings.ToLower(*c.Counting)
}

// GetWriteRadar returns the write_radar value or the default.
func (c *ClutterConfig) GetWriteRadar() bool {
	if c.WriteRadar == nil {
		return true
	}
	return *c.WriteRadar
}

// GetOutFile returns the out_file value or the default.
func (c *ClutterConfig) GetOutFile() string {
	if c.OutFile == nil {
		return "xsapr_clutter.nc"
	}
	return *c.OutFile
}

// GetFieldName returns the output field name or the default.
func (c *ClutterConfig) GetFieldName() string {
	if c.FieldName == nil || *c.FieldName == "" {
		return "xsapr_clutter"
	}
	return *c.FieldName
}

// GetReflectivityField returns the input field name or the default.
func (c *ClutterConfig) GetReflectivityField() string {
	if c.ReflectivityField == nil || *c.ReflectivityField == "" {
		return "reflectivity"
	}
	return *c.ReflectivityField
}

// GetSkipUnreadable returns the skip_unreadable value or the default.
func (c *ClutterConfig) GetSkipUnreadable() bool {
	if c.SkipUnreadable == nil {
		return false
	}
	return *c.SkipUnreadable
}

// GetDBPath returns the run ledger path, empty when recording is disabled.
func (c *ClutterConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

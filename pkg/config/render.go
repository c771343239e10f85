package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// RenderOverrides replaces parts of the default log rendering vocabulary.
// Nil slices leave the corresponding default untouched. Icons is keyed by
// line class (error, warning, success, step, plain); classes it does not
// name keep their default icon.
type RenderOverrides struct {
	Tools           []string          `mapstructure:"tools"`
	ErrorKeywords   []string          `mapstructure:"error_keywords"`
	WarningKeywords []string          `mapstructure:"warning_keywords"`
	SuccessKeywords []string          `mapstructure:"success_keywords"`
	Icons           map[string]string `mapstructure:"icons"`
}

// LoadRenderOverrides reads a YAML or JSON file; the format follows the
// file extension. An empty path yields nil overrides.
func LoadRenderOverrides(path string) (*RenderOverrides, error) {
	if path == "" {
		return nil, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading render config: %w", err)
	}

	var o RenderOverrides
	if err := v.Unmarshal(&o); err != nil {
		return nil, fmt.Errorf("decoding render config: %w", err)
	}
	return &o, nil
}

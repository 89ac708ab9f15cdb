package profile

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/viper"
)

// LoadFile reads a draft profile from a YAML, JSON or TOML file. The result
// still has to go through Validate.
func LoadFile(path string) (Fields, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	return Fields(v.AllSettings()), nil
}

// FromJSON decodes a draft profile object.
func FromJSON(raw []byte) (Fields, error) {
	var f Fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return f, nil
}

// Merge overlays non-nil values from patch onto a copy of f.
func (f Fields) Merge(patch Fields) Fields {
	out := make(Fields, len(f)+len(patch))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range patch {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

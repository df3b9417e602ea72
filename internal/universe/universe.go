// Package universe lists the instruments the demos run over.
package universe

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed universe.yaml
var defaultUniverse []byte

type Instrument struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
	// Kind is informational ("stock", "hk", "index"); market routing is
	// decided by the code itself.
	Kind string `yaml:"kind"`
}

type Universe struct {
	Benchmark   Instrument   `yaml:"benchmark"`
	Instruments []Instrument `yaml:"instruments"`
	Backtest    Instrument   `yaml:"backtest"`
}

// Load returns the built-in universe.
func Load() (*Universe, error) {
	return Parse(defaultUniverse)
}

// LoadFile reads a universe from a YAML file with the same layout as the
// built-in one.
func LoadFile(path string) (*Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read universe: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Universe, error) {
	var u Universe
	if err := yaml.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("parse universe: %w", err)
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	for i := range u.Instruments {
		if u.Instruments[i].Kind == "" {
			u.Instruments[i].Kind = "stock"
		}
	}
	return &u, nil
}

func (u *Universe) Validate() error {
	if strings.TrimSpace(u.Benchmark.Code) == "" {
		return errors.New("universe: benchmark code is required")
	}
	if len(u.Instruments) == 0 {
		return errors.New("universe: at least one instrument is required")
	}
	seen := make(map[string]bool, len(u.Instruments))
	for _, inst := range u.Instruments {
		code := strings.TrimSpace(inst.Code)
		if code == "" {
			return errors.New("universe: instrument code is required")
		}
		if seen[code] {
			return fmt.Errorf("universe: duplicate instrument %s", code)
		}
		seen[code] = true
	}
	return nil
}

// Codes returns the instrument codes followed by the benchmark code, the
// order in which they are fetched.
func (u *Universe) Codes() []string {
	codes := make([]string, 0, len(u.Instruments)+1)
	for _, inst := range u.Instruments {
		codes = append(codes, inst.Code)
	}
	return append(codes, u.Benchmark.Code)
}

package ibis

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GPIOConfig is the on-disk form of a pin map: address -> {chip, offset}.
// Kept in YAML rather than JSON since it's an operator-edited deployment
// constant rather than part of the wire/persistence protocol, following
// this codebase's use of tocalls.yaml for a similarly small lookup table.
type GPIOConfig struct {
	Pins map[int]GPIOPin `yaml:"pins"`
}

// LoadGPIOConfig reads and parses a GPIO pin-map file. An empty path is
// not an error: it just means no GPIO lines are configured.
func LoadGPIOConfig(path string) (map[int]GPIOPin, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ibis: read GPIO config %s: %w", path, err)
	}

	var cfg GPIOConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ibis: parse GPIO config %s: %w", path, err)
	}

	for address := range cfg.Pins {
		if !ValidAddress(address) {
			return nil, fmt.Errorf("ibis: GPIO config %s: invalid address %d", path, address)
		}
	}

	return cfg.Pins, nil
}

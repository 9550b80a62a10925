package simulator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Plant describes the drivers and devices served by the simulator.
type Plant struct {
	Drivers []DriverSpec `yaml:"drivers"`
	Devices []DeviceSpec `yaml:"devices"`
}

type DriverSpec struct {
	Name    string `yaml:"name"`
	Offline bool   `yaml:"offline"` // driver refuses to go online
}

type DeviceSpec struct {
	Handle   uint32        `yaml:"handle"`
	Name     string        `yaml:"name"`
	Channels []ChannelSpec `yaml:"channels"`
}

type ChannelSpec struct {
	Name     string  `yaml:"name"`
	Unit     string  `yaml:"unit"`
	Value    float64 `yaml:"value"`
	Min      float64 `yaml:"min"`
	Max      float64 `yaml:"max"`
	NoRange  bool    `yaml:"no_range"`
	Spot     bool    `yaml:"spot"`
	Writable bool    `yaml:"writable"`
	Failing  bool    `yaml:"failing"` // reads and writes time out
}

// DefaultPlant is a single Sunny Boy behind two serial drivers.
var DefaultPlant = Plant{
	Drivers: []DriverSpec{{Name: "COM1"}, {Name: "COM2"}},
	Devices: []DeviceSpec{
		{
			Handle: 1001,
			Name:   "SB 3000",
			Channels: []ChannelSpec{
				{Name: "Upv-Ist", Unit: "V", Value: 312.5, Max: 600, Spot: true},
				{Name: "Iac-Ist", Unit: "mA", Value: 6520, Max: 20000, Spot: true},
				{Name: "Pac", Unit: "W", Value: 1500, Max: 3000, Spot: true, Writable: true},
				{Name: "E-Total", Unit: "kWh", Value: 10234.25, Max: 1e9, Spot: true},
				{Name: "h-Total", Unit: "h", Value: 20131, Max: 1e9, Spot: true},
				{Name: "Betriebsart", Value: 0, Max: 4, Writable: true},
			},
		},
	},
}

// LoadPlant reads a plant description from a YAML file.
func LoadPlant(path string) (Plant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plant{}, fmt.Errorf("failed to read plant file: %w", err)
	}
	return ParsePlant(data)
}

// ParsePlant decodes and validates a YAML plant description.
func ParsePlant(data []byte) (Plant, error) {
	var plant Plant
	if err := yaml.Unmarshal(data, &plant); err != nil {
		return Plant{}, fmt.Errorf("failed to parse plant: %w", err)
	}

	if err := plant.validate(); err != nil {
		return Plant{}, err
	}
	return plant, nil
}

func (p Plant) validate() error {
	handles := make(map[uint32]bool)
	for i, dev := range p.Devices {
		if dev.Name == "" {
			return fmt.Errorf("device %d: name is required", i)
		}
		if dev.Handle != 0 {
			if handles[dev.Handle] {
				return fmt.Errorf("device %s: duplicate handle %d", dev.Name, dev.Handle)
			}
			handles[dev.Handle] = true
		}

		names := make(map[string]bool)
		for _, ch := range dev.Channels {
			if ch.Name == "" {
				return fmt.Errorf("device %s: channel name is required", dev.Name)
			}
			if names[ch.Name] {
				return fmt.Errorf("device %s: duplicate channel %s", dev.Name, ch.Name)
			}
			names[ch.Name] = true

			if !ch.NoRange && ch.Min > ch.Max {
				return fmt.Errorf("device %s: channel %s: min %v greater than max %v", dev.Name, ch.Name, ch.Min, ch.Max)
			}
		}
	}
	return nil
}

package cadastre

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Thresholds: Thresholds{
			DupThr:         0.012,
			DistThr:        0.02,
			CathThr:        0.02,
			StraightThr:    2,
			AcuteThr:       10,
			AcuteInv:       5,
			DistInv:        0.1,
			MinArea:        0.05,
			AddrThr:        10,
			EntranceThr:    0.4,
			WarningMinArea: 1,
			WarningMaxArea: 30000,
		},
		Tasks: TaskConfig{
			MaxParts:    300,
			Buffer:      100,
			MissingZone: "missing",
		},
		BufferSize:    512,
		IndexCellSize: 50,
		MQTT: MQTTConfig{
			PublishPrefix: "cadmesh",
			QoS:           1,
			Retain:        true,
		},
	}
}

// LoadConfig loads a YAML configuration on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides MQTT settings from CADMESH_MQTT_* variables.
func (c *Config) ApplyEnv() {
	overrides := []struct {
		env string
		dst *string
	}{
		{"CADMESH_MQTT_BROKER", &c.MQTT.Broker},
		{"CADMESH_MQTT_CLIENT_ID", &c.MQTT.ClientID},
		{"CADMESH_MQTT_USERNAME", &c.MQTT.Username},
		{"CADMESH_MQTT_PASSWORD", &c.MQTT.Password},
		{"CADMESH_MQTT_PREFIX", &c.MQTT.PublishPrefix},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	t := c.Thresholds
	positive := []struct {
		name  string
		value float64
	}{
		{"thresholds.dupThr", t.DupThr},
		{"thresholds.distThr", t.DistThr},
		{"thresholds.cathThr", t.CathThr},
		{"thresholds.straightThr", t.StraightThr},
		{"thresholds.acuteThr", t.AcuteThr},
		{"thresholds.acuteInv", t.AcuteInv},
		{"thresholds.distInv", t.DistInv},
		{"thresholds.minArea", t.MinArea},
		{"thresholds.addrThr", t.AddrThr},
		{"thresholds.entranceThr", t.EntranceThr},
		{"indexCellSize", c.IndexCellSize},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return NewError(ErrCodeInvalidConfig, "%s must be positive, got %v", p.name, p.value)
		}
	}
	if t.DupThr > t.DistThr {
		return NewError(ErrCodeInvalidConfig, "thresholds.dupThr (%v) must not exceed thresholds.distThr (%v)", t.DupThr, t.DistThr)
	}
	if t.WarningMaxArea > 0 && t.WarningMinArea > t.WarningMaxArea {
		return NewError(ErrCodeInvalidConfig, "thresholds.warningMinArea must not exceed thresholds.warningMaxArea")
	}
	if c.BufferSize <= 0 {
		return NewError(ErrCodeInvalidConfig, "bufferSize must be positive, got %d", c.BufferSize)
	}
	if c.Tasks.MaxParts <= 0 {
		return NewError(ErrCodeInvalidConfig, "tasks.maxParts must be positive, got %d", c.Tasks.MaxParts)
	}
	if c.Tasks.Buffer < 0 {
		return NewError(ErrCodeInvalidConfig, "tasks.buffer must not be negative")
	}
	if c.Tasks.MissingZone == "" {
		return NewError(ErrCodeInvalidConfig, "tasks.missingZone is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return NewError(ErrCodeInvalidConfig, "mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.Transform != nil && c.Transform.Determinant() == 0 {
		return NewError(ErrCodeInvalidConfig, "transform is singular")
	}
	return nil
}

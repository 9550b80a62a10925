package api

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	bucket    = "inverter"
	configKey = "server_config"

	defaultConfigPath      = "yasdi.ini"
	defaultExpectedDevices = 1
	defaultMQTTPort        = 1883
	defaultTopicRoot       = "inverter"
	defaultPublishInterval = 10
)

type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	TopicRoot string `json:"topic_root"`
	Interval  int    `json:"interval"` // seconds between telemetry publications
}

// Config is the persistent server configuration.
type Config struct {
	UniqueID        string     `json:"unique_id"`
	ConfigPath      string     `json:"config_path"`      // YASDI ini file
	ExpectedDevices int        `json:"expected_devices"` // devices to wait for on detection
	MQTT            MQTTConfig `json:"mqtt"`
}

var defaultConfig = Config{
	ConfigPath:      defaultConfigPath,
	ExpectedDevices: defaultExpectedDevices,
	MQTT: MQTTConfig{
		Host:      "localhost",
		Port:      defaultMQTTPort,
		TopicRoot: defaultTopicRoot,
		Interval:  defaultPublishInterval,
	},
}

type Store struct {
	db *bolt.DB
}

// NewStore creates a new store instance and sets default values if they are not already set.
func NewStore(db *bolt.DB) (*Store, error) {
	st := Store{db: db}

	if err := st.setDefaults(); err != nil {
		return nil, err
	}
	return &st, nil
}

// setDefaults stores the default configuration with a fresh unique id
// unless a configuration is already present.
func (s *Store) setDefaults() error {
	if _, err := s.GetConfig(); err == nil {
		return nil
	}

	log.Infof("Setting default server config")
	cfg := defaultConfig
	cfg.UniqueID = uuid.NewString()
	return s.SetConfig(cfg)
}

func (c Config) validate() error {
	if c.ExpectedDevices < 1 {
		return fmt.Errorf("expected devices must be at least 1, got %d", c.ExpectedDevices)
	}
	if c.MQTT.Enabled {
		if c.MQTT.Host == "" {
			return fmt.Errorf("mqtt host cannot be empty")
		}
		if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
			return fmt.Errorf("invalid mqtt port: %d", c.MQTT.Port)
		}
		if c.MQTT.TopicRoot == "" {
			return fmt.Errorf("mqtt topic root cannot be empty")
		}
		if c.MQTT.Interval < 1 {
			return fmt.Errorf("invalid mqtt interval: %d", c.MQTT.Interval)
		}
	}
	return nil
}

// SetConfig saves the server configuration as a json string in the database.
func (s *Store) SetConfig(cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}

		value, _ := json.Marshal(cfg)
		return b.Put([]byte(configKey), value)
	})
}

// GetConfig retrieves the server configuration from the database.
func (s *Store) GetConfig() (Config, error) {
	var cfg Config

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}

		value := b.Get([]byte(configKey))
		if value == nil {
			return fmt.Errorf("key config not found")
		}

		return json.Unmarshal(value, &cfg)
	})

	return cfg, err
}

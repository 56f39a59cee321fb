package config

import (
	"fmt"

	"github.com/spf13/viper"
)

const DefaultPath = "/etc/billing-extract.conf"

// Config is the run configuration. The file is JSON, historically living
// under /etc; every run re-reads it from scratch.
type Config struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Project  string `mapstructure:"project"`
	Domain   string `mapstructure:"domain"`

	KeystoneURL   string `mapstructure:"keystone_url"`
	CeilometerURL string `mapstructure:"ceilometer_url"`

	Site     string `mapstructure:"site"`
	Resource string `mapstructure:"resource"`
	Region   string `mapstructure:"region"`
	DataDir  string `mapstructure:"datadir"`

	// ObjectStorage enables the radosgw bucket-stats source. Off by
	// default since most regions bill block storage only.
	ObjectStorage bool `mapstructure:"object_storage"`
}

// Load reads and validates the run configuration at path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields no run can proceed without.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"username", c.Username},
		{"password", c.Password},
		{"project", c.Project},
		{"domain", c.Domain},
		{"keystone_url", c.KeystoneURL},
		{"ceilometer_url", c.CeilometerURL},
		{"site", c.Site},
		{"resource", c.Resource},
		{"region", c.Region},
		{"datadir", c.DataDir},
	}
	for _, f := range required {
		if f.value == "" {
			return fmt.Errorf("config field %q is required", f.name)
		}
	}
	return nil
}

// Package config loads the server configuration: target instances with
// their credential material, the session's caller role, and operational
// settings. Values support ${VAR} environment expansion so secrets can stay
// out of the file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/groeimetai/snow-flow/internal/registry"
	"github.com/groeimetai/snow-flow/internal/snowclient"
)

// Instance is one ServiceNow target with its OAuth material.
type Instance struct {
	URL          string `yaml:"url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
}

// Config is the full server configuration.
type Config struct {
	DefaultInstance    string              `yaml:"default_instance"`
	Role               string              `yaml:"role"`
	Instances          map[string]Instance `yaml:"instances"`
	AuditDB            string              `yaml:"audit_db"`
	CallTimeoutSeconds int                 `yaml:"call_timeout_seconds"`
}

// Load reads the YAML file at path (optional; an empty path yields
// defaults), expands ${VAR} references, applies SNOW_* environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Role:               string(registry.RoleDeveloper),
		CallTimeoutSeconds: 60,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.expand()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets a single-instance deployment run with no config file at
// all: SNOW_INSTANCE_URL plus credentials define an instance named
// "default".
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("SNOW_ROLE")); v != "" {
		c.Role = v
	}
	if v := strings.TrimSpace(os.Getenv("SNOW_AUDIT_DB")); v != "" {
		c.AuditDB = v
	}

	url := strings.TrimSpace(os.Getenv("SNOW_INSTANCE_URL"))
	if url == "" {
		return
	}
	if c.Instances == nil {
		c.Instances = map[string]Instance{}
	}
	name := strings.TrimSpace(os.Getenv("SNOW_INSTANCE_NAME"))
	if name == "" {
		name = "default"
	}
	inst := c.Instances[name]
	inst.URL = url
	if v := os.Getenv("SNOW_CLIENT_ID"); v != "" {
		inst.ClientID = v
	}
	if v := os.Getenv("SNOW_CLIENT_SECRET"); v != "" {
		inst.ClientSecret = v
	}
	if v := os.Getenv("SNOW_REFRESH_TOKEN"); v != "" {
		inst.RefreshToken = v
	}
	if v := os.Getenv("SNOW_USERNAME"); v != "" {
		inst.Username = v
	}
	if v := os.Getenv("SNOW_PASSWORD"); v != "" {
		inst.Password = v
	}
	c.Instances[name] = inst
	if c.DefaultInstance == "" {
		c.DefaultInstance = name
	}
}

func (c *Config) expand() {
	for name, inst := range c.Instances {
		inst.URL = os.ExpandEnv(inst.URL)
		inst.ClientID = os.ExpandEnv(inst.ClientID)
		inst.ClientSecret = os.ExpandEnv(inst.ClientSecret)
		inst.RefreshToken = os.ExpandEnv(inst.RefreshToken)
		inst.Username = os.ExpandEnv(inst.Username)
		inst.Password = os.ExpandEnv(inst.Password)
		c.Instances[name] = inst
	}
	c.AuditDB = os.ExpandEnv(c.AuditDB)
}

func (c *Config) validate() error {
	if _, err := registry.ParseRole(c.Role); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if len(c.Instances) == 0 {
		return fmt.Errorf("config: no instances configured (set instances in the config file or SNOW_INSTANCE_URL)")
	}
	for name, inst := range c.Instances {
		if strings.TrimSpace(inst.URL) == "" {
			return fmt.Errorf("config: instance %s has no url", name)
		}
		if strings.TrimSpace(inst.ClientID) == "" {
			return fmt.Errorf("config: instance %s has no client_id", name)
		}
	}
	if c.DefaultInstance == "" {
		if len(c.Instances) == 1 {
			for name := range c.Instances {
				c.DefaultInstance = name
			}
		} else {
			return fmt.Errorf("config: default_instance is required with multiple instances")
		}
	}
	if _, ok := c.Instances[c.DefaultInstance]; !ok {
		return fmt.Errorf("config: default_instance %q is not a configured instance", c.DefaultInstance)
	}
	if c.CallTimeoutSeconds <= 0 {
		c.CallTimeoutSeconds = 60
	}
	return nil
}

// CallerRole returns the validated session role.
func (c *Config) CallerRole() registry.Role {
	role, _ := registry.ParseRole(c.Role)
	return role
}

// CallTimeout returns the per-call outbound timeout.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// Credentials converts the instance table to provider credentials.
func (c *Config) Credentials() map[string]snowclient.Credentials {
	creds := make(map[string]snowclient.Credentials, len(c.Instances))
	for name, inst := range c.Instances {
		creds[name] = snowclient.Credentials{
			BaseURL:      inst.URL,
			ClientID:     inst.ClientID,
			ClientSecret: inst.ClientSecret,
			RefreshToken: inst.RefreshToken,
			Username:     inst.Username,
			Password:     inst.Password,
		}
	}
	return creds
}

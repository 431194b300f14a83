// Package config provides a configuration manager that loads and watches a TOML configuration file.
//
// The file carries the dynamic parts of the service configuration: object
// storage settings and per-generator credentials. It can be edited while the
// service is running; changes are picked up without a restart.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/ubuntu/decorate"
)

// Provider is an interface that defines methods to access configuration values.
type Provider interface {
	Generator(name string) GeneratorConf
	Storage() StorageConf
}

// StorageConf holds the S3-compatible object storage settings.
type StorageConf struct {
	EndpointURL string `toml:"endpoint_url"`
	AccessKey   string `toml:"access_key"`
	SecretKey   string `toml:"secret_key"`
	Region      string `toml:"region"`
	CDNURL      string `toml:"cdn_url"`
	Bucket      string `toml:"bucket"`
}

// GeneratorConf holds the settings of a single image generator.
type GeneratorConf struct {
	APIKey string `toml:"api_key"`
}

// Conf represents the configuration structure.
type Conf struct {
	Storage    StorageConf              `toml:"storage"`
	Generators map[string]GeneratorConf `toml:"generators"`
}

// Manager is a struct that manages the configuration.
type Manager struct {
	config     Conf
	lock       sync.RWMutex
	configPath string

	log *slog.Logger
}

type options struct {
	Logger *slog.Logger
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// New creates a new configuration manager with the specified path.
func New(path string, args ...Options) *Manager {
	opts := options{
		Logger: slog.Default(),
	}

	for _, opt := range args {
		opt(&opts)
	}

	return &Manager{
		configPath: path,
		log:        opts.Logger,
	}
}

// Load reads the configuration from the specified file and updates the internal state.
//
// A missing file is not an error: the service then runs on environment
// variables alone, which is how the original deployment was configured.
func (cm *Manager) Load() (err error) {
	defer decorate.OnError(&err, "could not load configuration")

	var newConfig Conf
	if _, err := os.Stat(cm.configPath); err != nil {
		cm.log.Info("No generators configuration file, relying on environment variables", "path", cm.configPath)
	} else if _, err := toml.DecodeFile(cm.configPath, &newConfig); err != nil {
		return fmt.Errorf("decoding TOML: %w", err)
	}

	if newConfig.Generators == nil {
		newConfig.Generators = make(map[string]GeneratorConf)
	}
	newConfig.Storage = storageFromEnv(newConfig.Storage)

	cm.lock.Lock()
	cm.config = newConfig
	cm.lock.Unlock()

	cm.log.Info("Configuration loaded", "path", cm.configPath, "generators", len(newConfig.Generators))
	return nil
}

// Watch starts watching the configuration file for changes.
//
// It returns two channels: one for configuration changes which result in a successful load and another for unrecoverable watcher errors.
func (cm *Manager) Watch(ctx context.Context) (changes <-chan struct{}, errors <-chan error, err error) {
	defer decorate.OnError(&err, "could not watch configuration")

	watcher, err := newWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("creating watcher: %v", err)
	}

	configDir, _ := filepath.Split(cm.configPath)
	if configDir == "" {
		configDir = "."
	}
	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("adding directory %s to watcher: %v", configDir, err)
	}

	cm.log.Info("Watching configuration directory", "dir", configDir)
	changesCh := make(chan struct{}, 1)
	errorsCh := make(chan error, 1)

	// Initial load of the configuration
	if err := cm.Load(); err != nil {
		cm.log.Warn("Error loading initial config", "err", err)
	}

	go cm.watchLoop(ctx, watcher, changesCh, errorsCh)

	return changesCh, errorsCh, nil
}

// Generator returns the configuration of the named generator.
//
// Unknown names return the zero value so that generators can fall back to
// their environment variables.
func (cm *Manager) Generator(name string) GeneratorConf {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	return cm.config.Generators[name]
}

// Storage returns the object storage configuration.
func (cm *Manager) Storage() StorageConf {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	return cm.config.Storage
}

// Validate checks that the storage configuration is complete.
func (sc StorageConf) Validate() error {
	missing := []string{}
	for name, v := range map[string]string{
		"endpoint_url": sc.EndpointURL,
		"access_key":   sc.AccessKey,
		"secret_key":   sc.SecretKey,
		"region":       sc.Region,
		"cdn_url":      sc.CDNURL,
		"bucket":       sc.Bucket,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("incomplete storage configuration, missing: %v", missing)
	}
	return nil
}

// storageFromEnv overlays the S3_* environment variables over the file values.
// Environment wins, matching the original deployment contract.
func storageFromEnv(sc StorageConf) StorageConf {
	overlay := func(dst *string, envKey string) {
		if v := os.Getenv(envKey); v != "" {
			*dst = v
		}
	}
	overlay(&sc.EndpointURL, "S3_ENDPOINT_URL")
	overlay(&sc.AccessKey, "S3_ACCESS_KEY")
	overlay(&sc.SecretKey, "S3_SECRET_KEY")
	overlay(&sc.Region, "S3_REGION")
	overlay(&sc.CDNURL, "S3_CDN_URL")
	overlay(&sc.Bucket, "S3_BUCKET")
	return sc
}

// Config loading for the loom CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	// Config keys.
	cfgKeyDatabase   = "database"
	cfgKeyPrimaryKey = "primary_key"
	cfgKeyKeys       = "keys"

	// Defaults.
	defaultConfigDirName = ".loom"
	defaultDatabase      = "loom.db"
	defaultPrimaryKey    = "id"
	defaultKeys          = "auto"
)

// defaultConfigYAML is the content written to config.yaml on first run.
const defaultConfigYAML = `# Loom CLI configuration

# SQLite database path (overridable by --database flag)
database: loom.db

# Primary-key column name for applied tables
primary_key: id

# Primary-key assignment: auto (database autoincrement) or uuid
keys: auto
`

// loadConfig reads config.yaml from the config directory using Viper,
// creating the directory and a default config.yaml on first run. A
// missing config.yaml is not an error.
func loadConfig(configDir string) (*viper.Viper, error) {
	if configDir == "" {
		configDir = defaultConfigDirName
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyDatabase, defaultDatabase)
	v.SetDefault(cfgKeyPrimaryKey, defaultPrimaryKey)
	v.SetDefault(cfgKeyKeys, defaultKeys)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// ensureDefaultConfigFile creates a default config.yaml if the file does
// not exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

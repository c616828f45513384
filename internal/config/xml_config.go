// Package config provides XML-based configuration management for air-gapped deployment.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"PlotVisualizer"`

	Server     ServerConfig     `xml:"Server"`
	Storage    StorageConfig    `xml:"Storage"`
	Processing ProcessingConfig `xml:"Processing"`
	Plot       PlotConfig       `xml:"Plot"`
	Security   SecurityConfig   `xml:"Security"`
	Advanced   AdvancedConfig   `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port" validate:"min=1,max=65535"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds" validate:"min=0"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds" validate:"min=0"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds" validate:"min=0"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory       string `xml:"DataDirectory" validate:"required"`
	UploadsDirectory    string `xml:"UploadsDirectory" validate:"required"`
	TempDirectory       string `xml:"TempDirectory" validate:"required"`
	ParsedDataDirectory string `xml:"ParsedDataDirectory" validate:"required"`
	LayoutsDirectory    string `xml:"LayoutsDirectory" validate:"required"`
	// ConstantsFile maps message field values to symbolic names (YAML). Optional.
	ConstantsFile     string `xml:"ConstantsFile"`
	EnablePersistence bool   `xml:"EnablePersistence"`
}

// ProcessingConfig contains parsing and session settings
type ProcessingConfig struct {
	MaxSessions            int `xml:"MaxSessions" validate:"min=1"`
	SessionTimeoutMinutes  int `xml:"SessionTimeoutMinutes" validate:"min=1"`
	CleanupIntervalMinutes int `xml:"CleanupIntervalMinutes" validate:"min=1"`
	RecentFilesLimit       int `xml:"RecentFilesLimit" validate:"min=1"`
}

// PlotConfig contains chart output settings
type PlotConfig struct {
	DefaultWidth       int    `xml:"DefaultPNGWidth" validate:"min=64,max=8192"`
	DefaultHeight      int    `xml:"DefaultPNGHeight" validate:"min=64,max=8192"`
	LivePollIntervalMs int    `xml:"LivePollIntervalMs" validate:"min=50"`
	MetricsNamespace   string `xml:"MetricsNamespace" validate:"required"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	AllowFileDeletion bool   `xml:"AllowFileDeletion"`
	AllowedFileTypes  string `xml:"AllowedFileTypes"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel" validate:"oneof=debug info warn error dev"`
	EnableRequestLogging    bool   `xml:"EnableRequestLogging"`
	DuckDBThreads           int    `xml:"DuckDBThreads" validate:"min=1"`
	DuckDBMemoryLimit       string `xml:"DuckDBMemoryLimit"`
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB" validate:"min=1"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "2G",
		},
		Storage: StorageConfig{
			DataDirectory:       "./data",
			UploadsDirectory:    "./data/uploads",
			TempDirectory:       "./data/temp",
			ParsedDataDirectory: "./data/parsed",
			LayoutsDirectory:    "./data/layouts",
			ConstantsFile:       "./data/constants.yaml",
			EnablePersistence:   true,
		},
		Processing: ProcessingConfig{
			MaxSessions:            10,
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
			RecentFilesLimit:       20,
		},
		Plot: PlotConfig{
			DefaultWidth:       1024,
			DefaultHeight:      480,
			LivePollIntervalMs: 1000,
			MetricsNamespace:   "plotvisualizer",
		},
		Security: SecurityConfig{
			AllowFileDeletion: true,
			AllowedFileTypes:  ".jsonl,.json,.csv,.plotrec,.bin,.gz",
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			EnableRequestLogging:    true,
			DuckDBThreads:           4,
			DuckDBMemoryLimit:       "1GB",
			WebSocketMaxMessageSize: 64,
		},
	}
}

// LoadConfig loads configuration from an XML file, writing the defaults there
// on first run.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Unmarshal over the defaults so sections missing from older files keep them.
		if err := xml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks value ranges.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Plot Visualizer Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR moves every directory still under the default data root.
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		old := c.Storage.DataDirectory
		c.Storage.DataDirectory = dataDir
		for _, p := range []*string{
			&c.Storage.UploadsDirectory,
			&c.Storage.TempDirectory,
			&c.Storage.ParsedDataDirectory,
			&c.Storage.LayoutsDirectory,
			&c.Storage.ConstantsFile,
		} {
			if rel, err := filepath.Rel(old, *p); err == nil && !strings.HasPrefix(rel, "..") {
				*p = filepath.Join(dataDir, rel)
			}
		}
	}

	if tempDir := os.Getenv("DUCKDB_TEMP_DIR"); tempDir != "" {
		c.Storage.TempDirectory = tempDir
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = strings.ToLower(level)
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.UploadsDirectory,
		&c.Storage.TempDirectory,
		&c.Storage.ParsedDataDirectory,
		&c.Storage.LayoutsDirectory,
		&c.Storage.ConstantsFile,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// SessionTimeout is how long an idle session is kept.
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Processing.SessionTimeoutMinutes) * time.Minute
}

// CleanupInterval is the period of the session cleanup loop.
func (c *AppConfig) CleanupInterval() time.Duration {
	return time.Duration(c.Processing.CleanupIntervalMinutes) * time.Minute
}

// LivePollInterval is how often live feeds check for new data.
func (c *AppConfig) LivePollInterval() time.Duration {
	return time.Duration(c.Plot.LivePollIntervalMs) * time.Millisecond
}

// AllowedExtensions returns the lower-cased upload extensions. Empty means any.
func (c *AppConfig) AllowedExtensions() []string {
	var exts []string
	for _, e := range strings.Split(c.Security.AllowedFileTypes, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			exts = append(exts, e)
		}
	}
	return exts
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.TempDirectory,
		c.Storage.ParsedDataDirectory,
		c.Storage.LayoutsDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

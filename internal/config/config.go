package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

type Config struct {
	DataDir            string        `yaml:"dataDir"`
	UploadDir          string        `yaml:"uploadDir"`
	SpriteDir          string        `yaml:"spriteDir"`
	URLPrefix          string        `yaml:"urlPrefix"`
	Manifest           string        `yaml:"manifest"`
	DefaultSizeVariant string        `yaml:"defaultSizeVariant"`
	OutputFormat       string        `yaml:"outputFormat"`
	JPEGQuality        int           `yaml:"jpegQuality"`
	RecordBackend      string        `yaml:"recordBackend"`
	MinimumFreeGB      int           `yaml:"minimumFreeGB"`
	DecodeWorkers      int           `yaml:"decodeWorkers"`
	BuildTimeout       time.Duration `yaml:"buildTimeout"`
	LogLevel           string        `yaml:"logLevel"`
}

var sizeVariantPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Default returns the configuration used for every field a file leaves out.
func Default() Config {
	return Config{
		DataDir:            "data",
		UploadDir:          "uploads",
		SpriteDir:          "sprites",
		URLPrefix:          "/uploads",
		DefaultSizeVariant: "thumbnail",
		OutputFormat:       "jpeg",
		JPEGQuality:        90,
		RecordBackend:      BackendBadger,
		MinimumFreeGB:      1,
		DecodeWorkers:      4,
		BuildTimeout:       time.Minute,
		LogLevel:           "info",
	}
}

// LoadConfig reads a YAML file. Relative directories are resolved against
// the directory of the file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config %s: %w", path, err)
	}

	config, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("error in config %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for _, dir := range []*string{&config.DataDir, &config.UploadDir, &config.Manifest} {
		if *dir != "" && !filepath.IsAbs(*dir) {
			*dir = filepath.Join(base, *dir)
		}
	}
	return config, nil
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (Config, error) {
	config := Default()
	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return Config{}, err
	}
	config.fillDefaults()
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// explicit zero values in the file fall back to the defaults
func (c *Config) fillDefaults() {
	d := Default()
	if c.SpriteDir == "" {
		c.SpriteDir = d.SpriteDir
	}
	if c.DefaultSizeVariant == "" {
		c.DefaultSizeVariant = d.DefaultSizeVariant
	}
	if c.OutputFormat == "" {
		c.OutputFormat = d.OutputFormat
	}
	if c.JPEGQuality == 0 {
		c.JPEGQuality = d.JPEGQuality
	}
	if c.RecordBackend == "" {
		c.RecordBackend = d.RecordBackend
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	c.OutputFormat = strings.ToLower(c.OutputFormat)
	c.RecordBackend = strings.ToLower(c.RecordBackend)
}

func (c Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("dataDir must be set"))
	}
	if c.UploadDir == "" {
		errs = append(errs, errors.New("uploadDir must be set"))
	}
	if !sizeVariantPattern.MatchString(c.DefaultSizeVariant) {
		errs = append(errs, fmt.Errorf("defaultSizeVariant %q is invalid", c.DefaultSizeVariant))
	}
	switch c.OutputFormat {
	case "jpeg", "jpg", "png":
	default:
		errs = append(errs, fmt.Errorf("outputFormat %q is not jpeg or png", c.OutputFormat))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpegQuality %d is not between 1 and 100", c.JPEGQuality))
	}
	switch c.RecordBackend {
	case BackendBadger, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("recordBackend %q is not %s or %s", c.RecordBackend, BackendBadger, BackendSQLite))
	}
	if c.MinimumFreeGB < 0 {
		errs = append(errs, errors.New("minimumFreeGB must not be negative"))
	}
	if c.DecodeWorkers < 0 {
		errs = append(errs, errors.New("decodeWorkers must not be negative"))
	}
	if c.BuildTimeout < 0 {
		errs = append(errs, errors.New("buildTimeout must not be negative"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Logger returns a logrus logger at the configured level.
func (c Config) Logger() *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

package config

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"

	"github.com/uu-controllers/schunkgui/logging"
)

// Read reads a config from the given file. Environment variables in the file are expanded first.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	cfg := &Config{ConfigFilePath: originalPath}
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode Config from json")
	}
	if err := processConfig(cfg, logger); err != nil {
		return nil, errors.Wrap(err, "failed to process Config")
	}
	return cfg, nil
}

// processConfig applies defaults, resolves the description path against the config file's
// directory and validates the result.
func processConfig(cfg *Config, logger logging.Logger) error {
	cfg.applyDefaults()
	if cfg.DescriptionPath != "" && !filepath.IsAbs(cfg.DescriptionPath) && cfg.ConfigFilePath != "" {
		cfg.DescriptionPath = filepath.Join(filepath.Dir(cfg.ConfigFilePath), cfg.DescriptionPath)
	}
	if cfg.Transport.Bag != "" && !filepath.IsAbs(cfg.Transport.Bag) && cfg.ConfigFilePath != "" {
		cfg.Transport.Bag = filepath.Join(filepath.Dir(cfg.ConfigFilePath), cfg.Transport.Bag)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cfg.PoseEnabled() {
		logger.Warnw("root_frame or tip_frame not set, end effector pose reporting disabled",
			"root_frame", cfg.RootFrame, "tip_frame", cfg.TipFrame)
	}
	return nil
}

// Default returns a validated config for the given description file with every other field at its
// default. It is what the console runs with when no config file is given.
func Default(descriptionPath string, logger logging.Logger) (*Config, error) {
	cfg := &Config{DescriptionPath: descriptionPath}
	if err := processConfig(cfg, logger); err != nil {
		return nil, err
	}
	return cfg, nil
}

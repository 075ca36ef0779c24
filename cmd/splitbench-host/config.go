package main

import (
	"os"
	"sort"

	"github.com/splitbench/splitbench/pkg/offload/model"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultItems is the work-set size of a sweep when the experiment
	// config does not set one.
	DefaultItems = 10

	// DefaultResultsDir is where sweep results are written when the
	// experiment config does not name a directory.
	DefaultResultsDir = "./results"

	// DefaultLogLevel is the log level when the experiment config does not
	// set one.
	DefaultLogLevel = "info"
)

// Config drives one splitbench-host run. The compression, experiment,
// pipeline, congestion and metadata sections are forwarded to the server in
// the session config frame; the rest is host-local.
type Config struct {
	Logging     LoggingConfig           `yaml:"logging"`
	Experiment  model.ExperimentConfig  `yaml:"experiment"`
	Compression model.CompressionConfig `yaml:"compression"`
	Pipeline    model.PipelineConfig    `yaml:"pipeline"`
	Congestion  string                  `yaml:"congestion"`
	Metadata    map[string]string       `yaml:"metadata"`
	Sweep       SweepConfig             `yaml:"sweep"`
	Results     ResultsConfig           `yaml:"results"`
}

// LoggingConfig selects the host log level and an optional log file.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// SweepConfig sizes the synthetic work set.
type SweepConfig struct {
	Items int `yaml:"items"`
}

// ResultsConfig selects where sweep results are written.
type ResultsConfig struct {
	Dir string `yaml:"dir"`
}

// loadConfig reads and parses a YAML experiment config file.
func loadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	applyDefaults(&cfg)
	return cfg, nil
}

// defaultConfig returns the config used when no experiment file is given.
func defaultConfig() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// applyDefaults fills in default values when empty.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Sweep.Items == 0 {
		cfg.Sweep.Items = DefaultItems
	}
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = DefaultResultsDir
	}
}

// sessionConfig assembles the session config sent to the server during the
// offload handshake.
func (c Config) sessionConfig(mid string) model.SessionConfig {
	sc := model.SessionConfig{
		MeasurementID:     mid,
		CongestionControl: c.Congestion,
		Metadata:          metadataPairs(c.Metadata),
		Compression:       c.Compression,
		Experiment:        c.Experiment,
		Pipeline:          c.Pipeline,
	}
	sc.ApplyDefaults()
	return sc
}

// metadataPairs flattens the YAML metadata map into name/value pairs with a
// stable order, so identical configs produce identical config frames.
func metadataPairs(m map[string]string) []model.NameValue {
	if len(m) == 0 {
		return nil
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]model.NameValue, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, model.NameValue{Name: name, Value: m[name]})
	}
	return pairs
}

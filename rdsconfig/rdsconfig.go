// Package rdsconfig provides support for reading and using a JSON
// configuration file for the RDS decoder.
//
// An example config file:
//
//	{
//		"event_log_directory": "/var/log/rdsdecode",
//		"tmc_local_directory": "/etc/rdsdecode/tmc-local",
//		"ber_window_cap": 40,
//		"ber_grace_count": 10,
//		"ps_history_capacity": 200,
//		"rt_history_capacity": 200,
//		"publisher_tick_cron": "@every 1s",
//		"overpass_endpoints": ["https://overpass-api.de/api/interpreter"],
//		"resolver_batch_size": 50,
//		"resolver_min_batch_interval_ms": 1100,
//		"resolver_timeout_ms": 20000
//	}
//
// Grounded on the teacher's jsonconfig.Config: a flat struct with json
// tags, read via GetJSONConfigFromFile, with an unexported *log.Logger
// field filled in by the caller rather than unmarshalled from the file.
package rdsconfig

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
)

// Config holds every tunable for one rdsdecode process.
type Config struct {
	// EventLogDirectory is where the daily-rotating decode event log is
	// written.
	EventLogDirectory string `json:"event_log_directory"`

	// TMCLocalDirectory is the root of the local-first TMC location
	// lookup files, checked before any Overpass API call is made.
	TMCLocalDirectory string `json:"tmc_local_directory"`

	// BERWindowCap is the sliding window size for the bit-error-rate
	// estimator. Zero means use the package default.
	BERWindowCap int `json:"ber_window_cap"`

	// BERGraceCount is how many successful groups are absorbed before the
	// BER window starts counting. Zero means use the package default.
	BERGraceCount int `json:"ber_grace_count"`

	// PSHistoryCapacity and RTHistoryCapacity bound the stable-value
	// history rings. Zero means use the package default.
	PSHistoryCapacity int `json:"ps_history_capacity"`
	RTHistoryCapacity int `json:"rt_history_capacity"`

	// PublisherTickCron is the cron expression driving the snapshot
	// publisher's tick.
	PublisherTickCron string `json:"publisher_tick_cron"`

	// OverpassEndpoints is the rotation of Overpass API base URLs the TMC
	// resolver falls back to when a location isn't in the local files.
	OverpassEndpoints []string `json:"overpass_endpoints"`

	// ResolverBatchSize is the number of pending lookups grouped into one
	// Overpass query.
	ResolverBatchSize int `json:"resolver_batch_size"`

	// ResolverMinBatchIntervalMS is the minimum delay enforced between
	// successive resolver batches, in milliseconds.
	ResolverMinBatchIntervalMS int `json:"resolver_min_batch_interval_ms"`

	// ResolverTimeoutMS bounds a single Overpass request, in milliseconds.
	ResolverTimeoutMS int `json:"resolver_timeout_ms"`

	// systemLog is the daily activity logger, supplied by the caller
	// rather than unmarshalled from the file.
	systemLog *log.Logger
}

// Log returns the configured system logger, which may be nil.
func (c *Config) Log() *log.Logger {
	return c.systemLog
}

// GetConfigFromFile reads and parses configFileName, attaching systemLog
// to the result.
func GetConfigFromFile(configFileName string, systemLog *log.Logger) (*Config, error) {
	f, err := os.Open(configFileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return getConfig(f, systemLog)
}

func getConfig(source io.Reader, systemLog *log.Logger) (*Config, error) {
	body, err := io.ReadAll(source)
	if err != nil {
		return nil, fmt.Errorf("cannot read the JSON control file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(body, &config); err != nil {
		return nil, fmt.Errorf("cannot parse the JSON control file: %w", err)
	}

	config.systemLog = systemLog
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.BERWindowCap == 0 {
		c.BERWindowCap = 40
	}
	if c.BERGraceCount == 0 {
		c.BERGraceCount = 10
	}
	if c.PSHistoryCapacity == 0 {
		c.PSHistoryCapacity = 200
	}
	if c.RTHistoryCapacity == 0 {
		c.RTHistoryCapacity = 200
	}
	if c.PublisherTickCron == "" {
		c.PublisherTickCron = "@every 1s"
	}
	if c.ResolverBatchSize == 0 {
		c.ResolverBatchSize = 50
	}
	if c.ResolverMinBatchIntervalMS == 0 {
		c.ResolverMinBatchIntervalMS = 1100
	}
	if c.ResolverTimeoutMS == 0 {
		c.ResolverTimeoutMS = 20000
	}
}

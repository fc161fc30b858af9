package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/fileforge/fileforge/internal/flagx"
	"github.com/fileforge/fileforge/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "15m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config
// struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP       string         `json:"endpoint_addr_http"`
	DatabaseDSN            string         `json:"database_dsn"`
	SecretKey              string         `json:"secret_key"`
	RedisAddr              string         `json:"redis_addr"`
	RedisPassword          string         `json:"redis_password"`
	RedisDB                int            `json:"redis_db"`
	S3AccessKey            string         `json:"s3_access_key"`
	S3SecretKey            string         `json:"s3_secret_key"`
	S3Region               string         `json:"s3_region"`
	S3BaseEndpoint         string         `json:"s3_base_endpoint"`
	S3Bucket               string         `json:"s3_bucket"`
	S3GuestBucket          string         `json:"s3_guest_bucket"`
	SignValidityDuration   timex.Duration `json:"sign_validity_duration"`
	GuestRetentionDuration timex.Duration `json:"guest_retention_duration"`
	SweepInterval          timex.Duration `json:"sweep_interval"`
	UsagePurgeInterval     timex.Duration `json:"usage_purge_interval"`
	UsageRetentionDuration timex.Duration `json:"usage_retention_duration"`
	BlockCooldownDuration  timex.Duration `json:"block_cooldown_duration"`
	SuspicionThreshold     int            `json:"suspicion_threshold"`
	MaxActiveKeysStandard  int            `json:"max_active_keys_standard"`
	MaxActiveKeysElevated  int            `json:"max_active_keys_elevated"`
	MediaPoolSize          int            `json:"media_pool_size"`
	UsageBufferSize        int            `json:"usage_buffer_size"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags; when neither
// is set, no JSON file is loaded. If the file cannot be read or contains
// invalid JSON, the function panics. The caller merges these values with
// defaults and command-line flags as part of the full configuration process.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.RedisAddr = c.RedisAddr
	config.RedisPassword = c.RedisPassword
	config.RedisDB = c.RedisDB
	config.S3AccessKey = c.S3AccessKey
	config.S3SecretKey = c.S3SecretKey
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.S3Bucket = c.S3Bucket
	config.S3GuestBucket = c.S3GuestBucket
	config.SignValidityDuration = time.Duration(c.SignValidityDuration.Duration)
	config.GuestRetentionDuration = time.Duration(c.GuestRetentionDuration.Duration)
	config.SweepInterval = time.Duration(c.SweepInterval.Duration)
	config.UsagePurgeInterval = time.Duration(c.UsagePurgeInterval.Duration)
	config.UsageRetentionDuration = time.Duration(c.UsageRetentionDuration.Duration)
	config.BlockCooldownDuration = time.Duration(c.BlockCooldownDuration.Duration)
	config.SuspicionThreshold = c.SuspicionThreshold
	config.MaxActiveKeysStandard = c.MaxActiveKeysStandard
	config.MaxActiveKeysElevated = c.MaxActiveKeysElevated
	config.MediaPoolSize = c.MediaPoolSize
	config.UsageBufferSize = c.UsageBufferSize
}

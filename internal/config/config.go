// Package config loads process configuration from an optional .env
// file overlaid by environment variables, bound into a typed struct
// through viper+mapstructure.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// WorkerConfig is shared by the submit and confirm workers.
type WorkerConfig struct {
	MaxAttempts     int `mapstructure:"maxAttempts"`
	QueueDelaySec   int `mapstructure:"queueDelaySec"`
	QueueHiddenSec  int `mapstructure:"queueHiddenSec"`
}

// Web3Config carries the chain RPC endpoint used by internal/chainclient.
type Web3Config struct {
	RPCURL         string `mapstructure:"rpcUrl"`
	PoolAddress    string `mapstructure:"poolAddress"`
	DDQueueAddress string `mapstructure:"ddQueueAddress"`
}

// Telemetry is accepted and carried through; no exporter is wired in
// this build.
type Telemetry struct {
	Enabled bool   `mapstructure:"enabled"`
	Tracer  string `mapstructure:"tracer"`
}

// VersionConfig names the build this process was started from, served
// verbatim by GET /version.
type VersionConfig struct {
	Ref        string `mapstructure:"ref"`
	CommitHash string `mapstructure:"commitHash"`
}

// Config is the full process configuration.
type Config struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	TransferParamsPath string        `mapstructure:"transferParamsPath"`
	DBPath             string        `mapstructure:"dbPath"`
	RelayerURL         string        `mapstructure:"relayerUrl"`
	RedisURL           string        `mapstructure:"redisUrl"`
	AdminToken         string        `mapstructure:"adminToken"`
	Web3               Web3Config    `mapstructure:"web3"`
	SendWorker         WorkerConfig  `mapstructure:"sendWorker"`
	StatusWorker       WorkerConfig  `mapstructure:"statusWorker"`
	Telemetry          Telemetry     `mapstructure:"telemetry"`
	Version            VersionConfig `mapstructure:"version"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8000)
	v.SetDefault("dbPath", "./db")
	v.SetDefault("sendWorker.maxAttempts", 5)
	v.SetDefault("sendWorker.queueDelaySec", 0)
	v.SetDefault("sendWorker.queueHiddenSec", 30)
	v.SetDefault("statusWorker.maxAttempts", 5)
	v.SetDefault("statusWorker.queueDelaySec", 0)
	v.SetDefault("statusWorker.queueHiddenSec", 5)
}

// Load reads an optional .env file at envFile, then binds environment
// variables (nested fields addressed as SENDWORKER_MAXATTEMPTS, etc)
// and returns the resolved Config.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	defaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range []string{
		"host", "port", "transferParamsPath", "dbPath", "relayerUrl", "redisUrl",
		"adminToken", "web3.rpcUrl", "web3.poolAddress", "web3.ddQueueAddress",
		"sendWorker.maxAttempts", "sendWorker.queueDelaySec", "sendWorker.queueHiddenSec",
		"statusWorker.maxAttempts", "statusWorker.queueDelaySec", "statusWorker.queueHiddenSec",
		"telemetry.enabled", "telemetry.tracer", "version.ref", "version.commitHash",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env key %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if cfg.AdminToken == "" {
		return nil, fmt.Errorf("adminToken is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redisUrl is required")
	}
	return &cfg, nil
}

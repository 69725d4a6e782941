package config

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

const (
	DefaultRetryBackoffBase        = 100 * time.Millisecond
	DefaultRetryBackoffCap         = 5 * time.Second
	DefaultWriteConflictMaxRetries = 10
	DefaultMajorityPollInterval    = 50 * time.Millisecond
	DefaultQdbType                 = "etcd"
)

var cfgDonor Donor

type Donor struct {
	LogLevel      string `json:"log_level" toml:"log_level" yaml:"log_level"`
	LogFileName   string `json:"log_filename" toml:"log_filename" yaml:"log_filename"`
	PrettyLogging bool   `json:"pretty_logging" toml:"pretty_logging" yaml:"pretty_logging"`

	QdbType       string `json:"qdb_type" toml:"qdb_type" yaml:"qdb_type"`
	QdbAddr       string `json:"qdb_addr" toml:"qdb_addr" yaml:"qdb_addr"`
	MemQdbBackup  string `json:"memqdb_backup_path" toml:"memqdb_backup_path" yaml:"memqdb_backup_path"`
	ShardID       string `json:"shard_id" toml:"shard_id" yaml:"shard_id"`
	ShardConnStr  string `json:"shard_conn_str" toml:"shard_conn_str" yaml:"shard_conn_str"`
	ReplicaCount  int    `json:"replica_count" toml:"replica_count" yaml:"replica_count"`
	ReshardSchema string `json:"reshard_schema" toml:"reshard_schema" yaml:"reshard_schema"`
	MetricsAddr   string `json:"metrics_addr" toml:"metrics_addr" yaml:"metrics_addr"`

	RetryBackoffBase        time.Duration `json:"retry_backoff_base" toml:"retry_backoff_base" yaml:"retry_backoff_base"`
	RetryBackoffCap         time.Duration `json:"retry_backoff_cap" toml:"retry_backoff_cap" yaml:"retry_backoff_cap"`
	WriteConflictMaxRetries uint64        `json:"write_conflict_max_retries" toml:"write_conflict_max_retries" yaml:"write_conflict_max_retries"`
	MajorityPollInterval    time.Duration `json:"majority_poll_interval" toml:"majority_poll_interval" yaml:"majority_poll_interval"`

	LatencyQuantiles []float64 `json:"latency_quantiles" toml:"latency_quantiles" yaml:"latency_quantiles"`
}

// LoadDonorCfg loads the donor configuration from the specified file path.
//
// Parameters:
//   - cfgPath (string): The path of the configuration file.
//
// Returns:
//   - string: JSON-formatted config
//   - error: An error if any occurred during the loading process.
func LoadDonorCfg(cfgPath string) (string, error) {
	var dcfg Donor
	file, err := os.Open(cfgPath)
	if err != nil {
		return "", err
	}
	defer func(file *os.File) {
		err := file.Close()
		if err != nil {
			log.Fatalf("failed to close config file: %v", err)
		}
	}(file)

	if err := decodeConfig(file.Name(), file, &dcfg); err != nil {
		return "", err
	}
	dcfg.applyDefaults()
	cfgDonor = dcfg

	configBytes, err := json.MarshalIndent(&cfgDonor, "", "  ")
	if err != nil {
		return "", err
	}

	return string(configBytes), nil
}

func (d *Donor) applyDefaults() {
	if d.QdbType == "" {
		d.QdbType = DefaultQdbType
	}
	if d.RetryBackoffBase == 0 {
		d.RetryBackoffBase = DefaultRetryBackoffBase
	}
	if d.RetryBackoffCap == 0 {
		d.RetryBackoffCap = DefaultRetryBackoffCap
	}
	if d.WriteConflictMaxRetries == 0 {
		d.WriteConflictMaxRetries = DefaultWriteConflictMaxRetries
	}
	if d.MajorityPollInterval == 0 {
		d.MajorityPollInterval = DefaultMajorityPollInterval
	}
	if d.ReplicaCount == 0 {
		d.ReplicaCount = 1
	}
	if d.ReshardSchema == "" {
		d.ReshardSchema = "spqr_resharding"
	}
	if len(d.LatencyQuantiles) == 0 {
		d.LatencyQuantiles = []float64{0.5, 0.9, 0.99}
	}
}

// DonorConfig returns a pointer to the Donor configuration.
// Before LoadDonorCfg is called it holds the defaults.
func DonorConfig() *Donor {
	return &cfgDonor
}

func init() {
	cfgDonor.applyDefaults()
}

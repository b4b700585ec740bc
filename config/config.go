// Package config loads the worker client's configuration from a TOML
// file layered over Default(). No CLI flag overrides an individual key;
// the command line only chooses which file is read. Recognized keys are
// exactly spec.md §6's list plus the store/log ambient additions.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"
	"unicode"

	"github.com/naoina/toml"
)

// Ledger holds the provider endpoint, account identity, and contract
// addresses (spec.md §6 `ledger.*`).
type Ledger struct {
	RPCURL                    string `toml:"rpc_url"`
	WalletPrivateKey          string `toml:"wallet_private_key"`
	WalletAddress             string `toml:"wallet_address"`
	TaskQueueAddress          string `toml:"task_queue_address"`
	WorkflowEngineAddress     string `toml:"workflow_engine_address"`
	SubnetControlPlaneAddress string `toml:"subnet_control_plane_address"`
}

// Scheduler tunes the Poller and Assigner (spec.md §6 `scheduler.*`).
// PollInterval is a Go duration string (e.g. "3s") rather than a native
// time.Duration field, since the TOML decoder has no custom unmarshaler
// registered for it.
type Scheduler struct {
	PollInterval string `toml:"poll_interval"`
	MaxInflight  int    `toml:"max_inflight"`
	QueueName    string `toml:"queue_name"`
}

// PollIntervalDuration parses PollInterval, falling back to 3s if it
// is empty or malformed.
func (s Scheduler) PollIntervalDuration() time.Duration {
	if s.PollInterval == "" {
		return 3 * time.Second
	}
	d, err := time.ParseDuration(s.PollInterval)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

// TxPolicy tunes the Broadcaster's fee-bump behavior (spec.md §6
// `tx_policy.*`). Only GasBumpPercent is a recognized config key; the
// remaining broadcaster.Policy fields take their defaults.
type TxPolicy struct {
	GasBumpPercent uint32 `toml:"gas_bump_percent"`
}

// WEP holds the WEP stream connection address (spec.md §6 `wep.*`).
type WEP struct {
	Endpoint string `toml:"endpoint"`
}

// Protocol holds the accepted semver range for the startup gate
// (spec.md §6 `protocol.*`).
type Protocol struct {
	ContractMin string `toml:"contract_min"`
	ContractMax string `toml:"contract_max"`
}

// Store selects the persistent state engine and its data directory —
// needed because spec.md §6's "Database directory path is a startup
// parameter" has to resolve to a concrete engine choice.
type Store struct {
	Type    string `toml:"type"`
	DataDir string `toml:"data_dir"`
}

// Log holds ambient logging knobs, carried regardless of any
// Non-goal naming an observability layer.
type Log struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// Config is the complete recognized configuration surface.
type Config struct {
	Ledger    Ledger    `toml:"ledger"`
	Scheduler Scheduler `toml:"scheduler"`
	TxPolicy  TxPolicy  `toml:"tx_policy"`
	WEP       WEP       `toml:"wep"`
	Protocol  Protocol  `toml:"protocol"`
	Store     Store     `toml:"store"`
	Log       Log       `toml:"log"`
	DevMode   bool      `toml:"dev_mode"`
}

// Default returns a Config with the ambient defaults the worker runs
// with when a key is absent from the file.
func Default() Config {
	return Config{
		Scheduler: Scheduler{
			PollInterval: "3s",
			MaxInflight:  4,
			QueueName:    "default",
		},
		TxPolicy: TxPolicy{
			GasBumpPercent: 10,
		},
		Protocol: Protocol{
			ContractMin: "1.0.0",
			ContractMax: "1.0.0",
		},
		Store: Store{
			Type:    "leveldb",
			DataDir: "./data",
		},
		Log: Log{
			Level: "info",
			JSON:  false,
		},
	}
}

// tomlSettings keeps TOML keys matching the explicit `toml` struct
// tags rather than normalizing field names, matching the
// cmd/ranger/config.go convention this package is adapted from.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see %s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// Load reads file on top of Default(), returning the merged Config.
// A missing field in the TOML file is not an error; an unrecognized
// one is.
func Load(file string) (Config, error) {
	cfg := Default()
	f, err := os.Open(file)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return cfg, err
}

package config

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	f, err := ioutil.TempFile("", "workerclient-config-*.toml")
	require.NoError(t, err)
	_, err = f.WriteString(body)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeTemp(t, `
dev_mode = true

[ledger]
rpc_url = "http://127.0.0.1:8545"
wallet_private_key = "deadbeef"
wallet_address = "0xabc"
task_queue_address = "0x1"
workflow_engine_address = "0x2"
subnet_control_plane_address = "0x3"

[scheduler]
poll_interval = "5s"
max_inflight = 8
queue_name = "video/1.0.0/processing"

[tx_policy]
gas_bump_percent = 15

[wep]
endpoint = "127.0.0.1:9000"

[protocol]
contract_min = "1.0.0"
contract_max = "1.2.0"

[store]
type = "badger"
data_dir = "/var/lib/workerclient"

[log]
level = "debug"
json = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.DevMode)
	assert.Equal(t, "http://127.0.0.1:8545", cfg.Ledger.RPCURL)
	assert.Equal(t, "0x1", cfg.Ledger.TaskQueueAddress)
	assert.Equal(t, "5s", cfg.Scheduler.PollInterval)
	assert.Equal(t, 8, cfg.Scheduler.MaxInflight)
	assert.Equal(t, "video/1.0.0/processing", cfg.Scheduler.QueueName)
	assert.EqualValues(t, 15, cfg.TxPolicy.GasBumpPercent)
	assert.Equal(t, "127.0.0.1:9000", cfg.WEP.Endpoint)
	assert.Equal(t, "1.2.0", cfg.Protocol.ContractMax)
	assert.Equal(t, "badger", cfg.Store.Type)
	assert.Equal(t, "/var/lib/workerclient", cfg.Store.DataDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
}

func TestLoadKeepsDefaultsForAbsentSections(t *testing.T) {
	path := writeTemp(t, `
[ledger]
rpc_url = "http://127.0.0.1:8545"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "leveldb", cfg.Store.Type, "store defaults carry through when the file omits [store]")
	assert.Equal(t, 4, cfg.Scheduler.MaxInflight)
	assert.EqualValues(t, 10, cfg.TxPolicy.GasBumpPercent)
	assert.False(t, cfg.DevMode)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/workerclient.toml")
	assert.Error(t, err)
}

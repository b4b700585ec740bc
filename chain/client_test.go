package chain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piplabs/subnet-worker-client/store"
)

func newTestClient(t *testing.T) (*Client, *FakeProvider, store.Store) {
	t.Helper()
	db := store.NewMemDatabase()
	fp := NewFakeProvider()
	signer := &FakeSigner{Addr: Address{0x01}}
	contracts := Contracts{
		TaskQueue:          Address{0x10},
		WorkflowEngine:     Address{0x11},
		SubnetControlPlane: Address{0x12},
	}
	return NewClient(fp, signer, db, contracts, zap.NewNop()), fp, db
}

func TestAllocateNonceSeedsFromProviderOnce(t *testing.T) {
	c, fp, db := newTestClient(t)
	fp.PendingNonce = 5

	n, err := c.AllocateNonce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)

	last, ok, err := store.ReadNonceLast(db)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(5), last)
}

func TestAllocateNonceIncrementsFromStoredValue(t *testing.T) {
	c, _, db := newTestClient(t)
	require.NoError(t, store.WriteNonceLast(db, 41))

	n, err := c.AllocateNonce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)
}

func TestResyncNonceAfterDrift(t *testing.T) {
	c, fp, db := newTestClient(t)
	require.NoError(t, store.WriteNonceLast(db, 7))
	fp.PendingNonce = 9 // provider says next is 9, i.e. 8 was the last issued

	require.NoError(t, c.ResyncNonce(context.Background()))

	last, ok, err := store.ReadNonceLast(db)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(8), last)
}

func TestPollActivityDecodesResult(t *testing.T) {
	c, fp, _ := newTestClient(t)
	var id Hash
	id[31] = 0x2a
	ret := pollActivityFixture(id, true)
	fp.SetCallReturn(c.TaskQueueAddress(), PollActivityCalldata("video/1.0.0/processing", 16), ret)

	gotID, has, err := c.PollActivity(context.Background(), "video/1.0.0/processing", 16)
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, id, gotID)
}

func TestIsWorkerActiveAndProtocolVersion(t *testing.T) {
	c, fp, _ := newTestClient(t)
	fp.SetCallReturn(c.SubnetControlPlaneAddress(), IsWorkerActiveCalldata(c.Address()), word([]byte{1}))
	fp.SetCallReturn(c.SubnetControlPlaneAddress(), GetProtocolVersionCalldata(), encodeDynamicBytes([]byte("0.2.1")))

	active, err := c.IsWorkerActive(context.Background(), c.Address())
	require.NoError(t, err)
	assert.True(t, active)

	ver, err := c.GetProtocolVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.2.1", ver)
}

func TestSendTxSurfacesNonceDriftClassification(t *testing.T) {
	c, fp, _ := newTestClient(t)
	fp.SendErr = errString("nonce too low: have 3 want 9")

	tx, err := c.Sign(c.TaskQueueAddress(), c.ClaimCalldata(Hash{}), 3, "1000", "1", 100000)
	require.NoError(t, err)

	_, err = c.SendTx(context.Background(), tx)
	require.Error(t, err)
	assert.Equal(t, ErrKindNonceDrift, Classify(err))
}

// pollActivityFixture builds a minimal (Activity, bool) ABI return
// value whose Activity tuple's first word is id, matching the layout
// DecodeActivityPoll expects.
func pollActivityFixture(id Hash, hasResult bool) []byte {
	out := make([]byte, 0, 128)
	out = append(out, word([]byte{0x40})...) // offset to Activity tuple
	boolWord := word([]byte{0})
	if hasResult {
		boolWord = word([]byte{1})
	}
	out = append(out, boolWord...)
	out = append(out, encodeBytes32(id)...)
	return out
}

package chain

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/piplabs/subnet-worker-client/store"
)

// Contracts pins the three addresses the worker client calls against
// (spec.md §6).
type Contracts struct {
	TaskQueue          Address
	WorkflowEngine     Address
	SubnetControlPlane Address
}

// Client is the typed ledger collaborator: it wraps a Provider with the
// six contract methods spec.md §6 names, plus nonce allocation and
// nonce:last persistence under one mutex. It is the only thing in the
// process that touches Provider directly.
type Client struct {
	provider  Provider
	signer    Signer
	store     store.Store
	contracts Contracts
	log       *zap.Logger

	// nonceMu serializes nonce allocation and nonce:last persistence
	// (AllocateNonce, ResyncNonce). SendTx does not take it; sends of
	// freshly allocated nonces are ordered by the broadcaster's single
	// submit-loop goroutine.
	nonceMu sync.Mutex
}

// NewClient builds a Client bound to a Provider, a Signer (the account
// issuing transactions) and the durable store used for nonce:last.
func NewClient(p Provider, signer Signer, s store.Store, contracts Contracts, log *zap.Logger) *Client {
	return &Client{provider: p, signer: signer, store: s, contracts: contracts, log: log}
}

func (c *Client) Address() Address { return c.signer.Address() }

// PollActivity calls TaskQueue.pollActivity and decodes the result.
func (c *Client) PollActivity(ctx context.Context, queue string, limit uint16) (id Hash, hasResult bool, err error) {
	ret, err := c.provider.Call(ctx, c.contracts.TaskQueue, PollActivityCalldata(queue, limit))
	if err != nil {
		return id, false, errors.Wrap(err, "chain: pollActivity call")
	}
	id, hasResult, ok := DecodeActivityPoll(ret)
	if !ok {
		return id, false, errors.New("chain: pollActivity: malformed return data")
	}
	return id, hasResult, nil
}

// IsWorkerActive calls SubnetControlPlane.isWorkerActive for worker —
// the startup gate's first check, which passes the client's own
// signing address.
func (c *Client) IsWorkerActive(ctx context.Context, worker Address) (bool, error) {
	ret, err := c.provider.Call(ctx, c.contracts.SubnetControlPlane, IsWorkerActiveCalldata(worker))
	if err != nil {
		return false, errors.Wrap(err, "chain: isWorkerActive call")
	}
	return DecodeBool(ret), nil
}

// GetProtocolVersion calls SubnetControlPlane.getProtocolVersion — the
// startup gate's semver compatibility check.
func (c *Client) GetProtocolVersion(ctx context.Context) (string, error) {
	ret, err := c.provider.Call(ctx, c.contracts.SubnetControlPlane, GetProtocolVersionCalldata())
	if err != nil {
		return "", errors.Wrap(err, "chain: getProtocolVersion call")
	}
	return DecodeString(ret), nil
}

// ClaimCalldata, CompleteCalldata and ResumeCalldata expose the
// remaining three contract methods' calldata so the broadcaster can
// build a SignedTx without reaching into the abi.go helpers directly.
func (c *Client) ClaimCalldata(activityID Hash) []byte { return ClaimActivityCalldata(activityID) }

func (c *Client) CompleteCalldata(activityID Hash, resultRef []byte, status uint8) []byte {
	return CompleteActivityCalldata(activityID, resultRef, status)
}

func (c *Client) ResumeCalldata(workflowInstanceID Hash) []byte {
	return ResumeWorkflowCalldata(workflowInstanceID)
}

func (c *Client) TaskQueueAddress() Address          { return c.contracts.TaskQueue }
func (c *Client) WorkflowEngineAddress() Address     { return c.contracts.WorkflowEngine }
func (c *Client) SubnetControlPlaneAddress() Address { return c.contracts.SubnetControlPlane }

// AllocateNonce reserves the next account nonce under the nonce
// critical section: it reads nonce:last (falling back to the
// provider's pending-pool view for a never-used account), persists
// last+1 before returning, and holds nonceMu for the whole operation
// so a concurrent caller cannot observe or reuse the same value
// (spec.md §5 "Concurrency invariant").
func (c *Client) AllocateNonce(ctx context.Context) (uint64, error) {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	last, ok, err := store.ReadNonceLast(c.store)
	if err != nil {
		return 0, errors.Wrap(err, "chain: reading nonce:last")
	}
	var next uint64
	if ok {
		next = last + 1
	} else {
		next, err = c.provider.PendingNonceAt(ctx, c.signer.Address())
		if err != nil {
			return 0, errors.Wrap(err, "chain: seeding nonce from provider")
		}
	}
	if err := store.WriteNonceLast(c.store, next); err != nil {
		return 0, errors.Wrap(err, "chain: persisting nonce:last")
	}
	return next, nil
}

// ResyncNonce resynchronizes nonce:last from the provider's
// pending-pool view after a nonce-drift error (spec.md §5 "Nonce-drift:
// resynchronize nonce:last from the account's on-chain nonce").
func (c *Client) ResyncNonce(ctx context.Context) error {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	actual, err := c.provider.PendingNonceAt(ctx, c.signer.Address())
	if err != nil {
		return errors.Wrap(err, "chain: resyncing nonce")
	}
	// PendingNonceAt returns the *next* nonce to use; nonce:last stores
	// the most recently issued one, so the stored value is one behind.
	var toStore uint64
	if actual > 0 {
		toStore = actual - 1
	}
	return errors.Wrap(store.WriteNonceLast(c.store, toStore), "chain: persisting resynced nonce:last")
}

// Sign builds a SignedTx for a contract call with the given nonce and
// fee fields. It does not allocate the nonce or submit — callers drive
// those steps separately so the TxRecord can be persisted pending
// between them (spec.md §4.2 step 4, "persist before network send").
func (c *Client) Sign(to Address, data []byte, nonce uint64, gasFeeCapWei, gasTipCapWei string, gasLimit uint64) (*SignedTx, error) {
	return c.signer.Sign(to, data, nonce, gasFeeCapWei, gasTipCapWei, gasLimit)
}

// SendTx submits an already-signed transaction.
func (c *Client) SendTx(ctx context.Context, tx *SignedTx) (Hash, error) {
	return c.provider.SendTx(ctx, tx)
}

// TxStatus queries a previously submitted transaction's on-chain status.
func (c *Client) TxStatus(ctx context.Context, hash Hash) (Receipt, error) {
	return c.provider.TxStatus(ctx, hash)
}

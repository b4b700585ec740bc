package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io/ioutil"
	"net/http"

	"github.com/pkg/errors"
)

// HTTPProvider is the production Provider: a minimal Ethereum-style
// JSON-RPC client (eth_call / eth_sendRawTransaction /
// eth_getTransactionReceipt / eth_getTransactionCount) over net/http.
// No JSON-RPC client ships in this module's dependency set (klaytn's
// own networks/rpc is the node-side server, not a client SDK), so this
// is hand-rolled against the standard library — see DESIGN.md.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
}

func NewHTTPProvider(endpoint string) *HTTPProvider {
	return &HTTPProvider{endpoint: endpoint, client: &http.Client{}}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (p *HTTPProvider) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, errors.Wrap(err, "chain: marshal rpc request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "chain: build rpc request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "chain: rpc request")
	}
	defer resp.Body.Close()

	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "chain: reading rpc response")
	}
	var out rpcResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "chain: decoding rpc response")
	}
	if out.Error != nil {
		return nil, errors.Errorf("chain: rpc error %d: %s", out.Error.Code, out.Error.Message)
	}
	return out.Result, nil
}

// Call performs eth_call against the latest block.
func (p *HTTPProvider) Call(ctx context.Context, to Address, data []byte) ([]byte, error) {
	callObj := map[string]string{
		"to":   to.Hex(),
		"data": "0x" + hex.EncodeToString(data),
	}
	raw, err := p.call(ctx, "eth_call", callObj, "latest")
	if err != nil {
		return nil, err
	}
	var hexStr string
	if err := json.Unmarshal(raw, &hexStr); err != nil {
		return nil, errors.Wrap(err, "chain: decoding eth_call result")
	}
	return decodeHex(hexStr)
}

// SendTx submits tx.Raw (the signer's provider-specific signed
// envelope) via eth_sendRawTransaction.
func (p *HTTPProvider) SendTx(ctx context.Context, tx *SignedTx) (Hash, error) {
	var h Hash
	raw, err := p.call(ctx, "eth_sendRawTransaction", "0x"+hex.EncodeToString(tx.Raw))
	if err != nil {
		return h, err
	}
	var hexStr string
	if err := json.Unmarshal(raw, &hexStr); err != nil {
		return h, errors.Wrap(err, "chain: decoding eth_sendRawTransaction result")
	}
	return ParseHash(hexStr)
}

// TxStatus queries eth_getTransactionReceipt; an absent receipt maps
// to ReceiptUnknown rather than an error, since that is the expected
// state for a transaction still propagating.
func (p *HTTPProvider) TxStatus(ctx context.Context, hash Hash) (Receipt, error) {
	raw, err := p.call(ctx, "eth_getTransactionReceipt", hash.Hex())
	if err != nil {
		return Receipt{}, err
	}
	if string(raw) == "null" || len(raw) == 0 {
		return Receipt{Status: ReceiptUnknown, Hash: hash}, nil
	}
	var receipt struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return Receipt{}, errors.Wrap(err, "chain: decoding transaction receipt")
	}
	switch receipt.Status {
	case "0x1":
		return Receipt{Status: ReceiptSuccess, Hash: hash}, nil
	case "0x0":
		return Receipt{Status: ReceiptReverted, Hash: hash}, nil
	default:
		return Receipt{Status: ReceiptPending, Hash: hash}, nil
	}
}

// PendingNonceAt queries eth_getTransactionCount against the pending
// block, the provider's view of "next nonce to use".
func (p *HTTPProvider) PendingNonceAt(ctx context.Context, account Address) (uint64, error) {
	raw, err := p.call(ctx, "eth_getTransactionCount", account.Hex(), "pending")
	if err != nil {
		return 0, err
	}
	var hexStr string
	if err := json.Unmarshal(raw, &hexStr); err != nil {
		return 0, errors.Wrap(err, "chain: decoding eth_getTransactionCount result")
	}
	b, err := decodeHex(hexStr)
	if err != nil {
		return 0, err
	}
	var n uint64
	for _, bb := range b {
		n = n<<8 | uint64(bb)
	}
	return n, nil
}

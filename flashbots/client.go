package flashbots

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

const (
	DefaultRelayURL = "https://relay.flashbots.net"

	contentTypeJSON              = "application/json"
	flashbotsXHeader             = "X-Flashbots-Signature"
	methodSendPrivateTransaction = "eth_sendPrivateTransaction"
)

// Client submits transactions to a Flashbots relay so they are not exposed in
// the public mempool before inclusion.
type Client struct {
	httpClient *http.Client
	relayURL   string
	authSigner *ecdsa.PrivateKey
	logger     *zap.Logger
}

// NewClient creates a relay client. authKey only identifies the searcher to
// the relay and never holds funds.
func NewClient(relayURL string, authKey *ecdsa.PrivateKey, logger *zap.Logger) (*Client, error) {
	if authKey == nil {
		return nil, fmt.Errorf("flashbots auth key cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if relayURL == "" {
		relayURL = DefaultRelayURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Second * 3,
		},
		relayURL:   relayURL,
		authSigner: authKey,
		logger:     logger,
	}, nil
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

func (e *rpcError) Error() string {
	return fmt.Sprintf("flashbots error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// PrivateTransaction is the argument of eth_sendPrivateTransaction.
type PrivateTransaction struct {
	Tx             hexutil.Bytes   `json:"tx"`
	MaxBlockNumber *hexutil.Uint64 `json:"maxBlockNumber,omitempty"`
}

// SendPrivateTransaction hands a signed transaction to the relay. A zero
// maxBlockNumber leaves the relay default of 25 blocks.
func (c *Client) SendPrivateTransaction(ctx context.Context, tx *types.Transaction, maxBlockNumber uint64) (common.Hash, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode transaction: %w", err)
	}

	arg := PrivateTransaction{Tx: raw}
	if maxBlockNumber > 0 {
		limit := hexutil.Uint64(maxBlockNumber)
		arg.MaxBlockNumber = &limit
	}

	var hash common.Hash
	if err := c.call(ctx, methodSendPrivateTransaction, []interface{}{arg}, &hash); err != nil {
		return common.Hash{}, err
	}

	c.logger.Info("Sent private transaction",
		zap.String("tx", tx.Hash().Hex()),
		zap.String("relay", c.relayURL))
	return hash, nil
}

// Submit sends tx through the relay.
func (c *Client) Submit(ctx context.Context, tx *types.Transaction) error {
	_, err := c.SendPrivateTransaction(ctx, tx, 0)
	return err
}

func (c *Client) String() string {
	return "flashbots"
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	header, err := SignatureHeader(payload, c.authSigner)
	if err != nil {
		return err
	}

	req.Header.Add("Content-Type", contentTypeJSON)
	req.Header.Add("Accept", contentTypeJSON)
	req.Header.Add(flashbotsXHeader, header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("flashbots request failed: %s", string(body))
	}

	var out rpcResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != nil {
		return out.Error
	}
	if result != nil {
		if err := json.Unmarshal(out.Result, result); err != nil {
			return fmt.Errorf("failed to decode result: %w", err)
		}
	}
	return nil
}

// SignatureHeader builds the X-Flashbots-Signature value for payload:
// the signer address and its signature over the hex keccak of the body.
func SignatureHeader(payload []byte, key *ecdsa.PrivateKey) (string, error) {
	signature, err := crypto.Sign(
		accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(payload)))),
		key,
	)
	if err != nil {
		return "", fmt.Errorf("failed to sign request: %w", err)
	}

	return fmt.Sprintf("%s:%s",
		crypto.PubkeyToAddress(key.PublicKey).Hex(),
		hexutil.Encode(signature),
	), nil
}

package flashloan

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/michaelpento.lv/orderarb/simulator"
	"github.com/michaelpento.lv/orderarb/types"
)

// Backend is the node access the executor needs to build a transaction and
// wait for it to be mined.
type Backend interface {
	bind.DeployBackend
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// Submitter delivers a signed transaction to the network.
type Submitter interface {
	Submit(ctx context.Context, tx *ethtypes.Transaction) error
	String() string
}

// GasPricer prices the trade transaction.
type GasPricer interface {
	GasPrice(ctx context.Context) (*big.Int, error)
}

// QuoteProvider is used to re-quote an opportunity right before submission.
type QuoteProvider interface {
	Quote(ctx context.Context, from, to common.Address, amount *big.Int) (*types.QuoteResult, error)
}

// AssetResolver maps a configured symbol to its token address and decimals.
type AssetResolver interface {
	Asset(symbol string) (common.Address, int32, error)
}

// Simulator dry-runs the trade call against pending state before it is sent.
type Simulator interface {
	Simulate(ctx context.Context, msg ethereum.CallMsg) (*simulator.SimulationResult, error)
}

// TransactionSender is satisfied by ethclient.Client.
type TransactionSender interface {
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
}

// RPCSubmitter sends transactions to the public mempool through the node.
type RPCSubmitter struct {
	client TransactionSender
}

func NewRPCSubmitter(client TransactionSender) *RPCSubmitter {
	return &RPCSubmitter{client: client}
}

func (s *RPCSubmitter) Submit(ctx context.Context, tx *ethtypes.Transaction) error {
	return s.client.SendTransaction(ctx, tx)
}

func (s *RPCSubmitter) String() string {
	return "rpc"
}

package flashloan

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// ErrProfitEvaporated is returned when a fresh quote no longer covers the
// minimum return of the opportunity.
var ErrProfitEvaporated = errors.New("profit evaporated before submission")

// Execution stages reported by ExecutionError and the failure metric.
const (
	StageResolve  = "resolve"
	StageEncode   = "encode"
	StageRequote  = "requote"
	StageBuild    = "build"
	StageSign     = "sign"
	StageSimulate = "simulate"
	StageSubmit   = "submit"
	StageReceipt  = "receipt"
	StageReverted = "reverted"
)

// ExecutionError wraps a failure to build, sign, submit or confirm a trade.
type ExecutionError struct {
	Stage string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("trade execution failed at %s: %v", e.Stage, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Config holds the trade parameters.
type Config struct {
	TraderContract common.Address
	ChainID        *big.Int
	GasLimit       uint64
	// FlashAmount is the borrowed notional in display units of the base asset.
	FlashAmount    string
	SlippageBps    int64
	DryRun         bool
	Requote        bool
	WaitForReceipt bool
	ReceiptTimeout time.Duration
}

// FlashloanParams are the arguments of the trader contract's getFlashloan.
type FlashloanParams struct {
	FlashToken   common.Address
	FlashAmount  *big.Int
	ArbToken     common.Address
	ZrxData      []byte
	MinReturn    *big.Int
	Distribution []*big.Int
}

// Receipt describes a completed execution. Mined is nil for dry runs and when
// the executor does not wait for inclusion.
type Receipt struct {
	TxHash   common.Hash
	Calldata []byte
	Params   FlashloanParams
	DryRun   bool
	Mined    *ethtypes.Receipt
}

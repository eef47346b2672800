package simulator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"go.uber.org/zap"
)

// Backend is the part of a node client used to dry-run a call against the
// pending block. *ethclient.Client satisfies it.
type Backend interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingCallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// SimulationResult represents the result of a transaction simulation
type SimulationResult struct {
	Success bool
	GasUsed uint64
	Return  []byte
	Error   error
}

// Simulator runs a transaction against the pending state without sending it.
type Simulator struct {
	backend Backend
	logger  *zap.Logger
}

// NewSimulator creates a new transaction simulator
func NewSimulator(backend Backend, logger *zap.Logger) (*Simulator, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Simulator{backend: backend, logger: logger}, nil
}

// Simulate estimates gas for msg and executes it as a call. A revert is
// reported in the result, not as an error; the error return is reserved
// for a cancelled context.
func (s *Simulator) Simulate(ctx context.Context, msg ethereum.CallMsg) (*SimulationResult, error) {
	gasUsed, err := s.backend.EstimateGas(ctx, msg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Debug("Gas estimation failed", zap.Error(err))
		return &SimulationResult{Success: false, Error: err}, nil
	}

	if msg.Gas != 0 && gasUsed > msg.Gas {
		return &SimulationResult{
			Success: false,
			GasUsed: gasUsed,
			Error:   fmt.Errorf("needs %d gas, limit is %d", gasUsed, msg.Gas),
		}, nil
	}

	ret, err := s.backend.PendingCallContract(ctx, msg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Debug("Call simulation failed", zap.Error(err))
		return &SimulationResult{Success: false, GasUsed: gasUsed, Error: err}, nil
	}

	return &SimulationResult{
		Success: true,
		GasUsed: gasUsed,
		Return:  ret,
	}, nil
}

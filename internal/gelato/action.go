package gelato

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Action is one step executed by a user proxy. The payload must already be
// ABI-encoded; this package never encodes call data.
type Action struct {
	addr         common.Address
	data         []byte
	operation    Operation
	dataFlow     DataFlow
	value        *big.Int
	termsOkCheck bool
}

// ActionOption customises a new Action.
type ActionOption func(*actionParams)

type actionParams struct {
	dataFlow     DataFlow
	value        *big.Int
	termsOkCheck bool
}

// WithDataFlow sets the data flow, DataFlowNone by default.
func WithDataFlow(flow DataFlow) ActionOption {
	return func(p *actionParams) { p.dataFlow = flow }
}

// WithValue attaches wei to the Action call, zero by default.
func WithValue(value *big.Int) ActionOption {
	return func(p *actionParams) { p.value = value }
}

// WithTermsOkCheck asks the Action contract to validate its terms before
// execution.
func WithTermsOkCheck(check bool) ActionOption {
	return func(p *actionParams) { p.termsOkCheck = check }
}

// NewAction validates and builds an Action.
func NewAction(addr common.Address, payload []byte, operation Operation, opts ...ActionOption) (Action, error) {
	params := actionParams{}
	for _, opt := range opts {
		if opt != nil {
			opt(&params)
		}
	}
	if err := requireAddress("action address", addr); err != nil {
		return Action{}, err
	}
	if !operation.Valid() {
		return Action{}, invalid("action %s: unknown operation %d", addr.Hex(), uint8(operation))
	}
	if !params.dataFlow.Valid() {
		return Action{}, invalid("action %s: unknown data flow %d", addr.Hex(), uint8(params.dataFlow))
	}
	value, err := amount("action value", params.value)
	if err != nil {
		return Action{}, err
	}
	return Action{
		addr:         addr,
		data:         common.CopyBytes(payload),
		operation:    operation,
		dataFlow:     params.dataFlow,
		value:        value,
		termsOkCheck: params.termsOkCheck,
	}, nil
}

func (a Action) Address() common.Address { return a.addr }
func (a Action) Data() []byte            { return common.CopyBytes(a.data) }
func (a Action) Operation() Operation    { return a.operation }
func (a Action) DataFlow() DataFlow      { return a.dataFlow }
func (a Action) TermsOkCheck() bool      { return a.termsOkCheck }

// Value returns a copy of the attached wei, never nil.
func (a Action) Value() *big.Int {
	if a.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.value)
}

// Shape projects the Action onto its payload-free form used by TaskSpecs.
func (a Action) Shape() ActionShape {
	return ActionShape{
		Addr:         a.addr,
		Operation:    a.operation,
		DataFlow:     a.dataFlow,
		Value:        a.value != nil && a.value.Sign() > 0,
		TermsOkCheck: a.termsOkCheck,
	}
}

// Condition points at a condition contract together with its call data.
type Condition struct {
	inst common.Address
	data []byte
}

// NewCondition validates and builds a Condition.
func NewCondition(inst common.Address, data []byte) (Condition, error) {
	if err := requireAddress("condition address", inst); err != nil {
		return Condition{}, err
	}
	return Condition{inst: inst, data: common.CopyBytes(data)}, nil
}

func (c Condition) Address() common.Address { return c.inst }
func (c Condition) Data() []byte            { return common.CopyBytes(c.data) }

package gelato

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ActionShape is an Action without its payload. Value only records whether
// the action carries wei.
type ActionShape struct {
	Addr         common.Address
	Operation    Operation
	DataFlow     DataFlow
	Value        bool
	TermsOkCheck bool
}

// TaskSpec is the whitelisting key a provider registers on GelatoCore: the
// condition addresses and action shapes of a Task plus a gas price ceiling.
// Payload bytes never contribute to its identity.
type TaskSpec struct {
	conditions   []common.Address
	actions      []ActionShape
	gasPriceCeil *big.Int
}

// NewTaskSpec validates and builds a TaskSpec.
func NewTaskSpec(conditions []common.Address, actions []ActionShape, gasPriceCeil *big.Int) (TaskSpec, error) {
	if len(actions) == 0 {
		return TaskSpec{}, invalid("task spec needs at least one action")
	}
	for i, c := range conditions {
		if c == (common.Address{}) {
			return TaskSpec{}, invalid("task spec condition %d is the zero address", i)
		}
	}
	for i, a := range actions {
		if a.Addr == (common.Address{}) {
			return TaskSpec{}, invalid("task spec action %d is the zero address", i)
		}
		if !a.Operation.Valid() || !a.DataFlow.Valid() {
			return TaskSpec{}, invalid("task spec action %d has unknown operation or data flow", i)
		}
	}
	ceil, err := amount("gasPriceCeil", gasPriceCeil)
	if err != nil {
		return TaskSpec{}, err
	}
	return TaskSpec{
		conditions:   append([]common.Address(nil), conditions...),
		actions:      append([]ActionShape(nil), actions...),
		gasPriceCeil: ceil,
	}, nil
}

func (s TaskSpec) Conditions() []common.Address { return append([]common.Address(nil), s.conditions...) }
func (s TaskSpec) Actions() []ActionShape       { return append([]ActionShape(nil), s.actions...) }
func (s TaskSpec) GasPriceCeil() *big.Int       { return copyOrZero(s.gasPriceCeil) }

// WithGasPriceCeil returns a copy of s with a different ceiling.
func (s TaskSpec) WithGasPriceCeil(ceil *big.Int) (TaskSpec, error) {
	return NewTaskSpec(s.conditions, s.actions, ceil)
}

// Equal reports whether both specs list the same condition addresses and
// action shapes in the same order and share the gas price ceiling.
func (s TaskSpec) Equal(other TaskSpec) bool {
	if len(s.conditions) != len(other.conditions) || len(s.actions) != len(other.actions) {
		return false
	}
	for i := range s.conditions {
		if s.conditions[i] != other.conditions[i] {
			return false
		}
	}
	for i := range s.actions {
		if s.actions[i] != other.actions[i] {
			return false
		}
	}
	return s.GasPriceCeil().Cmp(other.GasPriceCeil()) == 0
}

// SameShape is Equal without the gas price ceiling. GelatoCore keys
// whitelisted specs this way and stores the ceiling beside the key.
func (s TaskSpec) SameShape(other TaskSpec) bool {
	a, _ := s.WithGasPriceCeil(nil)
	b, _ := other.WithGasPriceCeil(nil)
	return a.Equal(b)
}

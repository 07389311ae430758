// Package gelato holds the descriptor model submitted to the Gelato V1
// contracts: Conditions, Actions, Tasks, TaskSpecs and Providers.
//
// Every descriptor is an immutable value. Constructors validate their input
// and copy caller-provided slices, so later mutation of the arguments never
// leaks into a built descriptor. Validation failures carry the
// INVALID_DESCRIPTOR code and happen before anything touches the network.
package gelato

import (
	"fmt"
	"math/big"
	"strings"

	xerrors "gelato-runner/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// CodeInvalidDescriptor marks a descriptor rejected during local validation.
const CodeInvalidDescriptor xerrors.Code = "INVALID_DESCRIPTOR"

func init() {
	xerrors.Register(CodeInvalidDescriptor, xerrors.Attributes{
		Message:  "invalid descriptor",
		Severity: xerrors.SeverityInfo,
		Hint:     "check addresses and numeric fields of the task before submitting",
	})
}

func invalid(format string, args ...any) error {
	return xerrors.New(CodeInvalidDescriptor, fmt.Sprintf(format, args...))
}

// Operation selects how the user proxy invokes an Action.
type Operation uint8

const (
	OperationCall Operation = iota
	OperationDelegatecall
)

func (o Operation) Valid() bool {
	return o <= OperationDelegatecall
}

func (o Operation) String() string {
	switch o {
	case OperationCall:
		return "Call"
	case OperationDelegatecall:
		return "Delegatecall"
	default:
		return fmt.Sprintf("Operation(%d)", uint8(o))
	}
}

// DataFlow describes how an Action exchanges data with its neighbours.
// In means the payload tail is replaced at execution time by the previous
// Action's output; Out means the return value feeds the next Action.
type DataFlow uint8

const (
	DataFlowNone DataFlow = iota
	DataFlowIn
	DataFlowOut
	DataFlowInAndOut
)

func (d DataFlow) Valid() bool {
	return d <= DataFlowInAndOut
}

func (d DataFlow) String() string {
	switch d {
	case DataFlowNone:
		return "None"
	case DataFlowIn:
		return "In"
	case DataFlowOut:
		return "Out"
	case DataFlowInAndOut:
		return "InAndOut"
	default:
		return fmt.Sprintf("DataFlow(%d)", uint8(d))
	}
}

// ParseOperation maps a name such as "delegatecall" to an Operation.
func ParseOperation(name string) (Operation, error) {
	for o := OperationCall; o <= OperationDelegatecall; o++ {
		if strings.EqualFold(o.String(), name) {
			return o, nil
		}
	}
	return 0, invalid("unknown operation %q", name)
}

// ParseDataFlow maps a name such as "inandout" to a DataFlow.
func ParseDataFlow(name string) (DataFlow, error) {
	for d := DataFlowNone; d <= DataFlowInAndOut; d++ {
		if strings.EqualFold(d.String(), name) {
			return d, nil
		}
	}
	return 0, invalid("unknown data flow %q", name)
}

func requireAddress(field string, addr common.Address) error {
	if addr == (common.Address{}) {
		return invalid("%s must not be the zero address", field)
	}
	return nil
}

// amount validates a non-negative integer and returns a private copy.
// nil is read as zero.
func amount(field string, v *big.Int) (*big.Int, error) {
	if v == nil {
		return new(big.Int), nil
	}
	if v.Sign() < 0 {
		return nil, invalid("%s must not be negative, got %s", field, v)
	}
	if v.BitLen() > 256 {
		return nil, invalid("%s overflows uint256", field)
	}
	return new(big.Int).Set(v), nil
}

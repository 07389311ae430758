package gelato

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// TaskSpecFromTask is Task.Spec as a free function.
func TaskSpecFromTask(task Task, gasPriceCeil *big.Int) (TaskSpec, error) {
	return task.Spec(gasPriceCeil)
}

type noDataAction struct {
	Addr         common.Address
	Operation    uint8
	DataFlow     uint8
	Value        bool
	TermsOkCheck bool
}

var taskSpecKeyArguments = func() abi.Arguments {
	conditions, err := abi.NewType("address[]", "", nil)
	if err != nil {
		panic(err)
	}
	actions, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "addr", Type: "address"},
		{Name: "operation", Type: "uint8"},
		{Name: "dataFlow", Type: "uint8"},
		{Name: "value", Type: "bool"},
		{Name: "termsOkCheck", Type: "bool"},
	})
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Name: "conditions", Type: conditions}, {Name: "noDataActions", Type: actions}}
}()

// Hash returns the key GelatoCore files the spec under:
// keccak256(abi.encode(conditions, noDataActions)). The ceiling is stored
// beside the key and never part of it.
func (s TaskSpec) Hash() common.Hash {
	conditions := append([]common.Address{}, s.conditions...)
	actions := make([]noDataAction, len(s.actions))
	for i, a := range s.actions {
		actions[i] = noDataAction{
			Addr:         a.Addr,
			Operation:    uint8(a.Operation),
			DataFlow:     uint8(a.DataFlow),
			Value:        a.Value,
			TermsOkCheck: a.TermsOkCheck,
		}
	}
	encoded, err := taskSpecKeyArguments.Pack(conditions, actions)
	if err != nil {
		// every field is validated on construction
		panic(err)
	}
	return crypto.Keccak256Hash(encoded)
}

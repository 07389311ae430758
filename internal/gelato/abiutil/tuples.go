package abiutil

import (
	"fmt"
	"math/big"

	xerrors "gelato-runner/internal/errors"
	"gelato-runner/internal/gelato"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Wire forms of the GelatoCore structs. Field names follow the ABI
// component names so go-ethereum can pack them directly.

type Condition struct {
	Inst common.Address
	Data []byte
}

type Action struct {
	Addr         common.Address
	Data         []byte
	Operation    uint8
	DataFlow     uint8
	Value        *big.Int
	TermsOkCheck bool
}

type Task struct {
	Conditions               []Condition
	Actions                  []Action
	SelfProviderGasLimit     *big.Int
	SelfProviderGasPriceCeil *big.Int
}

type Provider struct {
	Addr   common.Address
	Module common.Address
}

type NoDataAction struct {
	Addr         common.Address
	Operation    uint8
	DataFlow     uint8
	Value        bool
	TermsOkCheck bool
}

type TaskSpec struct {
	Conditions   []common.Address
	Actions      []NoDataAction
	GasPriceCeil *big.Int
}

func WireCondition(c gelato.Condition) Condition {
	return Condition{Inst: c.Address(), Data: c.Data()}
}

func WireAction(a gelato.Action) Action {
	return Action{
		Addr:         a.Address(),
		Data:         a.Data(),
		Operation:    uint8(a.Operation()),
		DataFlow:     uint8(a.DataFlow()),
		Value:        a.Value(),
		TermsOkCheck: a.TermsOkCheck(),
	}
}

func WireActions(actions []gelato.Action) []Action {
	out := make([]Action, len(actions))
	for i, a := range actions {
		out[i] = WireAction(a)
	}
	return out
}

func WireTask(t gelato.Task) Task {
	conditions := make([]Condition, 0, len(t.Conditions()))
	for _, c := range t.Conditions() {
		conditions = append(conditions, WireCondition(c))
	}
	return Task{
		Conditions:               conditions,
		Actions:                  WireActions(t.Actions()),
		SelfProviderGasLimit:     t.SelfProviderGasLimit(),
		SelfProviderGasPriceCeil: t.SelfProviderGasPriceCeil(),
	}
}

func WireTasks(tasks []gelato.Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = WireTask(t)
	}
	return out
}

func WireProvider(p gelato.Provider) Provider {
	return Provider{Addr: p.Address(), Module: p.Module()}
}

func WireNoDataAction(s gelato.ActionShape) NoDataAction {
	return NoDataAction{
		Addr:         s.Addr,
		Operation:    uint8(s.Operation),
		DataFlow:     uint8(s.DataFlow),
		Value:        s.Value,
		TermsOkCheck: s.TermsOkCheck,
	}
}

func WireTaskSpec(s gelato.TaskSpec) TaskSpec {
	shapes := s.Actions()
	actions := make([]NoDataAction, len(shapes))
	for i, shape := range shapes {
		actions[i] = WireNoDataAction(shape)
	}
	conditions := s.Conditions()
	if conditions == nil {
		conditions = []common.Address{}
	}
	return TaskSpec{Conditions: conditions, Actions: actions, GasPriceCeil: s.GasPriceCeil()}
}

func WireTaskSpecs(specs []gelato.TaskSpec) []TaskSpec {
	out := make([]TaskSpec, len(specs))
	for i, s := range specs {
		out[i] = WireTaskSpec(s)
	}
	return out
}

// Descriptor converts a decoded Action back into a validated gelato.Action.
func (a Action) Descriptor() (gelato.Action, error) {
	return gelato.NewAction(a.Addr, a.Data, gelato.Operation(a.Operation),
		gelato.WithDataFlow(gelato.DataFlow(a.DataFlow)),
		gelato.WithValue(a.Value),
		gelato.WithTermsOkCheck(a.TermsOkCheck),
	)
}

// Descriptor converts a decoded Task back into a validated gelato.Task.
func (t Task) Descriptor() (gelato.Task, error) {
	conditions := make([]gelato.Condition, 0, len(t.Conditions))
	for _, c := range t.Conditions {
		cond, err := gelato.NewCondition(c.Inst, c.Data)
		if err != nil {
			return gelato.Task{}, err
		}
		conditions = append(conditions, cond)
	}
	actions := make([]gelato.Action, 0, len(t.Actions))
	for _, a := range t.Actions {
		action, err := a.Descriptor()
		if err != nil {
			return gelato.Task{}, err
		}
		actions = append(actions, action)
	}
	return gelato.NewTask(conditions, actions,
		gelato.WithSelfProviderGasLimit(t.SelfProviderGasLimit),
		gelato.WithSelfProviderGasPriceCeil(t.SelfProviderGasPriceCeil),
	)
}

// Descriptor converts a decoded TaskSpec back into a validated gelato.TaskSpec.
func (s TaskSpec) Descriptor() (gelato.TaskSpec, error) {
	shapes := make([]gelato.ActionShape, len(s.Actions))
	for i, a := range s.Actions {
		shapes[i] = gelato.ActionShape{
			Addr:         a.Addr,
			Operation:    gelato.Operation(a.Operation),
			DataFlow:     gelato.DataFlow(a.DataFlow),
			Value:        a.Value,
			TermsOkCheck: a.TermsOkCheck,
		}
	}
	return gelato.NewTaskSpec(s.Conditions, shapes, s.GasPriceCeil)
}

// Convert copies a value produced by Unpack into the wire type T. Decoded
// tuples come back as anonymous structs with identical layout.
func Convert[T any](v any) (T, error) {
	var zero T
	var out T
	if err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%v", r)
			}
		}()
		converted, ok := abi.ConvertType(v, new(T)).(*T)
		if !ok {
			return fmt.Errorf("unexpected type %T", v)
		}
		out = *converted
		return nil
	}(); err != nil {
		return zero, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("无法转换为 %T", zero))
	}
	return out, nil
}

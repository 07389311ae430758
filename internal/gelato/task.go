package gelato

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Task bundles the conditions that must all hold and the actions executed
// atomically once they do. Order is preserved exactly as given.
type Task struct {
	conditions               []Condition
	actions                  []Action
	selfProviderGasLimit     *big.Int
	selfProviderGasPriceCeil *big.Int
}

// TaskOption customises a new Task.
type TaskOption func(*taskParams)

type taskParams struct {
	gasLimit     *big.Int
	gasPriceCeil *big.Int
}

// WithSelfProviderGasLimit caps the gas a self-provided execution may use.
func WithSelfProviderGasLimit(limit *big.Int) TaskOption {
	return func(p *taskParams) { p.gasLimit = limit }
}

// WithSelfProviderGasPriceCeil caps the gas price of a self-provided
// execution. Zero means no ceiling.
func WithSelfProviderGasPriceCeil(ceil *big.Int) TaskOption {
	return func(p *taskParams) { p.gasPriceCeil = ceil }
}

// NewTask validates and builds a Task. At least one action is required.
func NewTask(conditions []Condition, actions []Action, opts ...TaskOption) (Task, error) {
	params := taskParams{}
	for _, opt := range opts {
		if opt != nil {
			opt(&params)
		}
	}
	if len(actions) == 0 {
		return Task{}, invalid("task needs at least one action")
	}
	for i, c := range conditions {
		if c.inst == (common.Address{}) {
			return Task{}, invalid("task condition %d is the zero address", i)
		}
	}
	for i, a := range actions {
		if a.addr == (common.Address{}) {
			return Task{}, invalid("task action %d is the zero address", i)
		}
	}
	gasLimit, err := amount("selfProviderGasLimit", params.gasLimit)
	if err != nil {
		return Task{}, err
	}
	gasPriceCeil, err := amount("selfProviderGasPriceCeil", params.gasPriceCeil)
	if err != nil {
		return Task{}, err
	}
	return Task{
		conditions:               append([]Condition(nil), conditions...),
		actions:                  append([]Action(nil), actions...),
		selfProviderGasLimit:     gasLimit,
		selfProviderGasPriceCeil: gasPriceCeil,
	}, nil
}

func (t Task) Conditions() []Condition { return append([]Condition(nil), t.conditions...) }
func (t Task) Actions() []Action       { return append([]Action(nil), t.actions...) }

func (t Task) SelfProviderGasLimit() *big.Int {
	return copyOrZero(t.selfProviderGasLimit)
}

func (t Task) SelfProviderGasPriceCeil() *big.Int {
	return copyOrZero(t.selfProviderGasPriceCeil)
}

// Spec projects the task onto the TaskSpec a provider has to whitelist.
func (t Task) Spec(gasPriceCeil *big.Int) (TaskSpec, error) {
	conditions := make([]common.Address, len(t.conditions))
	for i, c := range t.conditions {
		conditions[i] = c.inst
	}
	shapes := make([]ActionShape, len(t.actions))
	for i, a := range t.actions {
		shapes[i] = a.Shape()
	}
	return NewTaskSpec(conditions, shapes, gasPriceCeil)
}

// Provider names who pays for execution and which module adapts the user
// proxy to GelatoCore.
type Provider struct {
	addr   common.Address
	module common.Address
}

// NewProvider validates and builds a Provider.
func NewProvider(addr, module common.Address) (Provider, error) {
	if err := requireAddress("provider address", addr); err != nil {
		return Provider{}, err
	}
	if err := requireAddress("provider module", module); err != nil {
		return Provider{}, err
	}
	return Provider{addr: addr, module: module}, nil
}

func (p Provider) Address() common.Address { return p.addr }
func (p Provider) Module() common.Address  { return p.module }

// TaskCycle is the submission unit: the tasks are executed in order, the
// whole sequence repeated Cycles times before Expiry. Zero Cycles means
// unbounded and a zero Expiry means the cycle never expires.
type TaskCycle struct {
	provider Provider
	tasks    []Task
	expiry   uint64
	cycles   uint64
}

// NewTaskCycle validates and builds a TaskCycle.
func NewTaskCycle(provider Provider, tasks []Task, expiry time.Time, cycles uint64) (TaskCycle, error) {
	if err := requireAddress("provider address", provider.addr); err != nil {
		return TaskCycle{}, err
	}
	if len(tasks) == 0 {
		return TaskCycle{}, invalid("task cycle needs at least one task")
	}
	var ts uint64
	if !expiry.IsZero() {
		if expiry.Unix() < 0 {
			return TaskCycle{}, invalid("expiry %s predates the epoch", expiry)
		}
		ts = uint64(expiry.Unix())
	}
	return TaskCycle{provider: provider, tasks: append([]Task(nil), tasks...), expiry: ts, cycles: cycles}, nil
}

func (c TaskCycle) Provider() Provider { return c.provider }
func (c TaskCycle) Tasks() []Task      { return append([]Task(nil), c.tasks...) }
func (c TaskCycle) Expiry() uint64     { return c.expiry }
func (c TaskCycle) Cycles() uint64     { return c.cycles }

func copyOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

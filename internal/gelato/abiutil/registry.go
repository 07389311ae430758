// Package abiutil encodes and decodes calls to the Gelato V1 contracts. The
// contract ABIs are embedded JSON artifacts parsed once into a Registry; all
// functions here are pure and never touch the network.
package abiutil

import (
	"bytes"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	xerrors "gelato-runner/internal/errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed abis/*.json
var artifacts embed.FS

// Contract names with an embedded ABI.
const (
	GelatoCore             = "GelatoCore"
	GasPriceOracle         = "GasPriceOracle"
	GelatoUserProxyFactory = "GelatoUserProxyFactory"
	GelatoUserProxy        = "GelatoUserProxy"
	ConditionTimeStateful  = "ConditionTimeStateful"
	ActionKyberTrade       = "ActionKyberTrade"
	ActionFeeHandler       = "ActionFeeHandler"
	ActionTransfer         = "ActionTransfer"
	FeeHandlerFactory      = "FeeHandlerFactory"
	GelatoTokenFaucet      = "GelatoTokenFaucet"
	DAIFaucet              = "DAIFaucet"
	IERC20                 = "IERC20"
	IUniswapV2Router02     = "IUniswapV2Router02"
)

// Registry holds parsed contract ABIs keyed by contract name.
type Registry struct {
	contracts map[string]*abi.ABI
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultErr  error
)

// Load parses every embedded artifact.
func Load() (*Registry, error) {
	entries, err := artifacts.ReadDir("abis")
	if err != nil {
		return nil, fmt.Errorf("读取内置 ABI 失败: %w", err)
	}
	reg := &Registry{contracts: make(map[string]*abi.ABI, len(entries))}
	for _, entry := range entries {
		content, err := artifacts.ReadFile(path.Join("abis", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("读取 ABI %s 失败: %w", entry.Name(), err)
		}
		if err := reg.Add(strings.TrimSuffix(entry.Name(), ".json"), content); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Default returns the shared registry built from the embedded artifacts.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultReg, defaultErr = Load()
	})
	return defaultReg, defaultErr
}

// MustDefault is Default for callers that cannot recover from a broken
// build: the artifacts are compiled into the binary.
func MustDefault() *Registry {
	reg, err := Default()
	if err != nil {
		panic(err)
	}
	return reg
}

// Add parses an ABI JSON document and registers it under name.
func (r *Registry) Add(name string, content []byte) error {
	parsed, err := abi.JSON(bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("解析 ABI %s 失败: %w", name, err)
	}
	r.contracts[name] = &parsed
	return nil
}

// Contracts lists the registered contract names.
func (r *Registry) Contracts() []string {
	names := make([]string, 0, len(r.contracts))
	for name := range r.contracts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ABI returns the parsed ABI of contract.
func (r *Registry) ABI(contract string) (*abi.ABI, error) {
	parsed, ok := r.contracts[contract]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("未知合约 %s", contract))
	}
	return parsed, nil
}

// Method returns the ABI method contract.function.
func (r *Registry) Method(contract, function string) (abi.Method, error) {
	parsed, err := r.ABI(contract)
	if err != nil {
		return abi.Method{}, err
	}
	method, ok := parsed.Methods[function]
	if !ok {
		return abi.Method{}, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("合约 %s 没有函数 %s", contract, function))
	}
	return method, nil
}

// EncodeCall returns the 4-byte selector of contract.function followed by
// the ABI encoding of inputs.
func (r *Registry) EncodeCall(contract, function string, inputs ...any) ([]byte, error) {
	parsed, err := r.ABI(contract)
	if err != nil {
		return nil, err
	}
	if _, ok := parsed.Methods[function]; !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("合约 %s 没有函数 %s", contract, function))
	}
	data, err := parsed.Pack(function, inputs...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("编码 %s.%s 失败", contract, function))
	}
	return data, nil
}

// DecodeCall reverses EncodeCall: it identifies the method by selector and
// unpacks its arguments in declaration order.
func (r *Registry) DecodeCall(contract string, data []byte) (string, []any, error) {
	parsed, err := r.ABI(contract)
	if err != nil {
		return "", nil, err
	}
	if len(data) < 4 {
		return "", nil, xerrors.New(xerrors.CodeInvalidArgument, "调用数据不足 4 字节")
	}
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return "", nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("合约 %s 无法识别选择器 %x", contract, data[:4]))
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return "", nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("解码 %s.%s 参数失败", contract, method.Name))
	}
	return method.Name, args, nil
}

// EncodeOutput packs return values of contract.function. Test doubles use
// it to answer calls the way a node would.
func (r *Registry) EncodeOutput(contract, function string, values ...any) ([]byte, error) {
	method, err := r.Method(contract, function)
	if err != nil {
		return nil, err
	}
	out, err := method.Outputs.Pack(values...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("编码 %s.%s 返回值失败", contract, function))
	}
	return out, nil
}

// DecodeOutput unpacks the return data of contract.function.
func (r *Registry) DecodeOutput(contract, function string, data []byte) ([]any, error) {
	method, err := r.Method(contract, function)
	if err != nil {
		return nil, err
	}
	values, err := method.Outputs.Unpack(data)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("解码 %s.%s 返回值失败", contract, function))
	}
	return values, nil
}

// Find locates the contract and method a selector belongs to, searching the
// registry in name order.
func (r *Registry) Find(selector []byte) (string, abi.Method, bool) {
	if len(selector) < 4 {
		return "", abi.Method{}, false
	}
	for _, name := range r.Contracts() {
		if method, err := r.contracts[name].MethodById(selector[:4]); err == nil {
			return name, *method, true
		}
	}
	return "", abi.Method{}, false
}

// Package addressbook maps logical names to on-chain addresses for one
// network. A Book is built once from the network profile and is read-only
// afterwards, so it is safe for concurrent use.
package addressbook

import (
	"fmt"
	"sort"
	"strings"

	xerrors "gelato-runner/internal/errors"
	"gelato-runner/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// Well-known groups and entries used by the commands.
const (
	GroupERC20     = "erc20"
	GroupExecutor  = "gelatoExecutor"
	GroupKyber     = "kyber"
	GroupUniswapV2 = "uniswapV2"

	DefaultExecutor = "default"
)

// Entry is one resolved name.
type Entry struct {
	Group   string
	Name    string
	Address common.Address
}

// Book is the per-network address book.
type Book struct {
	network     string
	groups      map[string]map[string]common.Address
	deployments map[string]common.Address
	reverse     map[common.Address][]Entry
}

// FromProfile builds the book for a network profile.
func FromProfile(profile web3.NetworkProfile) (*Book, error) {
	return New(profile.Name, profile.AddressBook, profile.Deployments)
}

// New validates every address and builds the forward and reverse indexes.
// Deployments are indexed in the reverse map under the group "deployments".
func New(network string, groups map[string]map[string]string, deployments map[string]string) (*Book, error) {
	b := &Book{
		network:     network,
		groups:      make(map[string]map[string]common.Address, len(groups)),
		deployments: make(map[string]common.Address, len(deployments)),
		reverse:     make(map[common.Address][]Entry),
	}
	for group, entries := range groups {
		resolved := make(map[string]common.Address, len(entries))
		for name, raw := range entries {
			addr, err := parse(network, group+"."+name, raw)
			if err != nil {
				return nil, err
			}
			resolved[name] = addr
			b.reverse[addr] = append(b.reverse[addr], Entry{Group: group, Name: name, Address: addr})
		}
		b.groups[group] = resolved
	}
	for name, raw := range deployments {
		addr, err := parse(network, "deployments."+name, raw)
		if err != nil {
			return nil, err
		}
		b.deployments[name] = addr
		b.reverse[addr] = append(b.reverse[addr], Entry{Group: "deployments", Name: name, Address: addr})
	}
	for addr := range b.reverse {
		entries := b.reverse[addr]
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Group != entries[j].Group {
				return entries[i].Group < entries[j].Group
			}
			return entries[i].Name < entries[j].Name
		})
	}
	return b, nil
}

func parse(network, key, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("网络 %s 的地址簿条目 %s 不是合法地址: %q", network, key, raw))
	}
	return common.HexToAddress(raw), nil
}

// Network returns the network the book was built for.
func (b *Book) Network() string {
	return b.network
}

// Address resolves group.name.
func (b *Book) Address(group, name string) (common.Address, error) {
	if entries, ok := b.groups[group]; ok {
		if addr, ok := entries[name]; ok {
			return addr, nil
		}
	}
	return common.Address{}, xerrors.New(xerrors.CodeNotFound,
		fmt.Sprintf("网络 %s 的地址簿中没有 %s.%s", b.network, group, name))
}

// Token resolves an ERC20 symbol. A literal hex address is returned as is.
func (b *Book) Token(symbol string) (common.Address, error) {
	if common.IsHexAddress(symbol) {
		return common.HexToAddress(symbol), nil
	}
	return b.Address(GroupERC20, symbol)
}

// Executor resolves a named executor, "default" when name is empty.
func (b *Book) Executor(name string) (common.Address, error) {
	if name == "" {
		name = DefaultExecutor
	}
	if common.IsHexAddress(name) {
		return common.HexToAddress(name), nil
	}
	return b.Address(GroupExecutor, name)
}

// Deployment resolves the address of a deployed contract instance.
func (b *Book) Deployment(contract string) (common.Address, error) {
	if addr, ok := b.deployments[contract]; ok {
		return addr, nil
	}
	return common.Address{}, xerrors.New(xerrors.CodeNotFound,
		fmt.Sprintf("网络 %s 未记录 %s 的部署地址", b.network, contract))
}

// HasDeployment reports whether contract has a recorded deployment.
func (b *Book) HasDeployment(contract string) bool {
	_, ok := b.deployments[contract]
	return ok
}

// Lookup returns every name registered for addr.
func (b *Book) Lookup(addr common.Address) []Entry {
	entries := b.reverse[addr]
	if len(entries) == 0 {
		return nil
	}
	return append([]Entry(nil), entries...)
}

// Label renders addr as "group.name" when known, the checksummed hex
// otherwise.
func (b *Book) Label(addr common.Address) string {
	if entries := b.reverse[addr]; len(entries) > 0 {
		return entries[0].Group + "." + entries[0].Name
	}
	return addr.Hex()
}

// Entries lists every group entry and deployment sorted by group then name.
func (b *Book) Entries() []Entry {
	var out []Entry
	for group, entries := range b.groups {
		for name, addr := range entries {
			out = append(out, Entry{Group: group, Name: name, Address: addr})
		}
	}
	for name, addr := range b.deployments {
		out = append(out, Entry{Group: "deployments", Name: name, Address: addr})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Resolve accepts a hex address, an ERC20 symbol, "group.name" or a
// deployment name, in that order.
func (b *Book) Resolve(name string) (common.Address, bool) {
	name = strings.TrimSpace(name)
	if common.IsHexAddress(name) {
		return common.HexToAddress(name), true
	}
	if addr, ok := b.groups[GroupERC20][name]; ok {
		return addr, true
	}
	if group, entry, ok := strings.Cut(name, "."); ok {
		if addr, ok := b.groups[group][entry]; ok {
			return addr, true
		}
	}
	addr, ok := b.deployments[name]
	return addr, ok
}

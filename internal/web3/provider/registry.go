package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gelato-runner/internal/web3"
	"gelato-runner/internal/web3/ethereum"
)

// Dialer opens a client for one network profile.
type Dialer func(ctx context.Context, profile web3.NetworkProfile) (web3.Client, error)

// Registry manages chain clients keyed by network name. Clients are dialed
// on first use so unreachable networks never block the selected one.
type Registry struct {
	defaultNetwork string
	profiles       web3.NetworkProfiles
	dial           Dialer

	mu      sync.Mutex
	clients map[string]web3.Client
}

// EthereumDialer returns a Dialer producing ethclient-backed clients that
// poll for receipts every poll interval.
func EthereumDialer(poll time.Duration) Dialer {
	return func(ctx context.Context, profile web3.NetworkProfile) (web3.Client, error) {
		return ethereum.NewClient(ctx, ethereum.Config{
			Name:         profile.Name,
			RPCURL:       profile.ResolvedRPCURL(),
			ChainID:      profile.ChainID,
			Notes:        profile.Description,
			PollInterval: poll,
		})
	}
}

// NewRegistry validates the default network and prepares lazy dialing.
func NewRegistry(profiles web3.NetworkProfiles, defaultNetwork string, dial Dialer) (*Registry, error) {
	if len(profiles.Networks) == 0 {
		return nil, errors.New("未配置任何网络")
	}
	if dial == nil {
		return nil, errors.New("未提供网络连接器")
	}
	if defaultNetwork == "" {
		defaultNetwork = profiles.Names()[0]
	}
	if _, ok := profiles.Networks[defaultNetwork]; !ok {
		return nil, fmt.Errorf("默认网络 %s 未在配置中找到", defaultNetwork)
	}
	return &Registry{
		defaultNetwork: defaultNetwork,
		profiles:       profiles,
		dial:           dial,
		clients:        make(map[string]web3.Client),
	}, nil
}

// DefaultNetwork returns the configured default network name.
func (r *Registry) DefaultNetwork() string {
	if r == nil {
		return ""
	}
	return r.defaultNetwork
}

// Profile returns the profile registered under name.
func (r *Registry) Profile(name string) (web3.NetworkProfile, error) {
	if r == nil {
		return web3.NetworkProfile{}, errors.New("未初始化的链客户端注册表")
	}
	return r.profiles.Profile(name)
}

// Client returns the client for name, dialing it if needed.
func (r *Registry) Client(ctx context.Context, name string) (web3.Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的链客户端注册表")
	}
	profile, err := r.profiles.Profile(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[name]; ok {
		return client, nil
	}
	client, err := r.dial(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("初始化网络 %s 失败: %w", name, err)
	}
	r.clients[name] = client
	return client, nil
}

// DefaultClient returns the client of the default network.
func (r *Registry) DefaultClient(ctx context.Context) (web3.Client, error) {
	return r.Client(ctx, r.DefaultNetwork())
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, name)
	}
}

// Networks returns the list of configured network names.
func (r *Registry) Networks() []string {
	if r == nil {
		return nil
	}
	names := r.profiles.Names()
	sort.Strings(names)
	return names
}

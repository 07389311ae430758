package web3

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// NetworkProfiles models the structure of configs/networks.yaml.
type NetworkProfiles struct {
	Networks map[string]NetworkProfile `yaml:"networks"`
}

// NetworkProfile describes one network: how to reach it and which addresses
// the commands should use on it.
type NetworkProfile struct {
	Name        string                       `yaml:"-"`
	RPCURL      string                       `yaml:"rpc_url"`
	ChainID     uint64                       `yaml:"chain_id"`
	Description string                       `yaml:"description"`
	AddressBook map[string]map[string]string `yaml:"address_book"`
	Contracts   []string                     `yaml:"contracts"`
	Deployments map[string]string            `yaml:"deployments"`
	Filters     Filters                      `yaml:"filters"`
}

// Filters holds the default block range for log queries.
type Filters struct {
	DefaultFromBlock uint64 `yaml:"default_from_block"`
	DefaultToBlock   string `yaml:"default_to_block"`
}

// LoadNetworkProfiles parses the YAML file containing network profiles.
func LoadNetworkProfiles(path string) (NetworkProfiles, error) {
	if strings.TrimSpace(path) == "" {
		return NetworkProfiles{}, fmt.Errorf("网络配置路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return NetworkProfiles{}, fmt.Errorf("读取网络配置失败: %w", err)
	}
	return ParseNetworkProfiles(content)
}

// ParseNetworkProfiles decodes YAML profile content.
func ParseNetworkProfiles(content []byte) (NetworkProfiles, error) {
	var profiles NetworkProfiles
	if err := yaml.Unmarshal(content, &profiles); err != nil {
		return NetworkProfiles{}, fmt.Errorf("解析网络配置失败: %w", err)
	}
	if profiles.Networks == nil {
		profiles.Networks = map[string]NetworkProfile{}
	}
	for name, profile := range profiles.Networks {
		profile.Name = name
		if profile.Filters.DefaultToBlock == "" {
			profile.Filters.DefaultToBlock = "latest"
		}
		profiles.Networks[name] = profile
	}
	return profiles, nil
}

// Profile returns the named network profile.
func (p NetworkProfiles) Profile(name string) (NetworkProfile, error) {
	profile, ok := p.Networks[name]
	if !ok {
		return NetworkProfile{}, fmt.Errorf("网络 %s 未在配置中找到 (可用: %s)", name, strings.Join(p.Names(), ", "))
	}
	return profile, nil
}

// Names lists the configured networks in lexical order.
func (p NetworkProfiles) Names() []string {
	names := make([]string, 0, len(p.Networks))
	for name := range p.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolvedRPCURL expands ${VAR} references, such as the Infura project id,
// from the process environment.
func (n NetworkProfile) ResolvedRPCURL() string {
	return strings.TrimSpace(os.ExpandEnv(n.RPCURL))
}

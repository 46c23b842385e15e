package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/upb/studygen/services/generation"
	"github.com/upb/studygen/services/providers"
	"github.com/upb/studygen/utils"
)

var (
	ErrManifestEmptyGroups = errors.New("provider groups: no group has a provider")
)

// GroupsManifest is the provider-group file. Groups are tried in file order.
type GroupsManifest struct {
	Groups []generation.ProviderGroup `yaml:"groups" validate:"required,min=1,dive"`
	Repair *providers.Descriptor      `yaml:"repair,omitempty"`
}

// LoadProviderGroups parses and validates a YAML provider-group manifest
func LoadProviderGroups(path string) (GroupsManifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return GroupsManifest{}, fmt.Errorf("provider groups: read %q: %w", path, err)
	}
	return ParseProviderGroups(b)
}

// ParseProviderGroups decodes and validates manifest bytes
func ParseProviderGroups(b []byte) (GroupsManifest, error) {
	var m GroupsManifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return GroupsManifest{}, fmt.Errorf("provider groups: unmarshal: %w", err)
	}
	if err := ValidateProviderGroups(m); err != nil {
		return GroupsManifest{}, err
	}
	return m, nil
}

// ValidateProviderGroups enforces structural correctness before any request
// uses the groups.
func ValidateProviderGroups(m GroupsManifest) error {
	if err := utils.ValidateStruct(m); err != nil {
		return fmt.Errorf("provider groups: %w", err)
	}

	for _, g := range m.Groups {
		if len(g.Providers) > 0 {
			return nil
		}
	}
	return ErrManifestEmptyGroups
}

// DefaultProviderGroups derives the cascade from env configuration: the
// remote group first when an API key exists, then the local daemon.
func DefaultProviderGroups(cfg *Config) GroupsManifest {
	var m GroupsManifest

	openai := cfg.Providers.OpenAI
	if openai.APIKey != "" {
		remote := generation.ProviderGroup{Name: "remote"}
		remote.Providers = append(remote.Providers, providers.Descriptor{
			Name:      "openai",
			Model:     openai.Model,
			Transport: providers.TransportRemoteMetered,
		})
		if openai.FastModel != "" && openai.FastModel != openai.Model {
			remote.Providers = append(remote.Providers, providers.Descriptor{
				Name:      "openai",
				Model:     openai.FastModel,
				Transport: providers.TransportRemoteMetered,
			})
		}
		m.Groups = append(m.Groups, remote)
	}

	if cfg.Providers.Ollama.Enabled {
		m.Groups = append(m.Groups, generation.ProviderGroup{
			Name: "local",
			Providers: []providers.Descriptor{{
				Name:      "ollama",
				Model:     cfg.Providers.Ollama.Model,
				Transport: providers.TransportLocalUnmetered,
			}},
		})
	}

	if g := cfg.Generation; g.RepairProvider != "" {
		transport := providers.TransportRemoteMetered
		if g.RepairProvider == "ollama" {
			transport = providers.TransportLocalUnmetered
		}
		m.Repair = &providers.Descriptor{
			Name:      g.RepairProvider,
			Model:     g.RepairModel,
			Transport: transport,
		}
	}

	return m
}

// ProviderGroups returns the manifest at GroupsFile when set, otherwise the
// env-derived default.
func (c *Config) ProviderGroups() (GroupsManifest, error) {
	if c.Providers.GroupsFile != "" {
		return LoadProviderGroups(c.Providers.GroupsFile)
	}
	return DefaultProviderGroups(c), nil
}

package providers

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/upb/ai-integration-platform/models"
)

// Catalog is the deployable provider configuration: which providers exist,
// what they can do and what they cost, plus per-user daily budgets.
type Catalog struct {
	Providers []CatalogEntry `yaml:"providers"`
	Budgets   BudgetSettings `yaml:"budgets"`
}

// CatalogEntry is one provider in the catalog file
type CatalogEntry struct {
	ID                string   `yaml:"id"`
	DisplayName       string   `yaml:"display_name"`
	Vendor            string   `yaml:"vendor"`
	Model             string   `yaml:"model"`
	Models            []string `yaml:"models"`
	Capabilities      []string `yaml:"capabilities"`
	CostPerRequest    float64  `yaml:"cost_per_request"`
	CostPerThousandTk float64  `yaml:"cost_per_1k_tokens"`
	CostPerUnit       float64  `yaml:"cost_per_unit"`
	Enabled           *bool    `yaml:"enabled"`
}

// BudgetSettings holds daily budgets in dollars. Zero means unlimited.
type BudgetSettings struct {
	DefaultDaily float64            `yaml:"default_daily"`
	Users        map[string]float64 `yaml:"users"`
}

// Descriptor converts the entry into a validated Descriptor
func (e CatalogEntry) Descriptor() (Descriptor, error) {
	if e.ID == "" {
		return Descriptor{}, errors.New("id is required")
	}
	if e.Vendor == "" {
		return Descriptor{}, errors.New("vendor is required")
	}
	if len(e.Capabilities) == 0 {
		return Descriptor{}, errors.New("at least one capability is required")
	}
	if e.CostPerRequest < 0 || e.CostPerThousandTk < 0 || e.CostPerUnit < 0 {
		return Descriptor{}, errors.New("costs cannot be negative")
	}

	caps := make([]Capability, 0, len(e.Capabilities))
	for _, raw := range e.Capabilities {
		c, err := ParseCapability(raw)
		if err != nil {
			return Descriptor{}, err
		}
		caps = append(caps, c)
	}
	set, err := NewCapabilitySet(caps...)
	if err != nil {
		return Descriptor{}, err
	}

	enabled := true
	if e.Enabled != nil {
		enabled = *e.Enabled
	}
	name := e.DisplayName
	if name == "" {
		name = e.ID
	}

	return Descriptor{
		ID:           e.ID,
		DisplayName:  name,
		Vendor:       e.Vendor,
		Model:        e.Model,
		Models:       e.Models,
		Capabilities: set,
		Pricing: Pricing{
			PerRequest:        models.Dollars(e.CostPerRequest),
			PerThousandTokens: models.Dollars(e.CostPerThousandTk),
			PerUnit:           models.Dollars(e.CostPerUnit),
		},
		Enabled: enabled,
	}, nil
}

// ParseCatalog decodes a YAML catalog
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse provider catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadCatalog reads a catalog file. An empty path yields the built-in default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// Validate checks entries and id uniqueness
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Providers))
	for _, e := range c.Providers {
		if _, err := e.Descriptor(); err != nil {
			return fmt.Errorf("catalog entry %q: %w", e.ID, err)
		}
		if e.ID == LocalFallbackID {
			return fmt.Errorf("catalog entry id %q is reserved", LocalFallbackID)
		}
		if seen[e.ID] {
			return fmt.Errorf("duplicate catalog entry %q", e.ID)
		}
		seen[e.ID] = true
	}
	if c.Budgets.DefaultDaily < 0 {
		return errors.New("default daily budget cannot be negative")
	}
	for user, amount := range c.Budgets.Users {
		if amount < 0 {
			return fmt.Errorf("budget for user %q cannot be negative", user)
		}
	}
	return nil
}

// DailyBudgets converts budget settings to Money
func (c *Catalog) DailyBudgets() (models.Money, map[string]models.Money) {
	users := make(map[string]models.Money, len(c.Budgets.Users))
	for user, amount := range c.Budgets.Users {
		users[user] = models.Dollars(amount)
	}
	return models.Dollars(c.Budgets.DefaultDaily), users
}

const defaultCatalogYAML = `
providers:
  - id: openai-gpt-4o-mini
    display_name: OpenAI GPT-4o mini
    vendor: openai
    model: gpt-4o-mini
    models: [gpt-4o, gpt-4.1-mini]
    capabilities: [text-generation, code-generation, translation, vision]
    cost_per_request: 0.0005
    cost_per_1k_tokens: 0.0006
  - id: anthropic-claude-haiku
    display_name: Anthropic Claude Haiku
    vendor: anthropic
    model: claude-3-5-haiku-latest
    models: [claude-3-5-sonnet-latest]
    capabilities: [text-generation, code-generation, translation, vision]
    cost_per_request: 0.001
    cost_per_1k_tokens: 0.004
  - id: google-gemini-flash
    display_name: Google Gemini Flash
    vendor: google
    model: gemini-2.0-flash
    models: [gemini-2.0-flash-lite, gemini-1.5-pro]
    capabilities: [text-generation, code-generation, translation, vision]
    cost_per_request: 0.0004
    cost_per_1k_tokens: 0.0004
  - id: stability-sdxl
    display_name: Stability SDXL
    vendor: stability
    model: stable-diffusion-xl-1024-v1-0
    capabilities: [image-generation]
    cost_per_request: 0.04
budgets:
  default_daily: 5
`

// DefaultCatalog returns the built-in catalog
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog([]byte(defaultCatalogYAML))
	if err != nil {
		panic(fmt.Sprintf("built-in provider catalog is invalid: %v", err))
	}
	return c
}

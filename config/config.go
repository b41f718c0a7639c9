package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"tokensale/core/identity"
	"tokensale/native/sale"
)

type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	DataDir        string `toml:"DataDir"`
	EngineHandle   string `toml:"EngineHandle"`
	LedgerURL      string `toml:"LedgerURL"`
	AssetStoreURL  string `toml:"AssetStoreURL"`
	RequestTimeout int    `toml:"RequestTimeoutSeconds"`

	Log  LogConfig   `toml:"Log"`
	Sale *SaleConfig `toml:"Sale"`
}

type LogConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// SaleConfig bootstraps the offering metadata on first start. Once a state
// snapshot exists it is the snapshot, not this section, that wins.
type SaleConfig struct {
	Name          string           `toml:"Name"`
	Symbol        string           `toml:"Symbol"`
	Description   string           `toml:"Description"`
	LogoURL       string           `toml:"LogoURL"`
	BrochureURL   string           `toml:"BrochureURL"`
	Images        []string         `toml:"Images"`
	Documents     []DocumentConfig `toml:"Documents"`
	PurchasePrice string           `toml:"PurchasePrice"`
	UnitPrice     string           `toml:"UnitPrice"`
	SupplyCap     uint64           `toml:"SupplyCap"`
	Treasury      string           `toml:"Treasury"`
	Owner         string           `toml:"Owner"`
	FundsLedger   string           `toml:"FundsLedger"`
	LedgerIndex   string           `toml:"LedgerIndex"`
	AssetStore    string           `toml:"AssetStore"`
}

type DocumentConfig struct {
	Title string `toml:"Title"`
	URL   string `toml:"URL"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:     ":8645",
		DataDir:        "./tokensale-data",
		RequestTimeout: 10,
		Log:            LogConfig{Level: "info"},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("RPCAddress is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir is required")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("RequestTimeoutSeconds must not be negative")
	}
	if handle := strings.TrimSpace(c.EngineHandle); handle != "" {
		if _, err := identity.Decode(handle); err != nil {
			return fmt.Errorf("EngineHandle: %w", err)
		}
	}
	if c.Sale != nil {
		if _, err := c.Sale.Metadata(); err != nil {
			return fmt.Errorf("Sale: %w", err)
		}
	}
	return nil
}

// Identity returns the engine's own handle.
func (c *Config) Identity() (identity.Handle, error) {
	handle := strings.TrimSpace(c.EngineHandle)
	if handle == "" {
		return identity.Handle{}, fmt.Errorf("EngineHandle is required")
	}
	return identity.Decode(handle)
}

// Metadata converts the bootstrap section into the engine's metadata record.
func (s *SaleConfig) Metadata() (*sale.Metadata, error) {
	meta := &sale.Metadata{
		Name:        s.Name,
		Symbol:      s.Symbol,
		Description: s.Description,
		LogoURL:     s.LogoURL,
		BrochureURL: s.BrochureURL,
		Images:      append([]string(nil), s.Images...),
		SupplyCap:   s.SupplyCap,
	}
	for _, doc := range s.Documents {
		meta.Documents = append(meta.Documents, sale.Document{Title: doc.Title, URL: doc.URL})
	}
	var err error
	if meta.UnitPrice, err = parsePrice(s.UnitPrice, "UnitPrice"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(s.PurchasePrice) != "" {
		if meta.PurchasePrice, err = parsePrice(s.PurchasePrice, "PurchasePrice"); err != nil {
			return nil, err
		}
	}
	if meta.Treasury, err = parseHandle(s.Treasury, "Treasury"); err != nil {
		return nil, err
	}
	if meta.CollectionOwner, err = parseHandle(s.Owner, "Owner"); err != nil {
		return nil, err
	}
	if meta.FundsLedger, err = parseOptionalHandle(s.FundsLedger, "FundsLedger"); err != nil {
		return nil, err
	}
	if meta.LedgerIndex, err = parseOptionalHandle(s.LedgerIndex, "LedgerIndex"); err != nil {
		return nil, err
	}
	if meta.AssetStore, err = parseOptionalHandle(s.AssetStore, "AssetStore"); err != nil {
		return nil, err
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return meta, nil
}

func parsePrice(s, field string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", field, s)
	}
	return v, nil
}

func parseHandle(s, field string) (identity.Handle, error) {
	handle, err := identity.Decode(strings.TrimSpace(s))
	if err != nil {
		return identity.Handle{}, fmt.Errorf("%s: %w", field, err)
	}
	return handle, nil
}

func parseOptionalHandle(s, field string) (identity.Handle, error) {
	if strings.TrimSpace(s) == "" {
		return identity.Handle{}, nil
	}
	return parseHandle(s, field)
}

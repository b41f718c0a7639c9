package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tokensale/core/identity"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8645", cfg.RPCAddress)
	require.Equal(t, "./tokensale-data", cfg.DataDir)
	require.FileExists(t, path)

	// Loading the generated file round-trips.
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RPCAddress, again.RPCAddress)
}

func TestLoadFullConfig(t *testing.T) {
	engine := identity.MustHandle([]byte("engine"))
	treasury := identity.MustHandle([]byte("treasury"))
	owner := identity.MustHandle([]byte("owner"))

	path := writeConfig(t, `
RPCAddress = ":9000"
DataDir = "/tmp/sale"
EngineHandle = "`+engine.String()+`"
LedgerURL = "http://ledger:8080/rpc"
RequestTimeoutSeconds = 5

[Log]
Level = "debug"

[Sale]
Name = "Harbor Lofts Offering"
Symbol = "HARB"
UnitPrice = "50000000"
SupplyCap = 100
Treasury = "`+treasury.String()+`"
Owner = "`+owner.String()+`"

[[Sale.Documents]]
Title = "Prospectus"
URL = "https://example.com/prospectus.pdf"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.RPCAddress)
	require.Equal(t, "debug", cfg.Log.Level)

	self, err := cfg.Identity()
	require.NoError(t, err)
	require.Equal(t, engine, self)

	require.NotNil(t, cfg.Sale)
	meta, err := cfg.Sale.Metadata()
	require.NoError(t, err)
	require.Equal(t, "Harbor Lofts Offering", meta.Name)
	require.Equal(t, "50000000", meta.UnitPrice.String())
	require.Equal(t, uint64(100), meta.SupplyCap)
	require.Equal(t, treasury, meta.Treasury)
	require.Equal(t, owner, meta.CollectionOwner)
	require.Len(t, meta.Documents, 1)
}

func TestLoadRejectsInvalidSale(t *testing.T) {
	treasury := identity.MustHandle([]byte("treasury"))
	owner := identity.MustHandle([]byte("owner"))

	path := writeConfig(t, `
RPCAddress = ":9000"
DataDir = "/tmp/sale"

[Sale]
Name = "Offering"
Symbol = "OFF"
UnitPrice = "not-a-number"
SupplyCap = 100
Treasury = "`+treasury.String()+`"
Owner = "`+owner.String()+`"
`)

	_, err := Load(path)
	require.ErrorContains(t, err, "UnitPrice")
}

func TestLoadRejectsMissingRPCAddress(t *testing.T) {
	path := writeConfig(t, `
DataDir = "/tmp/sale"
`)

	_, err := Load(path)
	require.ErrorContains(t, err, "RPCAddress")
}

func TestIdentityRequired(t *testing.T) {
	cfg := &Config{}
	_, err := cfg.Identity()
	require.Error(t, err)
}

func TestLoadRejectsBadEngineHandle(t *testing.T) {
	path := writeConfig(t, `
RPCAddress = ":9000"
DataDir = "/tmp/sale"
EngineHandle = "not-a-handle"
`)

	_, err := Load(path)
	require.ErrorContains(t, err, "EngineHandle")
}

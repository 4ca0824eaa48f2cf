package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, "basket", cfg.ServiceName)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, []uint32{100, 500, 3000, 10000}, cfg.Quoter.FeeTiers)
	assert.Equal(t, "0 */5 * * * *", cfg.Scheduler.RebalanceCron)
	assert.Equal(t, 30, cfg.Redis.LockTTL)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "basket.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
service_name = "basket-test"

[http]
port = 9090

[quoter]
fee_tiers = [500, 3000]
intermediaries = ["WETH"]

[access]
admins = ["ops"]

[oracle.static_prices]
"A/USD" = "10"
`), 0o600))
	t.Setenv("APP_HTTP_PORT", "9191")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "basket-test", cfg.ServiceName)
	assert.Equal(t, 9191, cfg.HTTP.Port)
	assert.Equal(t, []uint32{500, 3000}, cfg.Quoter.FeeTiers)
	assert.Equal(t, []string{"WETH"}, cfg.Quoter.Intermediaries)
	assert.Equal(t, []string{"ops"}, cfg.Access.Admins)
	assert.Equal(t, "10", cfg.Oracle.StaticPrices["a/usd"])
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ServiceName: "basket",
			HTTP:        HTTPConfig{Port: 8080},
			Database:    DatabaseConfig{Driver: "sqlite", DSN: "file::memory:"},
			Quoter:      QuoterConfig{FeeTiers: []uint32{500}},
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"no service name": func(c *Config) { c.ServiceName = "" },
		"bad port":        func(c *Config) { c.HTTP.Port = 70000 },
		"no dsn":          func(c *Config) { c.Database.DSN = "" },
		"no fee tiers":    func(c *Config) { c.Quoter.FeeTiers = nil },
		"fee tier too big": func(c *Config) {
			c.Quoter.FeeTiers = []uint32{1_000_000}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

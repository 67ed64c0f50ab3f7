package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/tld-registry/internal/model"
)

const sample = `
tlds:
  example:
    currency: USD
    create:
      - cost: "13.00"
      - from: "2025-01-01T00:00:00Z"
        cost: "15.00"
    renew:
      - cost: "11"
    restore:
      - cost: "17"
    server_status:
      - cost: "19"
    premium:
      rich: "100"
    autorenew_grace: 1080h
    pending_delete: 72h
  jp:
    currency: JPY
    create: [{cost: "1200"}]
    renew: [{cost: "1000"}]
    restore: [{cost: "5000"}]
    server_status: [{cost: "0"}]
`

func TestRead_OK(t *testing.T) {
	tlds, err := Read(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, tlds, 2)

	ex := tlds["example"]
	require.Equal(t, "example", ex.Name)
	require.Equal(t, "USD", ex.Currency)
	require.True(t, ex.CreateCost.At(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)).Equal(model.MustMoney("USD", "13")))
	require.True(t, ex.CreateCost.At(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)).Equal(model.MustMoney("USD", "15")))
	require.True(t, ex.EapFee.At(time.Now()).IsZero())
	require.True(t, ex.PremiumPrices["rich"].Equal(model.MustMoney("USD", "100")))

	require.Equal(t, 45*day, ex.AutoRenewGracePeriod)
	require.Equal(t, 3*day, ex.PendingDeletePeriod)
	require.Equal(t, DefaultAddGrace, ex.AddGracePeriod)
	require.Equal(t, DefaultRedemptionGrace, ex.RedemptionGracePeriod)

	require.Equal(t, "JPY", tlds["jp"].Currency)
}

func TestRead_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no tlds", "tlds: {}\n", "TLDs"},
		{"bad currency", `
tlds:
  x:
    currency: XXQ
    create: [{cost: "1"}]
    renew: [{cost: "1"}]
    restore: [{cost: "1"}]
    server_status: [{cost: "1"}]
`, "iso4217"},
		{"missing renew", `
tlds:
  x:
    currency: USD
    create: [{cost: "1"}]
    restore: [{cost: "1"}]
    server_status: [{cost: "1"}]
`, "Renew"},
		{"non numeric cost", `
tlds:
  x:
    currency: USD
    create: [{cost: "lots"}]
    renew: [{cost: "1"}]
    restore: [{cost: "1"}]
    server_status: [{cost: "1"}]
`, "numeric"},
		{"schedule starts late", `
tlds:
  x:
    currency: USD
    create: [{from: "2025-01-01T00:00:00Z", cost: "1"}]
    renew: [{cost: "1"}]
    restore: [{cost: "1"}]
    server_status: [{cost: "1"}]
`, "beginning of time"},
		{"negative cost", `
tlds:
  x:
    currency: USD
    create: [{cost: "-1"}]
    renew: [{cost: "1"}]
    restore: [{cost: "1"}]
    server_status: [{cost: "1"}]
`, "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.yaml))
			require.Error(t, err)
			require.Contains(t, strings.ToLower(err.Error()), strings.ToLower(tt.want))
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	tlds, err := Load(path)
	require.NoError(t, err)
	require.Contains(t, tlds, "example")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

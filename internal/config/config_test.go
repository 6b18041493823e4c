package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		path := writeConfig(t, `
iap:
  api_url: https://api.example.com
  android_package_name: com.example.app
  premium_lifetime_product_ids: [premium_lifetime]
`)
		cfg, err := LoadConfig(path, true)
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
			t.Errorf("log defaults not applied: %+v", cfg.Log)
		}
		if cfg.IAP.Workers != 4 || cfg.IAP.UpdateBuffer != 16 {
			t.Errorf("iap defaults not applied: %+v", cfg.IAP)
		}
		if cfg.IAP.RequestTimeout != 15*time.Second {
			t.Errorf("request timeout default not applied: %v", cfg.IAP.RequestTimeout)
		}
		if !cfg.Runtime.Dev {
			t.Error("dev flag not carried into runtime config")
		}
	})

	t.Run("rejects missing api url", func(t *testing.T) {
		path := writeConfig(t, `
iap:
  android_package_name: com.example.app
  premium_lifetime_product_ids: [premium_lifetime]
`)
		if _, err := LoadConfig(path, false); err == nil {
			t.Fatal("expected an error, got nil")
		}
	})

	t.Run("rejects empty tracked product ids", func(t *testing.T) {
		path := writeConfig(t, `
iap:
  api_url: https://api.example.com
  android_package_name: com.example.app
`)
		if _, err := LoadConfig(path, false); err == nil {
			t.Fatal("expected an error, got nil")
		}
	})
}

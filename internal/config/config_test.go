package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("output: plain\nretries: 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SWAP_OUTPUT", "json")
	flags := GlobalFlags{ConfigPath: configPath, Plain: true, Retries: 5}
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win, got output=%s", settings.OutputMode)
	}
	if settings.Retries != 5 {
		t.Fatalf("expected retries from flags, got %d", settings.Retries)
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	_, err := Load(GlobalFlags{JSON: true, Plain: true})
	if err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}

func TestLoadProviderKeysFromEnv(t *testing.T) {
	t.Setenv("SWAP_FUSION_API_KEY", "fusion-secret")
	t.Setenv("SWAP_ONECLICK_JWT", "oneclick-jwt")
	settings, err := Load(GlobalFlags{Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.FusionAPIKey != "fusion-secret" {
		t.Fatalf("fusion key not read from env: %q", settings.FusionAPIKey)
	}
	if settings.OneClickJWT != "oneclick-jwt" {
		t.Fatalf("oneclick jwt not read from env: %q", settings.OneClickJWT)
	}
}

func TestLoadRejectsMalformedEnvDuration(t *testing.T) {
	t.Setenv("SWAP_TIMEOUT", "30")
	_, err := Load(GlobalFlags{Retries: -1})
	if err == nil {
		t.Fatal("expected error for unit-less SWAP_TIMEOUT")
	}
	if !strings.Contains(err.Error(), "SWAP_TIMEOUT") {
		t.Fatalf("error should name the offending variable, got: %v", err)
	}
}

func TestLoadSecretEnvIndirectionWinsOverLiteral(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	cfg := "providers:\n  fusion:\n    api_key: literal-key\n    api_key_env: TEST_FUSION_KEY\n"
	if err := os.WriteFile(configPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TEST_FUSION_KEY", "from-env")

	settings, err := Load(GlobalFlags{ConfigPath: configPath, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.FusionAPIKey != "from-env" {
		t.Fatalf("expected env indirection to win, got %q", settings.FusionAPIKey)
	}
}

func TestSplitListDropsEmptyEntries(t *testing.T) {
	got := splitList(" quote , plan ,, status ")
	want := []string{"quote", "plan", "status"}
	if len(got) != len(want) {
		t.Fatalf("splitList returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitList[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoadSettlementAssetDefaultsToUSDC(t *testing.T) {
	settings, err := Load(GlobalFlags{Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.SettlementAsset != "USDC" {
		t.Fatalf("settlement asset default = %q, want USDC", settings.SettlementAsset)
	}

	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("swap:\n  settlement_asset: usdt\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	settings, err = Load(GlobalFlags{ConfigPath: configPath, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.SettlementAsset != "USDT" {
		t.Fatalf("settlement asset from file = %q, want USDT", settings.SettlementAsset)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.RunStore.Backend != "local" {
		t.Errorf("backend = %q", cfg.RunStore.Backend)
	}
	if cfg.Watch.DebounceMs != 500 {
		t.Errorf("debounce = %d", cfg.Watch.DebounceMs)
	}
	if cfg.Telemetry.Enabled {
		t.Error("telemetry must default off")
	}
}

func TestMergeKeepsUnsetFields(t *testing.T) {
	m := NewManager()
	m.merge(&Config{
		RunStore: RunStoreConfig{Backend: "redis", Redis: RedisConfig{Addr: "cache:6379"}},
	})

	cfg := m.Get()
	if cfg.RunStore.Backend != "redis" || cfg.RunStore.Redis.Addr != "cache:6379" {
		t.Errorf("run store = %+v", cfg.RunStore)
	}
	if cfg.RunStore.Redis.TTLDays != 30 {
		t.Errorf("ttl lost on merge: %d", cfg.RunStore.Redis.TTLDays)
	}
}

func TestMergeInlineAliases(t *testing.T) {
	m := NewManager()
	m.merge(&Config{Resolver: ResolverConfig{Aliases: map[string]string{"OLD-1": "ACT-001"}}})
	m.merge(&Config{Resolver: ResolverConfig{Aliases: map[string]string{"OLD-2": "ACT-002"}}})

	aliases := m.Get().Resolver.Aliases
	if aliases["OLD-1"] != "ACT-001" || aliases["OLD-2"] != "ACT-002" {
		t.Errorf("aliases = %v", aliases)
	}
}

func TestLoadAliasesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	content := "aliases:\n  LEGACY-7: ACT-007\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	aliases, err := LoadAliases(path)
	if err != nil {
		t.Fatal(err)
	}
	if aliases["LEGACY-7"] != "ACT-007" {
		t.Errorf("aliases = %v", aliases)
	}
}

func TestLoadAliasesEmptyPath(t *testing.T) {
	aliases, err := LoadAliases("")
	if err != nil || len(aliases) != 0 {
		t.Errorf("aliases = %v, err = %v", aliases, err)
	}
}

func TestLoadShiftRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shifts.yaml")
	content := `rules:
  - site: MINA
    valid_from: "2026-01-01"
    valid_to: "2026-12-31"
    day_start: "08:00"
    day_end: "18:00"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadShiftRules(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 || rules[0].Site != "MINA" {
		t.Errorf("rules = %+v", rules)
	}
}

func TestLoadShiftRulesRejectsBadClock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shifts.yaml")
	content := `rules:
  - site: MINA
    valid_from: "2026-01-01"
    valid_to: "2026-12-31"
    day_start: "25:00"
    day_end: "18:00"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadShiftRules(path); err == nil {
		t.Error("out-of-range clock must fail validation")
	}
}

package config

import "testing"

func baseConfig() *Config {
	return &Config{
		ConfigVersion: SupportedConfigVersion,
		Sources: map[string]Source{
			"kbd": {Name: "kbd", Kind: SourceEvdevUdev},
		},
		SourceGroups: map[string]SourceGroup{
			"g": {Name: "g", Sources: []string{"kbd"}},
		},
		Destinations: map[string]Destination{
			"out": {Name: "out", Kind: DestUinput},
		},
		Links: []Link{
			{SourceGroup: "g", Destination: "out"},
		},
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	if err := Validate(baseConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsWrongVersion(t *testing.T) {
	cfg := baseConfig()
	cfg.ConfigVersion = SupportedConfigVersion + 1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unsupported config_version")
	}
}

func TestValidateRejectsOverlappingGroups(t *testing.T) {
	cfg := baseConfig()
	cfg.SourceGroups["g2"] = SourceGroup{Name: "g2", Sources: []string{"kbd"}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error: source claimed by two groups")
	}
}

func TestValidateRejectsUnknownGroupReference(t *testing.T) {
	cfg := baseConfig()
	cfg.SourceGroups["g"] = SourceGroup{Name: "g", Sources: []string{"missing"}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error: unknown source in group")
	}
}

func TestValidateRejectsDuplicateLinkPair(t *testing.T) {
	cfg := baseConfig()
	cfg.Links = append(cfg.Links, Link{SourceGroup: "g", Destination: "out"})
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error: duplicate (source_group, destination) pair")
	}
}

func TestValidateRejectsDuplicateActivatorWithinLink(t *testing.T) {
	cfg := baseConfig()
	act := ActivatorConfig{Type: "hotkey", Properties: []byte(`{"hotkey":{"key":"KEY_F1"}}`)}
	cfg.Links[0].Activators = []ActivatorConfig{act, act}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error: duplicate activator within link")
	}
}

func TestValidateRejectsUnknownDestination(t *testing.T) {
	cfg := baseConfig()
	cfg.Links[0].Destination = "missing"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error: unknown destination")
	}
}

package common

import "testing"

func TestConfig_DefaultPort(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port default = %d, want %d", cfg.Server.Port, 8080)
	}
}

func TestConfig_PortEnvOverride(t *testing.T) {
	t.Setenv("CODR_PORT", "9090")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d after env override, want %d", cfg.Server.Port, 9090)
	}
}

func TestConfig_APIKeyEnvOverride(t *testing.T) {
	t.Setenv("API_KEY", "secret-key")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Auth.APIKey != "secret-key" {
		t.Errorf("Auth.APIKey = %q, want %q", cfg.Auth.APIKey, "secret-key")
	}
}

func TestValidateRequired_MissingAPIKey(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.JWTSecret = "real-secret"
	if err := validateRequired(cfg); err == nil {
		t.Fatal("expected error for missing API_KEY")
	}
}

func TestValidateRequired_AllPresent(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.APIKey = "key"
	cfg.Auth.JWTSecret = "real-secret"
	if err := validateRequired(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDefaultLanguageMap_CoversAllEightLanguages(t *testing.T) {
	cfg := NewDefaultConfig()
	want := []string{"python", "javascript", "typescript", "java", "cpp", "c", "go", "rust"}
	for _, lang := range want {
		if _, ok := cfg.Languages[lang]; !ok {
			t.Errorf("missing default language config for %q", lang)
		}
	}
}

func TestOrigins_SplitsCSV(t *testing.T) {
	t.Setenv("ORIGINS", "https://a.example, https://b.example")
	got := Origins()
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("Origins() = %v, want [https://a.example https://b.example]", got)
	}
}

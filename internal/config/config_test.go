package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.MFA.TOTPDigits != 6 {
		t.Errorf("TOTPDigits: got %d, want 6", cfg.MFA.TOTPDigits)
	}
	if cfg.MFA.TOTPPeriod != 30 {
		t.Errorf("TOTPPeriod: got %d, want 30", cfg.MFA.TOTPPeriod)
	}
	if cfg.MFA.TOTPWindow != 1 {
		t.Errorf("TOTPWindow: got %d, want 1", cfg.MFA.TOTPWindow)
	}
	if cfg.MFA.OTPTTL != 5*time.Minute {
		t.Errorf("OTPTTL: got %v, want 5m", cfg.MFA.OTPTTL)
	}
	if cfg.RateLimit.Backend != "memory" {
		t.Errorf("RateLimit.Backend: got %q, want memory", cfg.RateLimit.Backend)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout: got %v, want 15s", cfg.Server.ReadTimeout)
	}
}

func TestLoad_ClampsTOTPParameters(t *testing.T) {
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("TOTP_DIGITS", "12")
	os.Setenv("TOTP_PERIOD", "5")
	os.Setenv("TOTP_WINDOW", "99")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.MFA.TOTPDigits != 8 {
		t.Errorf("TOTPDigits: got %d, want clamped 8", cfg.MFA.TOTPDigits)
	}
	if cfg.MFA.TOTPPeriod != 15 {
		t.Errorf("TOTPPeriod: got %d, want clamped 15", cfg.MFA.TOTPPeriod)
	}
	if cfg.MFA.TOTPWindow != 4 {
		t.Errorf("TOTPWindow: got %d, want clamped 4", cfg.MFA.TOTPWindow)
	}
}

func TestLoad_RequiresDBPassword(t *testing.T) {
	os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want error for missing DB_PASSWORD")
	}
}

func TestLoad_ProductionRequiresSnapshotKey(t *testing.T) {
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("ENV", "production")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want error for missing SNAPSHOT_KEY in production")
	}

	os.Setenv("SNAPSHOT_KEY", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil with SNAPSHOT_KEY set", err)
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction() = false, want true")
	}
}

func TestLoad_ParsesWebAuthnOrigins(t *testing.T) {
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("WEBAUTHN_ORIGINS", "https://a.example, https://b.example ,")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Security.WebAuthnOrigins) != len(want) {
		t.Fatalf("WebAuthnOrigins: got %v, want %v", cfg.Security.WebAuthnOrigins, want)
	}
	for i := range want {
		if cfg.Security.WebAuthnOrigins[i] != want[i] {
			t.Errorf("WebAuthnOrigins[%d]: got %q, want %q", i, cfg.Security.WebAuthnOrigins[i], want[i])
		}
	}
}

func TestLoad_InvalidEnvRejected(t *testing.T) {
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("ENV", "sandbox")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want validation error for unknown ENV")
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "db.internal", Port: 5433, User: "svc", Password: "pw", Name: "punchdeck", SSLMode: "require",
	}
	want := "host=db.internal port=5433 user=svc password=pw dbname=punchdeck sslmode=require"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

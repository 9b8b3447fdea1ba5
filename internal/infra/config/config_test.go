package config

import "testing"

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"TELEGRAM_API_ID", "TELEGRAM_API_HASH", "LOG_LEVEL", "LOG_FORMAT",
		"SESSION_PATH", "UPDATE_BUFFER", "SEND_QUEUE_LIMIT",
		"SEND_RETRY_MAX_ATTEMPTS", "SEND_RETRY_BASE_DELAY_MS", "SEND_RETRY_MAX_DELAY_MS",
		"AUTH_DEFAULT_METHOD", "CACHE_MAX_CHATS", "CACHE_MAX_MESSAGES_PER_CHAT",
		"CACHE_MAX_BYTES", "CACHE_FLUSH_DEBOUNCE_MS", "CACHE_DB_PATH", "TIMEZONE",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadConfigRequiresAPIIDAndHash(t *testing.T) {
	clearEnv(t)
	if _, err := loadConfig("testdata/does-not-exist.env"); err == nil {
		t.Fatalf("expected an error when TELEGRAM_API_ID/TELEGRAM_API_HASH are unset")
	}

	t.Setenv("TELEGRAM_API_ID", "12345")
	if _, err := loadConfig("testdata/does-not-exist.env"); err == nil {
		t.Fatalf("expected an error when TELEGRAM_API_HASH is still unset")
	}
}

func TestLoadConfigAppliesDefaultsAndWarns(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_API_ID", "12345")
	t.Setenv("TELEGRAM_API_HASH", "deadbeef")

	cfg, err := loadConfig("testdata/does-not-exist.env")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Env.SendQueueLimit != defaultSendQueueLimit {
		t.Fatalf("expected default send queue limit %d, got %d", defaultSendQueueLimit, cfg.Env.SendQueueLimit)
	}
	if cfg.Env.AuthDefaultMethod != defaultAuthMethod {
		t.Fatalf("expected default auth method %q, got %q", defaultAuthMethod, cfg.Env.AuthDefaultMethod)
	}
	if len(cfg.warnings) == 0 {
		t.Fatalf("expected warnings accumulated for every defaulted setting")
	}
}

func TestLoadConfigRaisesMaxDelayToBaseDelay(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_API_ID", "12345")
	t.Setenv("TELEGRAM_API_HASH", "deadbeef")
	t.Setenv("SEND_RETRY_BASE_DELAY_MS", "5000")
	t.Setenv("SEND_RETRY_MAX_DELAY_MS", "100")

	cfg, err := loadConfig("testdata/does-not-exist.env")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Env.SendRetryMaxDelayMS != cfg.Env.SendRetryBaseDelayMS {
		t.Fatalf("expected max delay raised to base delay, got base=%d max=%d",
			cfg.Env.SendRetryBaseDelayMS, cfg.Env.SendRetryMaxDelayMS)
	}
}

func TestLoadConfigRejectsInvalidAuthMethod(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_API_ID", "12345")
	t.Setenv("TELEGRAM_API_HASH", "deadbeef")
	t.Setenv("AUTH_DEFAULT_METHOD", "email")

	cfg, err := loadConfig("testdata/does-not-exist.env")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Env.AuthDefaultMethod != defaultAuthMethod {
		t.Fatalf("expected fallback to default auth method, got %q", cfg.Env.AuthDefaultMethod)
	}
}

func TestParseLocationAcceptsIANANameAndUTCOffset(t *testing.T) {
	if _, err := ParseLocation("UTC"); err != nil {
		t.Fatalf("ParseLocation(UTC): %v", err)
	}
	if _, err := ParseLocation("+03:00"); err != nil {
		t.Fatalf("ParseLocation(+03:00): %v", err)
	}
	if _, err := ParseLocation("not-a-timezone"); err == nil {
		t.Fatalf("expected an error for an invalid timezone string")
	}
}

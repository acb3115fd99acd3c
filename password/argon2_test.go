package password

import (
	"errors"
	"strings"
	"testing"
)

// Cheap parameters keep the suite fast; the format is identical.
func testConfig() Config {
	return Config{
		Memory:      minMemoryKB,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newHasher(t *testing.T, cfg Config) *Hasher {
	t.Helper()
	h, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := newHasher(t, testConfig())

	encoded, err := h.Hash("password1")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", encoded)
	}

	ok, err := h.Verify("password1", encoded)
	if err != nil || !ok {
		t.Fatalf("expected match, got %v %v", ok, err)
	}
	ok, err = h.Verify("password2", encoded)
	if err != nil || ok {
		t.Fatalf("expected mismatch, got %v %v", ok, err)
	}

	again, err := h.Hash("password1")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if again == encoded {
		t.Fatal("salts must differ between hashes")
	}
}

func TestNewRejectsWeakConfig(t *testing.T) {
	for _, mutate := range []func(*Config){
		func(c *Config) { c.Memory = 1024 },
		func(c *Config) { c.Time = 0 },
		func(c *Config) { c.Parallelism = 0 },
		func(c *Config) { c.SaltLength = 8 },
		func(c *Config) { c.KeyLength = 8 },
	} {
		cfg := testConfig()
		mutate(&cfg)
		if _, err := New(cfg); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
	if _, err := New(DefaultConfig()); err != nil {
		t.Fatalf("default config: %v", err)
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak := newHasher(t, testConfig())
	encoded, err := weak.Hash("password1")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	if up, err := weak.NeedsUpgrade(encoded); err != nil || up {
		t.Fatalf("same parameters must not upgrade: %v %v", up, err)
	}

	stronger := testConfig()
	stronger.Time = 2
	if up, err := newHasher(t, stronger).NeedsUpgrade(encoded); err != nil || !up {
		t.Fatalf("expected upgrade: %v %v", up, err)
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	h := newHasher(t, testConfig())
	encoded, err := h.Hash("password1")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	for _, bad := range []string{
		"",
		"not-a-hash",
		strings.Replace(encoded, "argon2id", "argon2i", 1),
		strings.Replace(encoded, "v=19", "v=16", 1),
		strings.Replace(encoded, "m=8192", "m=1024", 1),
		strings.Replace(encoded, "p=1", "x=1", 1),
		encoded[:strings.LastIndex(encoded, "$")] + "$!!",
	} {
		if _, err := h.Verify("password1", bad); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("expected ErrMalformedHash for %q, got %v", bad, err)
		}
	}
}

func TestTooLongInputRejected(t *testing.T) {
	h := newHasher(t, testConfig())
	long := strings.Repeat("a1", maxInputBytes)

	if _, err := h.Hash(long); !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
	if _, err := h.Verify(long, "$argon2id$v=19$m=8192,t=1,p=1$AAAA$AAAA"); !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
}

func TestCheckPolicy(t *testing.T) {
	cases := map[string]bool{
		"password1": true,
		"pässwort9": true,
		"short1":    false,
		"password":  false,
		"12345678":  false,
	}
	for in, ok := range cases {
		err := CheckPolicy(in)
		if ok && err != nil {
			t.Fatalf("%q: unexpected error %v", in, err)
		}
		if !ok && !errors.Is(err, ErrWeak) {
			t.Fatalf("%q: expected ErrWeak, got %v", in, err)
		}
	}
}

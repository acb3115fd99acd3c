package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB   uint32 = 8 * 1024
	minSaltLength uint32 = 16
	minKeyLength  uint32 = 16
	maxInputBytes        = 1024
	algorithmID          = "argon2id"
)

var (
	ErrMalformedHash = errors.New("password: malformed hash")
	ErrTooLong       = errors.New("password: input too long")
)

// Config holds Argon2id cost parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the OWASP-recommended Argon2id parameters.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password: memory must be >= %d KB", minMemoryKB)
	case c.Time < 1:
		return errors.New("password: time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("password: parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password: salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password: key length must be >= %d", minKeyLength)
	}
	return nil
}

// Hasher hashes and verifies passwords. It is safe for concurrent use.
type Hasher struct {
	cfg Config
}

// New returns a Hasher for cfg.
func New(cfg Config) (*Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Hasher{cfg: cfg}, nil
}

// Hash returns the PHC encoding of plain under a fresh random salt.
func (h *Hasher) Hash(plain string) (string, error) {
	if len(plain) > maxInputBytes {
		return "", ErrTooLong
	}

	salt := make([]byte, h.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(plain), salt, h.cfg.Time, h.cfg.Memory, h.cfg.Parallelism, h.cfg.KeyLength)

	return encode(phc{
		memory:      h.cfg.Memory,
		time:        h.cfg.Time,
		parallelism: h.cfg.Parallelism,
		salt:        salt,
		key:         key,
	}), nil
}

// Verify reports whether plain matches encoded. The comparison is constant
// time. Malformed hashes return [ErrMalformedHash].
func (h *Hasher) Verify(plain, encoded string) (bool, error) {
	if len(plain) > maxInputBytes {
		return false, ErrTooLong
	}
	p, err := decode(encoded)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(plain), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(key, p.key) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters
// than h uses.
func (h *Hasher) NeedsUpgrade(encoded string) (bool, error) {
	p, err := decode(encoded)
	if err != nil {
		return false, err
	}
	return p.memory < h.cfg.Memory ||
		p.time < h.cfg.Time ||
		p.parallelism < h.cfg.Parallelism ||
		uint32(len(p.key)) != h.cfg.KeyLength, nil
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func encode(p phc) string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		p.memory, p.time, p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	)
}

func decode(encoded string) (phc, error) {
	var p phc

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return p, ErrMalformedHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return p, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, parts[2])
	}

	var (
		par uint32
		err error
	)
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return p, ErrMalformedHash
		}
		var n uint64
		n, err = strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return p, fmt.Errorf("%w: bad parameter %q", ErrMalformedHash, kv)
		}
		switch k {
		case "m":
			p.memory = uint32(n)
		case "t":
			p.time = uint32(n)
		case "p":
			par = uint32(n)
		default:
			return p, fmt.Errorf("%w: unknown parameter %q", ErrMalformedHash, k)
		}
	}
	if p.memory < minMemoryKB || p.time == 0 || par == 0 || par > 255 {
		return p, fmt.Errorf("%w: missing or weak parameters", ErrMalformedHash)
	}
	p.parallelism = uint8(par)

	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || uint32(len(p.salt)) < minSaltLength {
		return p, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || uint32(len(p.key)) < minKeyLength {
		return p, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}
	return p, nil
}

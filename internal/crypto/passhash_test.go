package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestRandBytes_LengthAndUniqueness(t *testing.T) {
	t.Parallel()

	const n = 64
	a, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes: %v", err)
	}
	if len(a) != n {
		t.Fatalf("len=%d, want=%d", len(a), n)
	}
	b, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes(2): %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two subsequent RandBytes(%d) are equal, looks non-random", n)
	}
}

func TestLegacyHash_KnownVector(t *testing.T) {
	t.Parallel()

	// base64(sha256("admin123salt"))
	const want = "GR7mrJGQez9rgBazmSXGlokm4E0PnGHUDaf1aN1q5uc="
	if got := LegacyHash("admin123"); got != want {
		t.Fatalf("LegacyHash=%q, want %q", got, want)
	}
}

func TestLegacyHash_Deterministic(t *testing.T) {
	t.Parallel()

	for _, pw := range []string{"", "a", "p@ssw0rd", "пароль", strings.Repeat("x", 1024)} {
		h1, h2 := LegacyHash(pw), LegacyHash(pw)
		if h1 != h2 {
			t.Fatalf("hash not deterministic for %q", pw)
		}
		if !LegacyVerify(pw, h1) {
			t.Fatalf("LegacyVerify(%q, hash) = false", pw)
		}
	}
	if LegacyHash("p1") == LegacyHash("p2") {
		t.Fatalf("different passwords produced the same digest")
	}
	if LegacyVerify("wrong", LegacyHash("right")) {
		t.Fatalf("LegacyVerify accepted wrong password")
	}
}

func TestHashPassword_DeterministicOnSameInput(t *testing.T) {
	t.Parallel()

	pw := []byte("p@ssw0rd")
	salt := []byte("NaCl-16-bytes?")

	h1 := HashPassword(pw, salt)
	h2 := HashPassword(pw, salt)
	if !bytes.Equal(h1, h2) {
		t.Fatalf("hash not deterministic for same input")
	}
	if bytes.Equal(h1, HashPassword(pw, []byte("another-salt----"))) {
		t.Fatalf("hash should differ when salt differs")
	}
	if !VerifyPassword(pw, salt, h1) {
		t.Fatalf("VerifyPassword: expected true for correct password")
	}
	if VerifyPassword([]byte("wrong"), salt, h1) {
		t.Fatalf("VerifyPassword: expected false for wrong password")
	}
}

func TestHasher_Legacy(t *testing.T) {
	t.Parallel()

	h := NewHasher("")
	if h.Scheme() != SchemeLegacy {
		t.Fatalf("default scheme=%q", h.Scheme())
	}
	d, err := h.Hash("admin123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if d != LegacyHash("admin123") {
		t.Fatalf("legacy hasher must match LegacyHash")
	}
	if !h.Verify("admin123", d) || h.Verify("admin124", d) {
		t.Fatalf("legacy verify mismatch")
	}
}

func TestHasher_Argon2id(t *testing.T) {
	t.Parallel()

	h := NewHasher(SchemeArgon2id)
	d1, err := h.Hash("secret")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	d2, _ := h.Hash("secret")
	if !strings.HasPrefix(d1, "argon2id$") {
		t.Fatalf("unexpected digest format: %s", d1)
	}
	if d1 == d2 {
		t.Fatalf("per-user salt must make digests differ")
	}
	if !h.Verify("secret", d1) || !h.Verify("secret", d2) {
		t.Fatalf("argon2id verify failed")
	}
	if h.Verify("Secret", d1) {
		t.Fatalf("argon2id verify accepted wrong password")
	}

	// Stored legacy digests keep working after switching schemes.
	if !h.Verify("admin123", LegacyHash("admin123")) {
		t.Fatalf("argon2id hasher must still verify legacy digests")
	}
}

func TestHasher_MalformedDigest(t *testing.T) {
	t.Parallel()

	h := NewHasher(SchemeArgon2id)
	for _, d := range []string{"argon2id$", "argon2id$abc", "argon2id$!!$!!", "argon2id$a$b$c"} {
		if h.Verify("x", d) {
			t.Fatalf("malformed digest %q accepted", d)
		}
	}
}

func TestParseScheme(t *testing.T) {
	t.Parallel()

	if s, err := ParseScheme("argon2id"); err != nil || s != SchemeArgon2id {
		t.Fatalf("ParseScheme(argon2id)=%q,%v", s, err)
	}
	if _, err := ParseScheme("md5"); err == nil {
		t.Fatalf("want error for unknown scheme")
	}
}

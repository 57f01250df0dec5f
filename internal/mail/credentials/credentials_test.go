package credentials

import "testing"

func TestEncryptDecrypt(t *testing.T) {
	c, err := New("top-secret")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}

	enc, err := c.Encrypt("smtp-password")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if enc == "smtp-password" {
		t.Fatal("ciphertext equals plaintext")
	}

	again, err := c.Encrypt("smtp-password")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if again == enc {
		t.Fatal("expected a fresh nonce per encryption")
	}

	plain, err := c.Decrypt(enc)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plain != "smtp-password" {
		t.Fatalf("unexpected plaintext %q", plain)
	}
}

func TestDecryptWithOtherSecretFails(t *testing.T) {
	a, _ := New("secret-a")
	b, _ := New("secret-b")

	enc, err := a.Encrypt("api-key")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := b.Decrypt(enc); err == nil {
		t.Fatal("expected decrypt with a different secret to fail")
	}
	if _, err := a.Decrypt("zz"); err == nil {
		t.Fatal("expected invalid hex to fail")
	}
}

func TestOptionalHelpers(t *testing.T) {
	c, _ := New("secret")

	if enc, err := c.EncryptOptional(nil); err != nil || enc != nil {
		t.Fatalf("nil should pass through, got %v %v", enc, err)
	}
	empty := ""
	if enc, err := c.EncryptOptional(&empty); err != nil || enc != nil {
		t.Fatalf("empty should pass through, got %v %v", enc, err)
	}
	if plain, err := c.DecryptOptional(nil); err != nil || plain != "" {
		t.Fatalf("nil should decrypt to empty, got %q %v", plain, err)
	}

	key := "key-123"
	enc, err := c.EncryptOptional(&key)
	if err != nil || enc == nil {
		t.Fatalf("encrypt optional: %v", err)
	}
	if plain, err := c.DecryptOptional(enc); err != nil || plain != key {
		t.Fatalf("round trip failed: %q %v", plain, err)
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected empty secret to be rejected")
	}
}

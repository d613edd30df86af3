package secret

import (
	"errors"
	"strings"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	s := New("correct horse battery staple")

	sealed, err := s.Seal("ghp_token123")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !strings.HasPrefix(sealed, prefix) {
		t.Fatalf("sealed = %q, want %q prefix", sealed, prefix)
	}
	if strings.Contains(sealed, "ghp_token123") {
		t.Fatal("sealed value leaks plaintext")
	}

	got, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got != "ghp_token123" {
		t.Errorf("open = %q, want %q", got, "ghp_token123")
	}
}

func TestSealUsesFreshSalt(t *testing.T) {
	s := New("pass")
	a, _ := s.Seal("same")
	b, _ := s.Seal("same")
	if a == b {
		t.Error("two seals of the same value should differ")
	}
}

func TestOpenWrongPassphrase(t *testing.T) {
	sealed, err := New("one").Seal("value")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	_, err = New("two").Open(sealed)
	if !errors.Is(err, ErrDecrypt) {
		t.Fatalf("err = %v, want ErrDecrypt", err)
	}
}

func TestNilSealerPassesThrough(t *testing.T) {
	var s *Sealer = New("")
	if s.Enabled() {
		t.Fatal("empty passphrase should disable sealing")
	}

	sealed, err := s.Seal("plain")
	if err != nil || sealed != "plain" {
		t.Fatalf("seal = %q, %v", sealed, err)
	}
	got, err := s.Open("plain")
	if err != nil || got != "plain" {
		t.Fatalf("open = %q, %v", got, err)
	}
}

func TestOpenPlaintextWithSealer(t *testing.T) {
	got, err := New("pass").Open("legacy")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got != "legacy" {
		t.Errorf("open = %q, want legacy", got)
	}
}

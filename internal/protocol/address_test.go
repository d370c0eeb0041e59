package protocol

import (
	"errors"
	"testing"
)

func TestCanonicalAddressText(t *testing.T) {
	a := addr(t, "192.168.1.1", "5335")
	if a.IPString() != "192.168.001.001" {
		t.Fatalf("ip text mismatch: %q", a.IPString())
	}
	if a.PortString() != "05335" {
		t.Fatalf("port text mismatch: %q", a.PortString())
	}
	if a.String() != "192.168.001.001:05335" {
		t.Fatalf("canonical text mismatch: %q", a.String())
	}
	if a.HostPort() != "192.168.1.1:5335" {
		t.Fatalf("dialable text mismatch: %q", a.HostPort())
	}
}

func TestCanonicalizationIdempotent(t *testing.T) {
	a := addr(t, "7.0.0.42", "99")
	again := addr(t, a.IPString(), a.PortString())
	if a != again {
		t.Fatalf("canonicalization not idempotent: %v vs %v", a, again)
	}
}

func TestPaddedAndUnpaddedInputsAreEqual(t *testing.T) {
	plain := addr(t, "192.168.1.1", "5000")
	padded := addr(t, "192.168.001.001", "05000")
	if plain != padded {
		t.Fatalf("padded input parsed differently: %v vs %v", plain, padded)
	}
}

func TestParsePortOverflow(t *testing.T) {
	if _, err := ParsePort("123456"); !errors.Is(err, ErrFieldOverflow) {
		t.Fatalf("expected ErrFieldOverflow for 6-digit port, got %v", err)
	}
	if _, err := ParsePort("70000"); !errors.Is(err, ErrFieldOverflow) {
		t.Fatalf("expected ErrFieldOverflow for port over 65535, got %v", err)
	}
	if _, err := ParsePort("abc"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for non-numeric port, got %v", err)
	}
	if _, err := ParsePort(""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty port, got %v", err)
	}
}

func TestParseAddrRejectsBadOctets(t *testing.T) {
	if _, err := ParseAddr("300.0.0.1", "5000"); !errors.Is(err, ErrFieldOverflow) {
		t.Fatalf("expected ErrFieldOverflow for octet over 255, got %v", err)
	}
	if _, err := ParseAddr("1.2.3", "5000"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for 3-part ip, got %v", err)
	}
	if _, err := ParseAddr("a.b.c.d", "5000"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for non-numeric ip, got %v", err)
	}
}

func TestIsZero(t *testing.T) {
	if !(Addr{}).IsZero() {
		t.Fatalf("zero value should be zero")
	}
	if addr(t, "0.0.0.0", "1").IsZero() {
		t.Fatalf("port 1 should not be zero")
	}
}

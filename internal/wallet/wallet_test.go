package wallet

import (
	"strings"
	"testing"
)

func TestDeriveAddressShape(t *testing.T) {
	addr := DeriveAddress(42)
	if !strings.HasPrefix(addr, "0x") {
		t.Fatalf("address missing 0x prefix: %q", addr)
	}
	if len(addr) != 42 {
		t.Fatalf("address length = %d, want 42", len(addr))
	}
	if addr != strings.ToLower(addr) {
		t.Fatalf("address not lower-case: %q", addr)
	}
}

func TestDeriveAddressDeterministic(t *testing.T) {
	for _, id := range []int64{1, 42, 999999999, 5167428331} {
		if a, b := DeriveAddress(id), DeriveAddress(id); a != b {
			t.Fatalf("id %d derived %q then %q", id, a, b)
		}
	}
}

func TestDeriveAddressNoCollisions(t *testing.T) {
	seen := make(map[string]int64, 100000)
	for id := int64(1); id <= 100000; id++ {
		addr := DeriveAddress(id)
		if prev, ok := seen[addr]; ok {
			t.Fatalf("ids %d and %d both derive %s", prev, id, addr)
		}
		seen[addr] = id
	}
}

func TestFindIdentifierSelfMatch(t *testing.T) {
	const id = int64(4242)
	got, err := FindIdentifier(DeriveAddress(id), id, 0)
	if err != nil {
		t.Fatalf("self match: %v", err)
	}
	if got != id {
		t.Fatalf("got %d, want %d", got, id)
	}
}

func TestFindIdentifierOffsetHint(t *testing.T) {
	const id = int64(700)
	got, err := FindIdentifier(DeriveAddress(id), id+50, 100)
	if err != nil {
		t.Fatalf("offset hint: %v", err)
	}
	if got != id {
		t.Fatalf("got %d, want %d", got, id)
	}
}

func TestFindIdentifierCaseInsensitive(t *testing.T) {
	const id = int64(31337)
	got, err := FindIdentifier(strings.ToUpper(DeriveAddress(id)), id, 0)
	if err != nil {
		t.Fatalf("upper-case target: %v", err)
	}
	if got != id {
		t.Fatalf("got %d, want %d", got, id)
	}
}

func TestFindIdentifierNotFound(t *testing.T) {
	_, err := FindIdentifier("0x0000000000000000000000000000000000000000", 500, 10)
	if err != ErrAddressNotFound {
		t.Fatalf("err = %v, want ErrAddressNotFound", err)
	}
}

func TestFindIdentifierClampsBelowOne(t *testing.T) {
	const id = int64(3)
	got, err := FindIdentifier(DeriveAddress(id), 1, 100)
	if err != nil {
		t.Fatalf("clamped range: %v", err)
	}
	if got != id {
		t.Fatalf("got %d, want %d", got, id)
	}
}

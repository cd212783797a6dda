package utils

import "testing"

func TestHashString(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := HashString("abc"); got != want {
		t.Errorf("HashString(abc) = %s, want %s", got, want)
	}
}

func TestCacheKeyDistinguishesBoundaries(t *testing.T) {
	if CacheKey("ab", "c") == CacheKey("a", "bc") {
		t.Error("CacheKey should not collide when parts shift across boundaries")
	}
	if CacheKey("q", "3") != CacheKey("q", "3") {
		t.Error("CacheKey is not deterministic")
	}
}

package hashing

import "testing"

func TestLegacyDeterministic(t *testing.T) {
	a := Legacy([]byte("MESSAGE=hello"))
	b := Legacy([]byte("MESSAGE=hello"))
	if a != b {
		t.Fatal("legacy hash must be deterministic")
	}
	if a == Legacy([]byte("MESSAGE=world")) {
		t.Fatal("different payloads should not usually collide")
	}
}

func TestKeyedDependsOnKey(t *testing.T) {
	var k1, k2 Key
	k1[0] = 1
	k2[0] = 2

	data := []byte("MESSAGE=hello")
	if Keyed(k1, data) == Keyed(k2, data) {
		t.Fatal("keyed hash must depend on the key")
	}
}

func TestStableNonKeyedMatchesLegacy(t *testing.T) {
	data := []byte("PRIORITY=6")
	if StableNonKeyed(data) != Legacy(data) {
		t.Fatal("xor_hash must use the stable non-keyed hash regardless of file keying")
	}
}

package cursor

import (
	"strings"
	"testing"
)

func TestKeyRoundTrip(t *testing.T) {
	k := Key{TS: "2024-05-01T10:00:00.000Z", ID: "p42"}
	enc := EncodeKey(k)
	got, err := DecodeKey(enc)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got != k {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, k)
	}
}

func TestActivityRoundTrip(t *testing.T) {
	a := Activity{ActivityAt: "2024-05-01T10:00:00.000Z", Kind: "repost", PostID: "p1", ReposterProfileID: "pr9"}
	got, err := DecodeActivity(EncodeActivity(a))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got != a {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, a)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeKey("!!!not-base64!!!"); err == nil {
		t.Fatalf("expected error for non-base64 input")
	}
	if _, err := DecodeKey(EncodeActivity(Activity{ActivityAt: "t", Kind: "k", PostID: "p", ReposterProfileID: "r"})); err == nil {
		t.Fatalf("expected field-count error decoding a 4-field cursor as a key")
	}
	if _, err := DecodeActivity(EncodeKey(Key{TS: "t", ID: "p"})); err == nil {
		t.Fatalf("expected field-count error decoding a 2-field cursor as activity")
	}
}

func TestCursorIsOpaque(t *testing.T) {
	enc := EncodeKey(Key{TS: "2024-05-01T10:00:00.000Z", ID: "p1"})
	if strings.Contains(enc, "|") {
		t.Fatalf("encoded cursor leaks separator: %q", enc)
	}
}

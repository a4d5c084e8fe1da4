package domain

import (
	"reflect"
	"testing"
)

func TestCanonicalKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		id   int64
		want string
	}{
		{raw: "42", id: 42, want: "42"},
		{raw: "42.0", id: 42, want: "42"},
		{raw: " 42 ", id: 42, want: "42"},
		{raw: "1e3", id: 1000, want: "1000"},
		{raw: "1700000000.1234", id: 1700000000, want: "1700000000.1234"},
		{raw: "1700000000.5678", id: 1700000000, want: "1700000000.5678"},
		{raw: "", id: 7, want: "7"},
	}
	for _, tc := range cases {
		if got := CanonicalKey(tc.raw, tc.id); got != tc.want {
			t.Fatalf("CanonicalKey(%q, %d) = %q, want %q", tc.raw, tc.id, got, tc.want)
		}
	}
}

func TestAlertRecordKeySeparatesSameSecond(t *testing.T) {
	t.Parallel()

	a := AlertRecord{ID: 1700000000, RawID: "1700000000.1234"}
	b := AlertRecord{ID: 1700000000, RawID: "1700000000.5678"}
	if a.Key() == b.Key() {
		t.Fatalf("distinct alerts share key %q", a.Key())
	}
	if (AlertRecord{ID: 42, RawID: "42.0"}).Key() != (AlertRecord{ID: 42}).Key() {
		t.Fatal("42.0 and 42 should share a key")
	}
}

func TestKeySeq(t *testing.T) {
	t.Parallel()

	for key, want := range map[string]int64{"12": 12, "1700000000.5678": 1700000000, "9007199254740993": 9007199254740993} {
		got, ok := KeySeq(key)
		if !ok || got != want {
			t.Fatalf("KeySeq(%q) = %d, %v; want %d", key, got, ok, want)
		}
	}
	if _, ok := KeySeq("abc"); ok {
		t.Fatal("KeySeq accepted a non-numeric key")
	}
}

func TestSortKeys(t *testing.T) {
	t.Parallel()

	keys := []string{"12", "x", "1700000000.5678", "3", "1700000000.10", "1700000000.9", "1700000000"}
	SortKeys(keys)
	want := []string{"3", "12", "1700000000", "1700000000.9", "1700000000.10", "1700000000.5678", "x"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("SortKeys = %v, want %v", keys, want)
	}
}

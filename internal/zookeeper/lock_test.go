package zookeeper

import (
	"reflect"
	"testing"
)

func TestSortBySequenceIgnoresProtectedPrefix(t *testing.T) {
	children := []string{
		"_c_f3a1-lock-0000000007",
		"_c_0b2e-lock-0000000003",
		"_c_9c44-lock-0000000010",
	}
	sortBySequence(children)

	want := []string{
		"_c_0b2e-lock-0000000003",
		"_c_f3a1-lock-0000000007",
		"_c_9c44-lock-0000000010",
	}
	if !reflect.DeepEqual(children, want) {
		t.Errorf("got %v, want %v", children, want)
	}
}

func TestPredecessor(t *testing.T) {
	sorted := []string{"_c_a-lock-0000000001", "_c_b-lock-0000000002", "_c_c-lock-0000000003"}

	prev, err := predecessor(sorted, "_c_a-lock-0000000001")
	if err != nil || prev != "" {
		t.Errorf("first node should own the lock, got %q, %v", prev, err)
	}

	prev, err = predecessor(sorted, "_c_c-lock-0000000003")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prev != "_c_b-lock-0000000002" {
		t.Errorf("expected to watch the node just before, got %q", prev)
	}

	if _, err := predecessor(sorted, "_c_z-lock-0000000009"); err == nil {
		t.Errorf("expected error for a node that is not among the children")
	}
}

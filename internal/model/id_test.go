package model

import (
	"testing"
	"time"
)

func TestGenerateID(t *testing.T) {
	id, err := GenerateID(IDTypeRun)
	if err != nil {
		t.Fatalf("GenerateID: %v", err)
	}
	if !ValidateID(id) {
		t.Errorf("generated ID %q does not validate", id)
	}
}

func TestGenerateIDInvalidType(t *testing.T) {
	if _, err := GenerateID(IDType("task")); err == nil {
		t.Error("expected error for invalid ID type")
	}
}

func TestGenerateIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := GenerateID(IDTypeRun)
		if err != nil {
			t.Fatalf("GenerateID: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestParseIDTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	id, err := GenerateID(IDTypeRun)
	if err != nil {
		t.Fatalf("GenerateID: %v", err)
	}
	ts, err := ParseIDTimestamp(id)
	if err != nil {
		t.Fatalf("ParseIDTimestamp: %v", err)
	}
	if ts.Before(before) || ts.After(time.Now().Add(time.Second)) {
		t.Errorf("timestamp %v out of expected range", ts)
	}

	if _, err := ParseIDTimestamp("bogus"); err == nil {
		t.Error("expected error for malformed ID")
	}
}

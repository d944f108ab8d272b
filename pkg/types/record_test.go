package types

import (
	"testing"
	"time"
)

func TestIsValidRecordKind(t *testing.T) {
	for _, kind := range ValidRecordKinds {
		if !IsValidRecordKind(kind) {
			t.Errorf("expected %q to be a valid kind", kind)
		}
	}
	if IsValidRecordKind("reminder") {
		t.Error("expected unknown kind to be invalid")
	}
	if IsValidRecordKind("") {
		t.Error("expected empty kind to be invalid")
	}
}

func TestClampImportance(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-3, ImportanceMin},
		{0, ImportanceMin},
		{1, 1},
		{5, 5},
		{10, 10},
		{11, ImportanceMax},
		{100, ImportanceMax},
	}
	for _, tt := range tests {
		if got := ClampImportance(tt.in); got != tt.want {
			t.Errorf("ClampImportance(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNormalizedImportance(t *testing.T) {
	tests := []struct {
		importance int
		want       float64
	}{
		{1, 0.0},
		{5, 4.0 / 9.0},
		{10, 1.0},
	}
	for _, tt := range tests {
		r := &Record{Importance: tt.importance}
		if got := r.NormalizedImportance(); got != tt.want {
			t.Errorf("importance %d normalized to %v, want %v", tt.importance, got, tt.want)
		}
	}
}

func TestRecordExpired(t *testing.T) {
	now := time.Now()

	r := &Record{}
	if r.Expired(now) {
		t.Error("record without expiry should never expire")
	}

	past := now.Add(-time.Hour)
	r = &Record{ExpiresAt: &past}
	if !r.Expired(now) {
		t.Error("record with past expiry should be expired")
	}

	future := now.Add(time.Hour)
	r = &Record{ExpiresAt: &future}
	if r.Expired(now) {
		t.Error("record with future expiry should not be expired")
	}

	r = &Record{ExpiresAt: &now}
	if !r.Expired(now) {
		t.Error("record expiring exactly now should be expired")
	}
}

func TestIsValidProjectStatus(t *testing.T) {
	for _, status := range ValidProjectStatuses {
		if !IsValidProjectStatus(status) {
			t.Errorf("expected %q to be a valid project status", status)
		}
	}
	if IsValidProjectStatus("cancelled") {
		t.Error("expected unknown project status to be invalid")
	}
}

func TestIsValidNotebookStatus(t *testing.T) {
	for _, status := range ValidNotebookStatuses {
		if !IsValidNotebookStatus(status) {
			t.Errorf("expected %q to be a valid notebook status", status)
		}
	}
	if IsValidNotebookStatus("published") {
		t.Error("expected unknown notebook status to be invalid")
	}
}

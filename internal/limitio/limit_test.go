package limitio

import (
	"bytes"
	"testing"

	apperrors "lhtl/internal/errors"
)

func TestReadAllWithinLimit(t *testing.T) {
	payload := []byte("scorecard")
	got, err := ReadAll(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected %q, got %q", payload, got)
	}
}

func TestReadAllTooLarge(t *testing.T) {
	_, err := ReadAll(bytes.NewReader([]byte("scorecard")), 2)
	if err == nil {
		t.Fatal("expected error")
	}
	if apperrors.KindOf(err) != apperrors.KindTooLarge {
		t.Fatalf("expected TooLargeError, got %v", err)
	}
}

func TestReadAllUnlimited(t *testing.T) {
	payload := []byte("comic")
	got, err := ReadAll(bytes.NewReader(payload), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected %q, got %q", payload, got)
	}
}

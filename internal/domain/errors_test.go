package domain

import (
	"errors"
	"testing"
)

func TestCorruptListingError(t *testing.T) {
	err := NewCorruptListing("listing-7", errors.New("unexpected EOF"))

	if !errors.Is(err, ErrCorruptListing) {
		t.Error("expected errors.Is ErrCorruptListing")
	}
	var cle *CorruptListingError
	if !errors.As(err, &cle) || cle.ID != "listing-7" {
		t.Errorf("expected CorruptListingError with id, got %v", err)
	}
	if got := err.Error(); got != "corrupt listing: listing-7: unexpected EOF" {
		t.Errorf("Error() = %q", got)
	}
}

func TestUpsertFailureError(t *testing.T) {
	cause := errors.New("OOM command not allowed")
	err := NewUpsertFailure("listing-3", cause)

	if !errors.Is(err, ErrUpsertFailure) || !errors.Is(err, cause) {
		t.Errorf("expected both sentinel and cause in chain: %v", err)
	}
	var ufe *UpsertFailureError
	if !errors.As(err, &ufe) || ufe.ListingID != "listing-3" {
		t.Errorf("expected listing id, got %v", err)
	}
}

func TestProviderError_Retryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{0, true},
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{401, false},
		{404, false},
	}
	for _, tc := range tests {
		err := &ProviderError{StatusCode: tc.status, Message: "x"}
		if got := err.Retryable(); got != tc.want {
			t.Errorf("status %d: Retryable() = %v, want %v", tc.status, got, tc.want)
		}
		if !errors.Is(err, ErrEmbeddingFailure) {
			t.Errorf("status %d: expected ErrEmbeddingFailure in chain", tc.status)
		}
	}
}

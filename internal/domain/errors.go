package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbeddingFailure signals that the embedding provider could not produce a vector.
	ErrEmbeddingFailure = errors.New("embedding failure")
	// ErrIndexUnavailable signals that the vector index could not serve the request.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrCorruptListing signals stored listing metadata that is not a JSON object.
	ErrCorruptListing = errors.New("corrupt listing")
	// ErrUpsertFailure signals a write rejected by the vector index.
	ErrUpsertFailure = errors.New("upsert failure")
	// ErrTimeout signals a remote call that exceeded its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrInvalidArgument signals a malformed request parameter.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrVectorDimMismatch signals a vector whose length differs from the index dimension.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")

	// ErrSessionNotFound signals an unknown conversation session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded signals a tool call on a finished conversation.
	ErrSessionEnded = errors.New("session ended")
	// ErrInvalidTransition signals a contact form step taken out of order.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInvalidContact signals a malformed email address or phone number.
	ErrInvalidContact = errors.New("invalid contact info")
	// ErrUnsupportedLanguage signals a language code the agent cannot speak.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrUnknownTool signals a tool name the agent does not expose.
	ErrUnknownTool = errors.New("unknown tool")
)

// CorruptListingError wraps ErrCorruptListing with the offending listing id.
type CorruptListingError struct {
	ID  string
	Err error
}

func (e *CorruptListingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrCorruptListing.Error(), e.ID)
	}
	return fmt.Sprintf("%s: %s: %v", ErrCorruptListing.Error(), e.ID, e.Err)
}

func (e *CorruptListingError) Unwrap() error { return ErrCorruptListing }

// NewCorruptListing creates a corrupt listing error.
func NewCorruptListing(id string, cause error) error {
	return &CorruptListingError{ID: id, Err: cause}
}

// UpsertFailureError wraps ErrUpsertFailure with the listing id whose write failed.
type UpsertFailureError struct {
	ListingID string
	Err       error
}

func (e *UpsertFailureError) Error() string {
	return fmt.Sprintf("%s: listing %s: %v", ErrUpsertFailure.Error(), e.ListingID, e.Err)
}

func (e *UpsertFailureError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpsertFailure}
	}
	return []error{ErrUpsertFailure, e.Err}
}

// NewUpsertFailure creates an upsert failure error.
func NewUpsertFailure(listingID string, cause error) error {
	return &UpsertFailureError{ListingID: listingID, Err: cause}
}

// ProviderError is a failed embedding call with the provider's HTTP status.
// StatusCode is 0 when the request never got a response.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", ErrEmbeddingFailure.Error(), e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", ErrEmbeddingFailure.Error(), e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error { return ErrEmbeddingFailure }

// Retryable reports whether repeating the call may succeed: transport failures,
// throttling (429) and server errors are retryable, other client errors are not.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

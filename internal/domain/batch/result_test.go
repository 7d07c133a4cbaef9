package batch

import (
	"errors"
	"testing"
)

func TestNewOK(t *testing.T) {
	r := NewOK("listing-1")
	if r.ID() != "listing-1" {
		t.Errorf("ID() = %q", r.ID())
	}
	if r.Status() != StatusOK {
		t.Errorf("Status() = %q, want %q", r.Status(), StatusOK)
	}
	if r.Err() != nil {
		t.Errorf("Err() = %v, want nil", r.Err())
	}
}

func TestNewError(t *testing.T) {
	err := errors.New("provider down")
	r := NewError("listing-2", StageEmbed, err)
	if r.Status() != StatusError {
		t.Errorf("Status() = %q, want %q", r.Status(), StatusError)
	}
	if r.Stage() != StageEmbed {
		t.Errorf("Stage() = %q, want %q", r.Stage(), StageEmbed)
	}
	if !errors.Is(r.Err(), err) {
		t.Errorf("Err() = %v, want %v", r.Err(), err)
	}
}

func TestSummarize(t *testing.T) {
	boom := errors.New("boom")
	s := Summarize([]Result{
		NewOK("listing-0"),
		NewError("listing-1", StageDecode, boom),
		NewOK("listing-2"),
		NewError("listing-3", StageUpsert, boom),
		NewError("listing-4", StageUpsert, boom),
	})

	if s.Total != 5 || s.Indexed != 2 || s.Failed != 3 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if len(s.FailedIDs) != 3 || s.FailedIDs[0] != "listing-1" || s.FailedIDs[2] != "listing-4" {
		t.Errorf("unexpected failed ids: %v", s.FailedIDs)
	}
	if s.ByStage[StageUpsert] != 2 || s.ByStage[StageDecode] != 1 {
		t.Errorf("unexpected stage counts: %v", s.ByStage)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	if s.Total != 0 || s.FailedIDs != nil || s.ByStage != nil {
		t.Errorf("unexpected summary: %+v", s)
	}
}

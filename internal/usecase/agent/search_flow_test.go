package agent

import (
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/homefinder/internal/domain"
	"github.com/kailas-cloud/homefinder/internal/domain/listing"
	"github.com/kailas-cloud/homefinder/internal/domain/session"
	searchuc "github.com/kailas-cloud/homefinder/internal/usecase/search"
)

const nagoyaListing = `{
  "title": "OMORI HACHIRYU HOUSE",
  "property_detail": {"PRICE": "$2,275,865", "BEDROOMS": "5", "TYPE": "House"},
  "description_detail": {"Address": "Omori hachiryu, Moriyama-ku, Nagoya, Aichi, Japan.", "Structure": "Wooden"}
}`

// singleListingIndex holds one listing and returns it for any query.
type singleListingIndex struct {
	match   listing.Match
	topK    int
	include bool
}

func (x *singleListingIndex) Query(_ context.Context, _ []float32, topK int, includeMetadata bool) ([]listing.Match, error) {
	x.topK, x.include = topK, includeMetadata
	return []listing.Match{x.match}, nil
}

type staticEmbedder struct {
	text string
}

func (e *staticEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	e.text = text
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}, TotalTokens: 12}, nil
}

func TestSearchRealEstate_NagoyaSingleListing(t *testing.T) {
	idx := &singleListingIndex{match: listing.Match{
		ID:       "listing-0",
		Score:    0.9,
		Metadata: map[string]string{listing.MetadataField: nagoyaListing},
	}}
	emb := &staticEmbedder{}
	search := searchuc.New(idx, emb, searchuc.Config{}, zap.NewNop())

	sessions := &memSessions{data: map[string]session.State{}}
	pub := &recPublisher{}
	svc := New(search, sessions, &mockContacts{}, pub, Config{}, zap.NewNop())
	svc.newID = func() string { return "sess-1" }
	if _, err := svc.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start: %v", err)
	}

	res, err := svc.Dispatch(context.Background(), "sess-1", ToolSearchRealEstate,
		json.RawMessage(`{"location":"Nagoya","price":"2,000,000","bedrooms":"5"}`))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Error != "" {
		t.Fatalf("unexpected tool error: %s", res.Error)
	}

	if idx.topK != 3 || !idx.include {
		t.Errorf("index queried with top_k=%d include=%v", idx.topK, idx.include)
	}
	if emb.text != "5 bedroom property in Nagoya priced around 2,000,000" {
		t.Errorf("embedded %q", emb.text)
	}

	records, ok := res.Output.([]listing.Record)
	if !ok {
		t.Fatalf("output type %T", res.Output)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(records))
	}
	rec := records[0]
	if rec.String(listing.FieldTitle) != "OMORI HACHIRYU HOUSE" {
		t.Errorf("title = %q", rec.String(listing.FieldTitle))
	}
	if rec.String(listing.FieldBedrooms) != "5" || rec.String(listing.FieldPrice) != "$2,275,865" {
		t.Errorf("unexpected compact record: %v", rec)
	}
	if len(rec) != 4 {
		t.Errorf("compact record has %d fields: %v", len(rec), rec)
	}

	if len(pub.events) != 1 || pub.events[0].Topic != session.TopicMatches {
		t.Fatalf("expected one matches event, got %+v", pub.events)
	}
}

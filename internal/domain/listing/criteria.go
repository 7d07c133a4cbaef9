package listing

import "fmt"

// Criteria holds the caller's free-text search preferences.
// No field is validated; price is expected to be a USD amount.
type Criteria struct {
	Location string `json:"location"`
	Price    string `json:"price"`
	Bedrooms string `json:"bedrooms"`
}

// Query renders the criteria as the sentence that drives the embedding step.
// Empty fields are interpolated as-is.
func (c Criteria) Query() string {
	return fmt.Sprintf("%s bedroom property in %s priced around %s", c.Bedrooms, c.Location, c.Price)
}

// SummaryText renders the sentence embedded for a listing at ingestion time.
func SummaryText(r Record) string {
	return fmt.Sprintf("%s. Located in %s, priced at %s, with %s bedrooms. Type: %s",
		r.String(FieldTitle), r.String(FieldAddress), r.String(FieldPrice),
		r.String(FieldBedrooms), r.String(FieldStructure))
}

package listing

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/kailas-cloud/homefinder/internal/domain"
)

// MetadataField is the index metadata key holding the serialized listing.
const MetadataField = "full"

// Output field names of a normalized record.
const (
	FieldTitle         = "title"
	FieldAddress       = "address"
	FieldPrice         = "price"
	FieldBedrooms      = "bedrooms"
	FieldBathrooms     = "bathrooms"
	FieldPropertyType  = "property_type"
	FieldSquareFootage = "square_footage"
	FieldLandArea      = "land_area"
	FieldStructure     = "structure"
	FieldZoning        = "zoning"
	FieldLandRights    = "land_rights"
	FieldYearBuilt     = "year_built"
	FieldDateUpdated   = "date_updated"
	FieldURL           = "url"
	FieldImages        = "images"
	FieldFloorPlan     = "floor_plan"
)

// Kind is the shape of a normalized field value.
type Kind int

const (
	// KindString fields default to "".
	KindString Kind = iota
	// KindList fields default to an empty list.
	KindList
)

// FieldMapping maps one output field to a dotted path inside the raw listing.
type FieldMapping struct {
	Output string
	Path   string
	Kind   Kind
}

// Fields is the declarative mapping walked by Normalize, in output order.
var Fields = []FieldMapping{
	{Output: FieldTitle, Path: "title"},
	{Output: FieldAddress, Path: "description_detail.Address"},
	{Output: FieldPrice, Path: "property_detail.PRICE"},
	{Output: FieldBedrooms, Path: "property_detail.BEDROOMS"},
	{Output: FieldBathrooms, Path: "property_detail.BATHROOMS"},
	{Output: FieldPropertyType, Path: "property_detail.TYPE"},
	{Output: FieldSquareFootage, Path: "property_detail.SIZE"},
	{Output: FieldLandArea, Path: "description_detail.Land Area"},
	{Output: FieldStructure, Path: "description_detail.Structure"},
	{Output: FieldZoning, Path: "description_detail.Zoning"},
	{Output: FieldLandRights, Path: "description_detail.Land Rights"},
	{Output: FieldYearBuilt, Path: "description_detail.Year Built"},
	{Output: FieldDateUpdated, Path: "description_detail.Date Updated"},
	{Output: FieldURL, Path: "url"},
	{Output: FieldImages, Path: "images", Kind: KindList},
	{Output: FieldFloorPlan, Path: "floor_plan", Kind: KindList},
}

// compactFields is the projection read back to the caller by voice.
var compactFields = []string{FieldTitle, FieldAddress, FieldPrice, FieldBedrooms}

// Record is a flat, display-ready listing. Values are string or []string;
// every mapped field is present.
type Record map[string]any

// String returns a string field, or "" for list or unknown fields.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// List returns a list field, or nil for string or unknown fields.
func (r Record) List(field string) []string {
	l, _ := r[field].([]string)
	return l
}

// Compact projects the record onto title, address, price and bedrooms.
func (r Record) Compact() Record {
	out := make(Record, len(compactFields))
	for _, f := range compactFields {
		out[f] = r.String(f)
	}
	return out
}

// Decode parses a serialized listing into a generic JSON object.
// Numbers are kept as their JSON text.
func Decode(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after listing object")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("listing is not a JSON object")
	}
	return obj, nil
}

// Normalize deserializes one match's metadata blob and projects it through Fields.
// Malformed JSON yields a CorruptListingError for that id only.
func Normalize(id, raw string) (Record, error) {
	obj, err := Decode([]byte(raw))
	if err != nil {
		return nil, domain.NewCorruptListing(id, err)
	}
	return Project(obj), nil
}

// Project walks Fields over a decoded listing. Missing keys and
// unexpected shapes degrade to the field default.
func Project(obj map[string]any) Record {
	rec := make(Record, len(Fields))
	for _, m := range Fields {
		v, _ := lookup(obj, m.Path)
		switch m.Kind {
		case KindList:
			rec[m.Output] = toList(v)
		default:
			rec[m.Output] = toString(v)
		}
	}
	return rec
}

func lookup(obj map[string]any, path string) (any, bool) {
	var cur any = obj
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func toList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch t := it.(type) {
		case string:
			out = append(out, t)
		case json.Number:
			out = append(out, t.String())
		}
	}
	return out
}

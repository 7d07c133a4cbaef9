package batch

// Stage names the ingestion step an item reached.
type Stage string

// Ingestion stages.
const (
	StageDecode Stage = "decode"
	StageEmbed  Stage = "embed"
	StageUpsert Stage = "upsert"
)

// ItemStatus is the processing outcome of a single listing.
type ItemStatus string

// Item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Result is the outcome of ingesting one listing.
type Result struct {
	id     string
	status ItemStatus
	stage  Stage
	err    error
}

// NewOK creates a successful result.
func NewOK(id string) Result { return Result{id: id, status: StatusOK, stage: StageUpsert} }

// NewError creates a result for a listing that failed at stage.
func NewError(id string, stage Stage, err error) Result {
	return Result{id: id, status: StatusError, stage: stage, err: err}
}

// ID returns the listing identifier.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Stage returns the last stage reached.
func (r Result) Stage() Stage { return r.stage }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// Summary aggregates per-listing outcomes.
type Summary struct {
	Total     int           `json:"total"`
	Indexed   int           `json:"indexed"`
	Failed    int           `json:"failed"`
	FailedIDs []string      `json:"failed_ids,omitempty"`
	ByStage   map[Stage]int `json:"failed_by_stage,omitempty"`
}

// Summarize folds results into a Summary, preserving failure order.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.status == StatusOK {
			s.Indexed++
			continue
		}
		s.Failed++
		s.FailedIDs = append(s.FailedIDs, r.id)
		if s.ByStage == nil {
			s.ByStage = make(map[Stage]int)
		}
		s.ByStage[r.stage]++
	}
	return s
}

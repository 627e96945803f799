package contracts

import "time"

// Pipeline stages (SSOT)
// Every log file, console header and scheduler job uses these constants.
//
//   load → clean → transform → analyze
//
// Stages never call each other; they only share persisted tables.

// Stage represents a pipeline stage
type Stage string

const (
	// StageLoad fetches monthly extracts and the emissions lookup
	// Location: internal/loader/
	StageLoad Stage = "load"

	// StageClean applies the ordered filter rules in place
	// Location: internal/cleaner/
	StageClean Stage = "clean"

	// StageTransform derives CO2, speed and calendar buckets
	// Location: internal/transformer/
	StageTransform Stage = "transform"

	// StageAnalyze runs the read-only aggregate battery
	// Location: internal/analyzer/
	StageAnalyze Stage = "analyze"
)

// Stages lists all stages in execution order
var Stages = []Stage{StageLoad, StageClean, StageTransform, StageAnalyze}

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// StageOutcome is the timing and result of one stage within a run
type StageOutcome struct {
	Stage     Stage         `json:"stage"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Failed reports whether the stage returned an error
func (o StageOutcome) Failed() bool {
	return o.Error != ""
}

// StepResult is the row-count delta one cleaning step produced
type StepResult struct {
	Rule    string `json:"rule"`
	Before  int64  `json:"before"`
	After   int64  `json:"after"`
	Removed int64  `json:"removed"`
}

// Verification is the post-cleaning anomaly recount
type Verification struct {
	Duplicates      int64      `json:"duplicates"`
	ZeroPassengers  int64      `json:"zero_passengers"`
	ZeroDistance    int64      `json:"zero_distance"`
	OverMaxDistance int64      `json:"over_max_distance"`
	InvalidDuration int64      `json:"invalid_duration"`
	MinPickup       *time.Time `json:"min_pickup"`
	MaxPickup       *time.Time `json:"max_pickup"`
}

// Clean reports whether every anomaly count is zero
func (v Verification) Clean() bool {
	return v.Duplicates == 0 &&
		v.ZeroPassengers == 0 &&
		v.ZeroDistance == 0 &&
		v.OverMaxDistance == 0 &&
		v.InvalidDuration == 0
}

// CleanReport is the auditable outcome of cleaning one table
type CleanReport struct {
	Table        string       `json:"table"`
	Ruleset      Ruleset      `json:"ruleset"`
	Steps        []StepResult `json:"steps"`
	Verification Verification `json:"verification"`
}

// TotalRemoved sums the removed rows over all steps
func (r CleanReport) TotalRemoved() int64 {
	var total int64
	for _, s := range r.Steps {
		total += s.Removed
	}
	return total
}

// Column is one entry of a table schema snapshot
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TransformReport is the outcome of deriving one transformed table
type TransformReport struct {
	Source          string            `json:"source"`
	Destination     string            `json:"destination"`
	SourceRows      int64             `json:"source_rows"`
	DestinationRows int64             `json:"destination_rows"`
	NullCO2Rows     int64             `json:"null_co2_rows"`
	LookupKeys      map[string]int64  `json:"lookup_keys"` // emissions rows per cab vehicle key
	Schema          []Column          `json:"schema"`
	Sample          []TransformedTrip `json:"sample"`
}

// Parity reports whether the transform preserved the row count
func (r TransformReport) Parity() bool {
	return r.SourceRows == r.DestinationRows
}

// TableSummary is a loaded table's row count and pickup range
type TableSummary struct {
	Table     string     `json:"table"`
	Rows      int64      `json:"rows"`
	MinPickup *time.Time `json:"min_pickup"`
	MaxPickup *time.Time `json:"max_pickup"`
}

// LoadReport is the outcome of a loader run
type LoadReport struct {
	Tables        []TableSummary   `json:"tables"`
	EmissionsRows int64            `json:"emissions_rows"`
	Preview       []EmissionFactor `json:"preview"`
	Months        int              `json:"months"`
	Bytes         int64            `json:"bytes"`
}

package cluster

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/franz/bibcluster/internal/util"
)

// Process types select how far back pending records are considered.
const (
	ProcessDaily    = "daily"
	ProcessWeekly   = "weekly"
	ProcessComplete = "complete"
	ProcessCustom   = "custom"
)

// Params selects the records of one run.
type Params struct {
	ProcessType string    `json:"process_type"`
	Since       time.Time `json:"since,omitempty"`
	RecordUUID  string    `json:"record_uuid,omitempty"`
	Source      string    `json:"source,omitempty"`
	Limit       int       `json:"limit,omitempty"`
}

// NewParams resolves a process type into a time bound. ingestPeriod is only
// used, and required, for custom runs.
func NewParams(processType string, ingestPeriod time.Time, now time.Time) (Params, error) {
	p := Params{ProcessType: processType}
	switch processType {
	case ProcessDaily:
		p.Since = now.Add(-24 * time.Hour)
	case ProcessWeekly:
		p.Since = now.Add(-7 * 24 * time.Hour)
	case ProcessComplete:
	case ProcessCustom:
		if ingestPeriod.IsZero() {
			return Params{}, fmt.Errorf("%w: custom process type requires an ingest period", util.ErrInvalidConfig)
		}
		p.Since = ingestPeriod
	default:
		return Params{}, fmt.Errorf("%w: unknown process type %q", util.ErrInvalidConfig, processType)
	}
	return p, nil
}

// ParseIngestPeriod accepts RFC 3339 timestamps and plain dates.
func ParseIngestPeriod(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse ingest period %q", util.ErrInvalidConfig, s)
}

func (p Params) String() string {
	data, err := json.Marshal(p)
	if err != nil {
		return p.ProcessType
	}
	return string(data)
}

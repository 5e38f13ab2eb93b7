package pricing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/aristath/riskflow/internal/domain"
)

// DateLayout is the calendar date form of a pack identifier and of as-of dates
const DateLayout = "2006-01-02"

var generatedIDPattern = regexp.MustCompile(`^PP_(\d{8})_(\d+)$`)

// IDForm tells which identifier form a pack id uses
type IDForm int

const (
	// FormGenerated is PP_YYYYMMDD_<seq>, naming exactly one pack
	FormGenerated IDForm = iota + 1
	// FormDate is YYYY-MM-DD, naming the most recently published ready pack for that date
	FormDate
)

// ParsedID is a validated pack identifier
type ParsedID struct {
	Raw      string
	Form     IDForm
	AsOf     time.Time
	Sequence int64
}

// ParsePackID validates a pack identifier. Relative placeholders such as "latest" are
// rejected: callers that want the latest pack must ask for it explicitly.
func ParsePackID(id string) (ParsedID, error) {
	if m := generatedIDPattern.FindStringSubmatch(id); m != nil {
		asOf, err := time.Parse("20060102", m[1])
		if err != nil {
			return ParsedID{}, &domain.PackValidationError{PackID: id}
		}
		seq, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil || seq <= 0 {
			return ParsedID{}, &domain.PackValidationError{PackID: id}
		}
		return ParsedID{Raw: id, Form: FormGenerated, AsOf: asOf, Sequence: seq}, nil
	}

	if len(id) == len(DateLayout) {
		if asOf, err := time.Parse(DateLayout, id); err == nil {
			return ParsedID{Raw: id, Form: FormDate, AsOf: asOf}, nil
		}
	}

	return ParsedID{}, &domain.PackValidationError{PackID: id}
}

// FormatPackID builds the generated identifier for a pack
func FormatPackID(asOf time.Time, seq int64) string {
	return fmt.Sprintf("PP_%s_%d", asOf.Format("20060102"), seq)
}

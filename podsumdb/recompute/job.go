package recompute

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Job surface of the recomputation engine. The worker shell delivers jobs as
// an operation kind, a target path and a flat string-parameter map; everything
// is validated here before any I/O happens.
const (
	OperationKindUpdate = "update"
	RecomputeTargetPath = "/work/recompute-show-summaries"
)

const (
	PhaseDailies    = "dailies"
	PhaseAggregates = "aggregates"
	PhaseAudience   = "audience"
)

var (
	monthRe        = regexp.MustCompile(`^\d{4}-\d{2}$`)
	audiencePartRe = regexp.MustCompile(`^audience-([1-8])of([48])$`)
)

// Request is a validated recomputation job for one (show, month).
type Request struct {
	Show   uuid.UUID
	Month  string
	Phases []string
	// StartDay is the first day of month to recompute; 0 means unset.
	StartDay int
	// MaxDays caps the number of days recomputed; -1 means unset. Zero is
	// valid and selects no days at all.
	MaxDays    int
	Sequential bool
	Log        bool
}

// ParseJob validates a worker job against the recompute surface. All
// rejections wrap ErrInvalidInput.
func ParseJob(operationKind, targetPath string, params map[string]string) (*Request, error) {
	if operationKind != OperationKindUpdate {
		return nil, errors.Wrapf(ErrInvalidInput, "unrecognized operation kind %q", operationKind)
	}
	if targetPath != RecomputeTargetPath {
		return nil, errors.Wrapf(ErrInvalidInput, "unrecognized target path %q", targetPath)
	}

	show, err := uuid.Parse(params["show"])
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidInput, "bad show uuid %q", params["show"])
	}

	month := params["month"]
	if !monthRe.MatchString(month) {
		return nil, errors.Wrapf(ErrInvalidInput, "bad month %q, expected YYYY-MM", month)
	}

	req := &Request{
		Show:     show,
		Month:    month,
		Phases:   []string{PhaseDailies, PhaseAggregates, PhaseAudience},
		StartDay: 0,
		MaxDays:  -1,
	}

	for _, flag := range splitComma(params["flags"]) {
		switch flag {
		case "log":
			req.Log = true
		case "sequential":
			req.Sequential = true
		default:
			return nil, errors.Wrapf(ErrInvalidInput, "unrecognized flag %q", flag)
		}
	}

	if phases := splitComma(params["phases"]); len(phases) > 0 {
		for _, phase := range phases {
			if !validPhase(phase) {
				return nil, errors.Wrapf(ErrInvalidInput, "unrecognized phase %q", phase)
			}
		}
		req.Phases = phases
	}

	if v, ok := params["startDay"]; ok {
		day, err := strconv.Atoi(v)
		if err != nil || day < 1 || day > 31 {
			return nil, errors.Wrapf(ErrInvalidInput, "bad startDay %q", v)
		}
		req.StartDay = day
	}

	if v, ok := params["maxDays"]; ok {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			return nil, errors.Wrapf(ErrInvalidInput, "bad maxDays %q", v)
		}
		req.MaxDays = days
	}

	return req, nil
}

// AudiencePart returns the shard selected by an audience-NofM phase token, or
// nil for the plain audience phase.
func AudiencePart(phase string) *Part {
	m := audiencePartRe.FindStringSubmatch(phase)
	if m == nil {
		return nil
	}
	num, _ := strconv.Atoi(m[1])
	of, _ := strconv.Atoi(m[2])
	if num > of {
		return nil
	}
	return &Part{Num: num, Of: of}
}

func validPhase(phase string) bool {
	switch phase {
	case PhaseDailies, PhaseAggregates, PhaseAudience:
		return true
	}
	return AudiencePart(phase) != nil
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

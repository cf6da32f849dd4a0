// Package extraction turns free-text eligibility narratives into structured
// inclusion/exclusion criterion lists. It is the one piece of real decision
// logic in the pipeline: everything else is plumbing around it.
package extraction

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/trialworks/eligibility-etl/internal/domain/entities"
)

// ErrMissingNarrative signals a record whose eligibility narrative field is
// absent. The caller decides whether that skips the record or aborts.
var ErrMissingNarrative = errors.New("eligibility narrative missing")

// Policy fixes how narratives are classified and split. The default is
// deliberately strict: false positives (wrongly split text) hurt the corpus
// more than false negatives (skipped studies), so any relaxation must ship
// as a new named policy rather than a change to this one.
type Policy struct {
	// Name identifies the policy in logs and summaries.
	Name string

	// InclusionMarker and ExclusionMarker must each occur exactly once,
	// case-sensitively, for a narrative to be parseable.
	InclusionMarker string
	ExclusionMarker string

	// Bullet matches one criterion line: a dash, exactly two spaces, then
	// the criterion text, terminated by a blank line.
	Bullet *regexp.Regexp

	// Continuation matches the export's line-wrap artifact, a newline
	// followed by a fixed run of spaces, which is rejoined with a single
	// space before classification.
	Continuation *regexp.Regexp
}

// continuationIndent is the indent width the registry export uses when it
// wraps a criterion line.
const continuationIndent = 14

// DefaultPolicy returns the strict dash-bullet policy.
func DefaultPolicy() Policy {
	return Policy{
		Name:            "strict-v1",
		InclusionMarker: "Inclusion",
		ExclusionMarker: "Exclusion",
		Bullet:          regexp.MustCompile(`-  (.+)\n\n`),
		Continuation:    regexp.MustCompile(`\r?\n {` + strconv.Itoa(continuationIndent) + `}`),
	}
}

// Extractor classifies one trial record and extracts its criteria. It is a
// pure function over the record: no hidden state, identical output for
// identical input.
type Extractor struct {
	policy Policy
}

// New returns an Extractor with the default strict policy.
func New() *Extractor {
	return NewWithPolicy(DefaultPolicy())
}

// NewWithPolicy returns an Extractor using the given policy.
func NewWithPolicy(policy Policy) *Extractor {
	return &Extractor{policy: policy}
}

// Policy returns the extractor's policy.
func (e *Extractor) Policy() Policy {
	return e.policy
}

// Extract builds an EligibilityDocument from one record. Malformed text
// never yields an error: unparsable narratives produce a document with nil
// criteria and a classification explaining why. The only error condition is
// a missing narrative field.
func (e *Extractor) Extract(rec *entities.TrialRecord) (*entities.EligibilityDocument, entities.Classification, error) {
	if rec.Criteria == nil {
		return nil, entities.ClassificationMissingNarrative, ErrMissingNarrative
	}

	doc := &entities.EligibilityDocument{
		StudyID:    rec.NCTID,
		MinimumAge: rec.MinimumAge,
		MaximumAge: rec.MaximumAge,
		Gender:     rec.Gender,
	}

	narrative := e.policy.Continuation.ReplaceAllString(*rec.Criteria, " ")

	if strings.Count(narrative, e.policy.InclusionMarker) != 1 ||
		strings.Count(narrative, e.policy.ExclusionMarker) != 1 {
		return doc, entities.ClassificationMarkerMismatch, nil
	}

	// Everything before the single Exclusion marker is the inclusion
	// region; the marker and everything after it is the exclusion region.
	split := strings.Index(narrative, e.policy.ExclusionMarker)
	doc.InclusionCriteria = e.bullets(narrative[:split])
	doc.ExclusionCriteria = e.bullets(narrative[split:])

	if len(doc.InclusionCriteria) == 0 {
		return doc, entities.ClassificationEmptyCriteria, nil
	}
	return doc, entities.ClassificationParsed, nil
}

// bullets extracts the dash-bulleted lines of one region, in order. A region
// with no matching lines (numbered lists, prose) yields an empty list; that
// is an accepted limitation, not an error.
func (e *Extractor) bullets(region string) []string {
	matches := e.policy.Bullet.FindAllStringSubmatch(region, -1)
	criteria := make([]string, 0, len(matches))
	for _, m := range matches {
		criteria = append(criteria, m[1])
	}
	return criteria
}

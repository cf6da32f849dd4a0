package entities

// TrialRecord represents one eligibility row from the registry mirror.
// Age bounds and the criteria narrative are nullable in the source schema.
type TrialRecord struct {
	NCTID      string  `json:"nct_id" db:"nct_id"`
	MinimumAge *string `json:"minimum_age" db:"minimum_age"`
	MaximumAge *string `json:"maximum_age" db:"maximum_age"`
	Gender     string  `json:"gender" db:"gender"`
	Criteria   *string `json:"criteria" db:"criteria"`
}

// EligibilityDocument is the nested document written to the corpus store.
// InclusionCriteria and ExclusionCriteria are nil when the narrative was
// unparsable, and possibly empty when it was parseable but yielded no
// bulleted lines.
type EligibilityDocument struct {
	StudyID           string   `json:"study_id"`
	MinimumAge        *string  `json:"minimum_age"`
	MaximumAge        *string  `json:"maximum_age"`
	Gender            string   `json:"gender"`
	InclusionCriteria []string `json:"inclusion_criteria"`
	ExclusionCriteria []string `json:"exclusion_criteria"`
}

// Writable reports whether the document qualifies for the corpus: the
// inclusion list must be present and non-empty. Everything else is a skip.
func (d *EligibilityDocument) Writable() bool {
	return d != nil && len(d.InclusionCriteria) > 0
}

package entities

// Classification is the extraction outcome for one trial record.
type Classification string

const (
	// ClassificationParsed means the narrative was split and the inclusion
	// region yielded at least one criterion.
	ClassificationParsed Classification = "parsed"

	// ClassificationMarkerMismatch means the narrative did not contain
	// exactly one Inclusion and exactly one Exclusion marker.
	ClassificationMarkerMismatch Classification = "marker_mismatch"

	// ClassificationEmptyCriteria means the narrative was parseable but the
	// inclusion region produced no bulleted lines.
	ClassificationEmptyCriteria Classification = "empty_criteria"

	// ClassificationMissingNarrative means the record carried no narrative
	// at all.
	ClassificationMissingNarrative Classification = "missing_narrative"
)

// Note returns the human-readable explanation used in skip reporting.
func (c Classification) Note() string {
	switch c {
	case ClassificationParsed:
		return "criteria parsed"
	case ClassificationMarkerMismatch:
		return "wrong count of Inclusion/Exclusion markers"
	case ClassificationEmptyCriteria:
		return "parseable but criteria list empty"
	case ClassificationMissingNarrative:
		return "eligibility narrative missing"
	default:
		return string(c)
	}
}

// Skip reports whether this outcome keeps the record out of the corpus.
func (c Classification) Skip() bool {
	return c != ClassificationParsed
}

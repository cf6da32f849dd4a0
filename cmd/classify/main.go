// classify runs the eligibility extractor over a single narrative, read from
// a file or stdin, and prints the resulting document and classification as
// JSON. Handy for triaging the registry's formatting diversity without a
// database at hand.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/trialworks/eligibility-etl/internal/domain/entities"
	"github.com/trialworks/eligibility-etl/internal/extraction"
)

type output struct {
	Classification entities.Classification       `json:"classification"`
	Note           string                        `json:"note"`
	Document       *entities.EligibilityDocument `json:"document"`
}

func main() {
	var file string
	var studyID string
	flag.StringVar(&file, "file", "", "read the narrative from this file instead of stdin")
	flag.StringVar(&studyID, "study-id", "unknown", "study id to stamp on the document")
	flag.Parse()

	narrative, err := readNarrative(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "classify: %v\n", err)
		os.Exit(1)
	}

	rec := &entities.TrialRecord{
		NCTID:    studyID,
		Criteria: &narrative,
	}

	doc, classification, err := extraction.New().Extract(rec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "classify: %v\n", err)
		os.Exit(1)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(output{
		Classification: classification,
		Note:           classification.Note(),
		Document:       doc,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "classify: %v\n", err)
		os.Exit(1)
	}
}

func readNarrative(file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

package orchestrator

import "strings"

// ErrorRecord describes one failure inside a batch.
type ErrorRecord struct {
	Type    string `json:"type"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Summary is the result of a follow-by-keywords batch.
type Summary struct {
	SearchedKeywords []string `json:"searchedKeywords"`
	ProfilesFound    int      `json:"profilesFound"`
	NewlyFollowed    int      `json:"newlyFollowed"`
	// AlreadyFollowed is inferred from the follow button label alone, which
	// cannot tell a follow made before this run from one made moments ago by
	// another actor (or by a retried attempt of this run).
	AlreadyFollowed int           `json:"alreadyFollowed"`
	FailedToFollow  int           `json:"failedToFollow"`
	NotAttempted    int           `json:"notAttempted"`
	Errors          []ErrorRecord `json:"errors"`
}

func newSummary(keywords []string) Summary {
	s := Summary{
		SearchedKeywords: []string{},
		Errors:           []ErrorRecord{},
	}
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			s.SearchedKeywords = append(s.SearchedKeywords, k)
		}
	}
	return s
}

func (s *Summary) record(kind, subject, message string) {
	s.Errors = append(s.Errors, ErrorRecord{Type: kind, Subject: subject, Message: message})
}

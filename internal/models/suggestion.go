package models

type SuggestionCandidate struct {
	Profile   UserProfile `json:"profile"`
	MatchRate int         `json:"match_rate"`
}

type SuggestionReason string

const (
	SuggestionReasonNone          SuggestionReason = ""
	SuggestionReasonNoPreferences SuggestionReason = "no_preferences"
	SuggestionReasonNoCandidates  SuggestionReason = "no_candidates"
)

type SuggestionResult struct {
	Candidates []SuggestionCandidate `json:"candidates"`
	Reason     SuggestionReason      `json:"reason,omitempty"`
}

type SuggestionRequestOutcome string

const (
	SuggestionRequestSent           SuggestionRequestOutcome = "sent"
	SuggestionRequestAlreadyPending SuggestionRequestOutcome = "already_pending"
)

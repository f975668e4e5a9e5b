package models

import "encoding/json"

// DispatchCall is one emergency dispatch call record from the record store.
// Only the fields the dashboard relies on are typed; everything else the store
// returns is relayed untouched from Raw.
type DispatchCall struct {
	ID                   int                   `json:"id" validate:"required"`
	Timestamp            string                `json:"timestamp,omitempty"`
	ConversationAnalysis *ConversationAnalysis `json:"conversation_analysis,omitempty"`

	Raw map[string]interface{} `json:"-"`
}

// MarshalJSON relays the record exactly as the store returned it when Raw is
// set, so fields the dashboard does not model survive the round trip.
func (c DispatchCall) MarshalJSON() ([]byte, error) {
	if c.Raw != nil {
		return json.Marshal(c.Raw)
	}
	type plain DispatchCall
	return json.Marshal(plain(c))
}

// ConversationAnalysis is the call-taker transcript analysis attached to a call.
type ConversationAnalysis struct {
	Summary     string `json:"summary,omitempty"`
	GeneratedAt string `json:"generatedAt,omitempty"`
}

// Summary returns the analysis summary, or "" when the call has none.
func (c DispatchCall) Summary() string {
	if c.ConversationAnalysis == nil {
		return ""
	}
	return c.ConversationAnalysis.Summary
}

// PageInfo mirrors the record store's pagination block.
type PageInfo struct {
	TotalRows   *int  `json:"totalRows,omitempty"`
	Page        *int  `json:"page,omitempty"`
	PageSize    *int  `json:"pageSize,omitempty"`
	IsFirstPage *bool `json:"isFirstPage,omitempty"`
	IsLastPage  *bool `json:"isLastPage,omitempty"`
}

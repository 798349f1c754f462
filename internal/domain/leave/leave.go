// Package leave decides whether a calendar event is non-work time.
package leave

import "strings"

// Method names the rule that produced a classification.
type Method string

const (
	MethodProviderEventType Method = "provider_event_type"
	MethodKeywordTitle      Method = "keyword_title"
	MethodKeywordMatch      Method = "keyword_match"
	MethodNone              Method = "none"
)

// Confidence grades how much a classification can be trusted.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// EventTypeOutOfOffice is the provider event type that marks an absence.
const EventTypeOutOfOffice = "outOfOffice"

// Keyword categories.
const (
	CategoryVacation    = "vacation"
	CategoryOutOfOffice = "out_of_office"
	CategoryLeaveTypes  = "leave_types"
	CategoryBlockedTime = "blocked_time"
)

// Result is the outcome of Classify. Keyword and Category are empty unless a
// keyword rule matched.
type Result struct {
	IsLeave    bool       `json:"is_leave"`
	Method     Method     `json:"method"`
	Confidence Confidence `json:"confidence"`
	Keyword    string     `json:"keyword,omitempty"`
	Category   string     `json:"category,omitempty"`
}

var titleKeywords = []string{"vacation", "pto"}

type category struct {
	name     string
	keywords []string
}

// Checked in order; longer phrases come before their substrings.
var categories = []category{
	{CategoryVacation, []string{"vacation", "holiday", "pto", "time off", "annual leave"}},
	{CategoryOutOfOffice, []string{"out of office", "out-of-office", "ooo"}},
	{CategoryLeaveTypes, []string{
		"sick leave", "sick day", "medical leave", "maternity leave", "paternity leave",
		"parental leave", "bereavement", "jury duty", "sick",
	}},
	{CategoryBlockedTime, []string{"day off", "personal day"}},
}

// Classify applies the leave rules in precedence order; the first match wins.
// isAllDay does not affect the result.
func Classify(title, description string, isAllDay bool, eventType string) Result {
	if eventType == EventTypeOutOfOffice {
		return Result{IsLeave: true, Method: MethodProviderEventType, Confidence: ConfidenceHigh}
	}

	t := strings.ToLower(title)
	for _, kw := range titleKeywords {
		if strings.Contains(t, kw) {
			return Result{
				IsLeave:    true,
				Method:     MethodKeywordTitle,
				Confidence: ConfidenceHigh,
				Keyword:    kw,
				Category:   CategoryVacation,
			}
		}
	}

	text := t + " " + strings.ToLower(description)
	for _, c := range categories {
		for _, kw := range c.keywords {
			if strings.Contains(text, kw) {
				return Result{
					IsLeave:    true,
					Method:     MethodKeywordMatch,
					Confidence: ConfidenceMedium,
					Keyword:    kw,
					Category:   c.name,
				}
			}
		}
	}

	return Result{Method: MethodNone, Confidence: ConfidenceLow}
}

// Keywords returns a copy of the keyword table keyed by category.
func Keywords() map[string][]string {
	out := make(map[string][]string, len(categories))
	for _, c := range categories {
		out[c.name] = append([]string(nil), c.keywords...)
	}
	return out
}

package providers

import "strings"

// ErrorType classifies a provider failure for the workflow failover loop:
// quota disables the provider for the cooldown window, rate and transient
// back off and retry the same provider, context aborts the whole call, and
// permanent rotates to the next provider after a short disable.
type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
)

// ClassifyError maps a provider error onto an ErrorType by message content.
// Providers speak different dialects; this matches the markers OpenAI, Groq
// and Ollama actually emit rather than any formal error schema.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"insufficient_quota", "quota", "credit", "billing hard limit"} {
		if strings.Contains(msg, marker) {
			return ErrorQuota
		}
	}
	for _, marker := range []string{"429", "rate", "tokens per min"} {
		if strings.Contains(msg, marker) {
			return ErrorRate
		}
	}
	for _, marker := range []string{"context", "too long", "maximum length"} {
		if strings.Contains(msg, marker) {
			return ErrorContext
		}
	}
	for _, marker := range []string{"timeout", "temporarily", "unavailable", "overloaded", "503"} {
		if strings.Contains(msg, marker) {
			return ErrorTransient
		}
	}
	return ErrorPermanent
}

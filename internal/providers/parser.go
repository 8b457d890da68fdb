package providers

import "strings"

// ProviderRef is one entry of the RULEFLOW_LLM_PROVIDERS list. Entries are
// pipe-separated and each is either a bare provider name ("groq") or a
// name:key-alias pair ("openai:prod") selecting which API key env var to read.
type ProviderRef struct {
	Raw      string
	Name     string
	KeyAlias string
}

func (r ProviderRef) String() string { return r.Raw }

// ParseProviderList splits a provider spec into refs, preserving order. List
// order is failover order. An empty spec yields the mock provider so the
// pipeline stays runnable without any API keys configured.
func ParseProviderList(raw string) []ProviderRef {
	out := make([]ProviderRef, 0, 4)
	for _, entry := range strings.Split(raw, "|") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, alias, found := strings.Cut(entry, ":")
		if !found {
			out = append(out, ProviderRef{Raw: entry, Name: entry})
			continue
		}
		out = append(out, ProviderRef{
			Raw:      entry,
			Name:     strings.TrimSpace(name),
			KeyAlias: strings.TrimSpace(alias),
		})
	}
	if len(out) == 0 {
		return []ProviderRef{{Raw: "mock", Name: "mock"}}
	}
	return out
}

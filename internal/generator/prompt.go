package generator

import (
	"fmt"
	"sort"
	"strings"
)

// buildPrompt renders the provider prompt for a request. Input keys are
// emitted in sorted order so the same request always yields the same
// prompt.
func buildPrompt(req Request) string {
	var b strings.Builder

	switch req.Kind {
	case "horoscope_basic":
		b.WriteString("Write a short daily horoscope for the reader described below. Keep it to one paragraph, warm and encouraging.")
	case "horoscope_enhanced":
		b.WriteString("Write a detailed daily horoscope for the reader described below, covering love, career and wellbeing, with one concrete suggestion for the day.")
	case "tarot_reading":
		b.WriteString("Interpret the tarot spread described below. Address each card in position, then give an overall reading.")
	case "iching_reading":
		b.WriteString("Interpret the I Ching hexagram described below, including changing lines if present, and relate it to the question asked.")
	case "dream_interpretation":
		b.WriteString("Interpret the dream described below. Identify its central symbols and what they may reflect for the dreamer.")
	default:
		b.WriteString("Write a short divinatory reading based on the details below.")
	}

	keys := make([]string, 0, len(req.Inputs))
	for key := range req.Inputs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := strings.TrimSpace(req.Inputs[key])
		if value == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("\n%s: %s", key, value))
	}

	return b.String()
}

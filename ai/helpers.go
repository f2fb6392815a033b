package ai

import "strings"

// StripQuotes removes every leading and trailing double quote, which models
// tend to add when asked to rephrase something. Unbalanced quotes go too.
func StripQuotes(resp string) string {
	return strings.Trim(resp, `"`)
}

// CleanResponse removes any newlines from the response
func CleanResponse(resp string) string {
	// remove any newlines
	resp = strings.ReplaceAll(resp, "\r\n", " ")
	resp = strings.ReplaceAll(resp, "\n", " ")
	resp = strings.ReplaceAll(resp, "<|im_start|>", "")
	resp = strings.ReplaceAll(resp, "<|im_end|>", "")
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "!") // remove any leading ! so that we dont trigger commands
	resp = strings.TrimPrefix(resp, "/") // remove any leading / so that we dont trigger commands
	return strings.TrimSpace(resp)
}

// Truncate cuts resp to at most max runes. A non-positive max disables it.
func Truncate(resp string, max int) string {
	if max <= 0 {
		return resp
	}
	runes := []rune(resp)
	if len(runes) <= max {
		return resp
	}
	return strings.TrimSpace(string(runes[:max]))
}

// Sanitize applies StripQuotes, CleanResponse and Truncate until the text stops
// changing, so sanitizing a sanitized reply is a no-op.
func Sanitize(resp string, max int) string {
	resp = strings.TrimSpace(resp)
	for {
		next := Truncate(CleanResponse(StripQuotes(resp)), max)
		if next == resp {
			return next
		}
		resp = next
	}
}

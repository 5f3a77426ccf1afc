package utils

// FilterBody keeps only the allowed top level keys of a decoded JSON body.
func FilterBody(body map[string]any, allowed ...string) map[string]any {
	out := make(map[string]any, len(allowed))
	for _, k := range allowed {
		if v, ok := body[k]; ok {
			out[k] = v
		}
	}
	return out
}

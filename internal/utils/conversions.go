package utils

import "strings"

func ToStringSlice(slice []any) []string {
	stringSlice := make([]string, 0)
	for _, v := range slice {
		if s, ok := v.(string); ok {
			stringSlice = append(stringSlice, s)
		}
	}
	return stringSlice
}

// ClaimStrings reads a claim that may be a single space separated string or a JSON array of strings.
func ClaimStrings(v any) []string {
	switch val := v.(type) {
	case string:
		return strings.Fields(val)
	case []any:
		return ToStringSlice(val)
	case []string:
		return val
	}
	return nil
}

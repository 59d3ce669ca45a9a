package summarize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// RepairJSON attempts to repair malformed JSON from the reasoning service
// using cheap strategies first and the jsonrepair library as a sophisticated
// fallback:
// 1. Remove trailing commas
// 2. Complete incomplete objects/arrays
// 3. Use jsonrepair library
// Returns the repaired JSON or an error when nothing produced a valid
// document.
func RepairJSON(raw string) (string, error) {
	var testObj interface{}
	if json.Unmarshal([]byte(raw), &testObj) == nil {
		// JSON is already valid
		return raw, nil
	}

	repaired := raw

	// Strategy 1: Remove trailing commas
	if strings.Contains(repaired, ",}") || strings.Contains(repaired, ",]") {
		repaired = removeTrailingCommas(repaired)
	}

	// Strategy 2: Fix incomplete objects/arrays
	if needsCompletion(repaired) {
		repaired = completeJSON(repaired)
	}

	if json.Unmarshal([]byte(repaired), &testObj) == nil {
		return repaired, nil
	}

	// Strategy 3: jsonrepair library fallback
	libraryRepaired, libraryErr := jsonrepair.JSONRepair(repaired)
	if libraryErr == nil {
		if json.Unmarshal([]byte(libraryRepaired), &testObj) == nil {
			return libraryRepaired, nil
		}
	}

	return repaired, fmt.Errorf("JSON repair failed")
}

// removeTrailingCommas removes trailing commas before } and ]
func removeTrailingCommas(json string) string {
	re1 := regexp.MustCompile(`,\s*}`)
	json = re1.ReplaceAllString(json, "}")

	re2 := regexp.MustCompile(`,\s*]`)
	json = re2.ReplaceAllString(json, "]")

	return json
}

// needsCompletion checks if JSON objects or arrays are incomplete
func needsCompletion(json string) bool {
	json = strings.TrimSpace(json)

	openBraces := strings.Count(json, "{") - strings.Count(json, "}")
	openBrackets := strings.Count(json, "[") - strings.Count(json, "]")

	return openBraces > 0 || openBrackets > 0
}

// completeJSON adds missing closing braces/brackets in the correct order
// (last opened, first closed).
func completeJSON(json string) string {
	json = strings.TrimSpace(json)

	var stack []rune
	for _, char := range json {
		switch char {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}':
			if len(stack) > 0 && stack[len(stack)-1] == '}' {
				stack = stack[:len(stack)-1]
			}
		case ']':
			if len(stack) > 0 && stack[len(stack)-1] == ']' {
				stack = stack[:len(stack)-1]
			}
		}
	}

	for i := len(stack) - 1; i >= 0; i-- {
		json += string(stack[i])
	}

	return json
}

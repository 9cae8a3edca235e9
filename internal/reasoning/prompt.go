package reasoning

import (
	"fmt"
	"sort"
	"strings"

	"github.com/trial-match-server/pkg/external"
)

// BuildPatientSummary renders a sanitized patient record as a compact
// identifier-free summary string (age, sex, conditions, then the remaining
// allowed fields in stable order). Used for prompts and cache keys.
func BuildPatientSummary(patientData map[string]interface{}) string {
	sanitized := external.SanitizePatientData(patientData)

	var parts []string
	if age, ok := sanitized["age"]; ok {
		parts = append(parts, fmt.Sprintf("age %v", age))
	}
	if sex, ok := sanitized["sex"]; ok {
		parts = append(parts, fmt.Sprintf("sex %v", sex))
	} else if gender, ok := sanitized["gender"]; ok {
		parts = append(parts, fmt.Sprintf("sex %v", gender))
	}
	if conditions, ok := sanitized["conditions"]; ok {
		parts = append(parts, "conditions: "+renderValue(conditions))
	}

	keys := make([]string, 0, len(sanitized))
	for key := range sanitized {
		switch key {
		case "age", "sex", "gender", "conditions":
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		parts = append(parts, key+": "+renderValue(sanitized[key]))
	}

	if len(parts) == 0 {
		return "no clinical data provided"
	}
	return strings.Join(parts, "; ")
}

// renderValue flattens slices and maps into readable prompt text
func renderValue(value interface{}) string {
	switch v := value.(type) {
	case []string:
		return strings.Join(v, ", ")
	case []interface{}:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(parts, ", ")
	case map[string]string:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, key := range keys {
			parts[i] = key + "=" + v[key]
		}
		return strings.Join(parts, ", ")
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, key := range keys {
			parts[i] = fmt.Sprintf("%s=%v", key, v[key])
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

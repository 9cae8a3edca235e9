package external

import "strings"

// allowedPatientFields is the finite set of patient fields permitted to leave
// the process over the LLM channel. Anything else is dropped.
var allowedPatientFields = map[string]bool{
	"age":                 true,
	"sex":                 true,
	"gender":              true,
	"conditions":          true,
	"medications":         true,
	"current_medications": true,
	"medical_history":     true,
	"lab_values":          true,
	"lab_results":         true,
	"allergies":           true,
	"smoking_use":         true,
	"smoking":             true,
	"alcohol_use":         true,
	"alcohol":             true,
	"performance_status":  true,
	"biomarkers":          true,
}

// prohibitedPatientFields are identifying fields stripped unconditionally,
// matched case-insensitively against field keys.
var prohibitedPatientFields = map[string]bool{
	"name":              true,
	"first_name":        true,
	"last_name":         true,
	"ssn":               true,
	"mrn":               true,
	"email":             true,
	"phone":             true,
	"address":           true,
	"date_of_birth":     true,
	"dob":               true,
	"insurance":         true,
	"emergency_contact": true,
}

// allowedLocationFields is the reduced location shape permitted outbound
var allowedLocationFields = map[string]bool{
	"city":    true,
	"state":   true,
	"country": true,
}

// SanitizePatientData filters a patient record down to the allow-list before
// it may be embedded in an outbound LLM prompt. This is the single choke
// point: no other code path may emit patient data to the inference service.
func SanitizePatientData(data map[string]interface{}) map[string]interface{} {
	sanitized := make(map[string]interface{}, len(data))
	for key, value := range data {
		normalized := strings.ToLower(strings.TrimSpace(key))
		if prohibitedPatientFields[normalized] {
			continue
		}
		if normalized == "location" {
			if reduced := reduceLocation(value); reduced != nil {
				sanitized["location"] = reduced
			}
			continue
		}
		if !allowedPatientFields[normalized] {
			continue
		}
		sanitized[normalized] = value
	}
	return sanitized
}

// reduceLocation keeps only city/state/country from a location value
func reduceLocation(value interface{}) map[string]interface{} {
	loc, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	reduced := make(map[string]interface{}, 3)
	for key, v := range loc {
		normalized := strings.ToLower(strings.TrimSpace(key))
		if allowedLocationFields[normalized] {
			reduced[normalized] = v
		}
	}
	if len(reduced) == 0 {
		return nil
	}
	return reduced
}

package logging

import "github.com/sirupsen/logrus"

// RedactedPlaceholder replaces the values of protected log fields
const RedactedPlaceholder = "[REDACTED]"

// sensitiveFields lists log field keys that can carry patient-derived text
var sensitiveFields = map[string]bool{
	"medical_query":      true,
	"clinical_notes":     true,
	"medical_history":    true,
	"narrative":          true,
	"query_text":         true,
	"patient_conditions": true,
	"medications":        true,
}

// RedactionHook scrubs patient-derived fields from every log entry. It is
// installed when hipaa_safe logging is enabled.
type RedactionHook struct{}

// NewRedactionHook creates the scrubbing hook
func NewRedactionHook() *RedactionHook {
	return &RedactionHook{}
}

// Levels registers the hook for every log level
func (h *RedactionHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire replaces the values of sensitive fields in place
func (h *RedactionHook) Fire(entry *logrus.Entry) error {
	for key := range entry.Data {
		if sensitiveFields[key] {
			entry.Data[key] = RedactedPlaceholder
		}
	}
	return nil
}

package external

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizePatientDataStripsIdentifiers(t *testing.T) {
	input := map[string]interface{}{
		"name":          "Jane Doe",
		"ssn":           "123-45-6789",
		"mrn":           "MRN-0042",
		"email":         "jane@example.com",
		"phone":         "555-0100",
		"date_of_birth": "1972-03-14",
		"age":           52,
		"conditions":    []string{"breast cancer"},
	}

	sanitized := SanitizePatientData(input)

	assert.Equal(t, 52, sanitized["age"])
	assert.Equal(t, []string{"breast cancer"}, sanitized["conditions"])
	for _, key := range []string{"name", "ssn", "mrn", "email", "phone", "date_of_birth"} {
		assert.NotContains(t, sanitized, key)
	}
}

func TestSanitizePatientDataDropsUnknownFields(t *testing.T) {
	sanitized := SanitizePatientData(map[string]interface{}{
		"age":             40,
		"favorite_color":  "blue",
		"employer":        "Acme",
		"medical_history": "hypertension",
	})

	assert.Len(t, sanitized, 2)
	assert.Contains(t, sanitized, "age")
	assert.Contains(t, sanitized, "medical_history")
}

func TestSanitizePatientDataReducesLocation(t *testing.T) {
	sanitized := SanitizePatientData(map[string]interface{}{
		"location": map[string]interface{}{
			"street":  "1 Main St",
			"zip":     "02139",
			"city":    "Boston",
			"state":   "MA",
			"country": "US",
		},
	})

	location, ok := sanitized["location"].(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, map[string]interface{}{
		"city":    "Boston",
		"state":   "MA",
		"country": "US",
	}, location)
}

func TestSanitizePatientDataNormalizesKeys(t *testing.T) {
	sanitized := SanitizePatientData(map[string]interface{}{
		"Age":        61,
		" SEX ":      "male",
		"First_Name": "John",
	})

	assert.Equal(t, 61, sanitized["age"])
	assert.Equal(t, "male", sanitized["sex"])
	assert.NotContains(t, sanitized, "first_name")
}

func TestSanitizePatientDataDropsEmptyLocation(t *testing.T) {
	sanitized := SanitizePatientData(map[string]interface{}{
		"location": map[string]interface{}{"street": "1 Main St"},
	})
	assert.NotContains(t, sanitized, "location")
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateNCTID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"Valid id", "NCT04444444", false},
		{"Valid id with zeros", "NCT00000001", false},
		{"Seven digits", "NCT1234567", true},
		{"Nine digits", "NCT123456789", true},
		{"Lowercase prefix", "nct12345678", true},
		{"Missing prefix", "12345678", true},
		{"Empty", "", true},
		{"Trailing garbage", "NCT12345678x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNCTID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, IsValidNCTID(tt.id))
			} else {
				assert.NoError(t, err)
				assert.True(t, IsValidNCTID(tt.id))
			}
		})
	}
}

func TestAgeRangeOverlaps(t *testing.T) {
	tests := []struct {
		name    string
		trial   AgeRange
		patient AgeRange
		want    bool
	}{
		{
			name:    "Fully open ranges always overlap",
			trial:   AgeRange{},
			patient: AgeRange{},
			want:    true,
		},
		{
			name:    "Trial min below patient max",
			trial:   NewAgeRange(IntPtr(18), IntPtr(65)),
			patient: NewAgeRange(IntPtr(50), IntPtr(60)),
			want:    true,
		},
		{
			name:    "Trial entirely above patient range",
			trial:   NewAgeRange(IntPtr(65), nil),
			patient: NewAgeRange(IntPtr(20), IntPtr(40)),
			want:    false,
		},
		{
			name:    "Trial entirely below patient range",
			trial:   NewAgeRange(nil, IntPtr(17)),
			patient: NewAgeRange(IntPtr(18), IntPtr(99)),
			want:    false,
		},
		{
			name:    "Open trial max overlaps older patient",
			trial:   NewAgeRange(IntPtr(18), nil),
			patient: NewAgeRange(IntPtr(70), IntPtr(80)),
			want:    true,
		},
		{
			name:    "Boundary touch counts as overlap",
			trial:   NewAgeRange(IntPtr(18), IntPtr(50)),
			patient: NewAgeRange(IntPtr(50), IntPtr(60)),
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.trial.Overlaps(tt.patient))
			// Overlap is symmetric
			assert.Equal(t, tt.want, tt.patient.Overlaps(tt.trial))
		})
	}
}

func TestAgeRangeValidate(t *testing.T) {
	assert.NoError(t, NewAgeRange(IntPtr(18), IntPtr(65)).Validate())
	assert.NoError(t, NewAgeRange(nil, nil).Validate())
	assert.NoError(t, NewAgeRange(IntPtr(18), nil).Validate())
	assert.Error(t, NewAgeRange(IntPtr(65), IntPtr(18)).Validate())
	assert.Error(t, NewAgeRange(IntPtr(-1), nil).Validate())
}

func TestAgeRangeContains(t *testing.T) {
	r := NewAgeRange(IntPtr(18), IntPtr(65))
	assert.True(t, r.Contains(18))
	assert.True(t, r.Contains(65))
	assert.False(t, r.Contains(17))
	assert.False(t, r.Contains(66))

	open := AgeRange{}
	assert.True(t, open.Contains(0))
	assert.True(t, open.Contains(120))
}

func TestGenderRequirementAdmits(t *testing.T) {
	assert.True(t, GenderAll.Admits(SexMale))
	assert.True(t, GenderAll.Admits(SexFemale))
	assert.True(t, GenderFemale.Admits(SexFemale))
	assert.False(t, GenderFemale.Admits(SexMale))
	assert.False(t, GenderMale.Admits(SexFemale))
	// Unknown patient sex is deferred to review, not rejected
	assert.True(t, GenderMale.Admits(SexUnknown))
	assert.True(t, GenderRequirement("").Admits(SexFemale))
}

func TestTrialStatusPredicates(t *testing.T) {
	assert.True(t, StatusRecruiting.IsOpen())
	assert.True(t, StatusNotYetRecruiting.IsOpen())
	assert.True(t, StatusActiveNotRecruiting.IsOpen())
	assert.False(t, StatusCompleted.IsOpen())
	assert.True(t, StatusCompleted.IsClosed())
	assert.True(t, StatusTerminated.IsClosed())
	assert.False(t, StatusRecruiting.IsClosed())
}

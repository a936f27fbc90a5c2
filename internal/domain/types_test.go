package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataTypeValid(t *testing.T) {
	tests := []struct {
		name     string
		dataType DataType
		valid    bool
	}{
		{"float is valid", DataTypeFloat, true},
		{"integer is valid", DataTypeInteger, true},
		{"string is valid", DataTypeString, true},
		{"boolean is valid", DataTypeBoolean, true},
		{"category is valid", DataTypeCategory, true},
		{"empty is invalid", DataType(""), false},
		{"unknown is invalid", DataType("decimal"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.dataType.Valid())
		})
	}
}

func TestDataTypeNumeric(t *testing.T) {
	assert.True(t, DataTypeFloat.Numeric())
	assert.True(t, DataTypeInteger.Numeric())
	assert.False(t, DataTypeString.Numeric())
	assert.False(t, DataTypeBoolean.Numeric())
	assert.False(t, DataTypeCategory.Numeric())
}

func TestFeatureID(t *testing.T) {
	assert.Equal(t, "customer_financial_balance_mean_v1.0",
		FeatureID("customer_financial", "balance_mean", "1.0"))
	assert.Equal(t, "fg_customer_financial", GroupID("customer_financial"))
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"equal", "1.0", "1.0", 0},
		{"minor bump", "1.1", "1.0", 1},
		{"major bump", "2.0", "1.9", 1},
		{"numeric not lexicographic", "10.0", "9.0", 1},
		{"missing segment counts as zero", "1", "1.0", 0},
		{"two missing segments count as zero", "1", "1.0.0", 0},
		{"missing segment below nonzero", "1", "1.0.1", -1},
		{"longer wins when prefix equal", "1.0.1", "1.0", 1},
		{"reverse order", "1.0", "2.0", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareVersions(tt.a, tt.b))
		})
	}
}

package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// DataType enumerates the value kinds a feature definition may declare
type DataType string

const (
	DataTypeFloat    DataType = "float"
	DataTypeInteger  DataType = "integer"
	DataTypeString   DataType = "string"
	DataTypeBoolean  DataType = "boolean"
	DataTypeCategory DataType = "category"
)

// Valid checks if a data type is one of the enumerated kinds
func (d DataType) Valid() bool {
	switch d {
	case DataTypeFloat, DataTypeInteger, DataTypeString, DataTypeBoolean, DataTypeCategory:
		return true
	}
	return false
}

// Numeric reports whether values of this type participate in aggregate statistics
func (d DataType) Numeric() bool {
	return d == DataTypeFloat || d == DataTypeInteger
}

// AccessType represents how a feature value was read
type AccessType string

const (
	AccessTypePoint      AccessType = "point"
	AccessTypeBatch      AccessType = "batch"
	AccessTypeHistorical AccessType = "historical"
)

// GroupID derives the stable identifier for a feature group from its name
func GroupID(name string) string {
	return "fg_" + name
}

// FeatureID derives the globally unique, immutable identifier for a feature
// definition from its owning group, name and version
// (e.g., "customer_financial_balance_mean_v1.0")
func FeatureID(groupName, featureName, version string) string {
	return fmt.Sprintf("%s_%s_v%s", groupName, featureName, version)
}

// CompareVersions compares two dotted version strings numerically per segment
// ("10.0" sorts above "9.1"). Missing segments count as zero. Non-numeric
// segments fall back to string comparison so malformed versions still order
// deterministically.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}

	for i := range n {
		sa, sb := "0", "0"
		if i < len(as) && as[i] != "" {
			sa = as[i]
		}
		if i < len(bs) && bs[i] != "" {
			sb = bs[i]
		}

		na, errA := strconv.Atoi(sa)
		nb, errB := strconv.Atoi(sb)
		if errA != nil || errB != nil {
			if c := strings.Compare(sa, sb); c != 0 {
				return c
			}
			continue
		}

		if na != nb {
			if na < nb {
				return -1
			}
			return 1
		}
	}

	return 0
}

// Statistics is the aggregate snapshot attached to a numeric feature definition
type Statistics struct {
	Count int64    `json:"count"`
	Min   *float64 `json:"min_value"`
	Max   *float64 `json:"max_value"`
	Mean  *float64 `json:"mean_value"`
}

package model

import "gorm.io/datatypes"

// UPtr converts an int to *int
func UPtr(i int) *int {
	return &i
}

// UVal safely reads *int, returning 0 for nil
func UVal(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// MergeMeta returns a copy of base with every key of patch assigned over it
func MergeMeta(base datatypes.JSONMap, patch map[string]interface{}) datatypes.JSONMap {
	merged := make(datatypes.JSONMap, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}

package session

import (
	"encoding/json"
	"regexp"
	"strings"
)

// PharmacyRoles are the staff role values that identify pharmacy staff.
var PharmacyRoles = map[string]struct{}{
	"ADMIN":         {},
	"ADMINISTRATOR": {},
	"MANAGER":       {},
	"CASHIER":       {},
	"PHARMACIST":    {},
	"OWNER":         {},
}

var pharmacyRolePattern = regexp.MustCompile(`(?i)PHARMAC(Y|IST)`)

// Classify decides the kind of a decoded user object. Rules are ordered and
// the first match wins; an object without any pharmacy indicator is a patient.
func Classify(shape map[string]any) Kind {
	if IsPharmacyShape(shape) {
		return KindPharmacy
	}
	return KindPatient
}

// IsPharmacyShape reports whether a decoded user object represents pharmacy
// staff. A nil shape is never staff.
func IsPharmacyShape(shape map[string]any) bool {
	if shape == nil {
		return false
	}

	if marker, ok := shape["userType"].(string); ok && marker == string(KindPharmacy) {
		return true
	}

	if truthy(shape["pharmacyId"]) {
		return true
	}

	if pharmacy, ok := shape["pharmacy"].(map[string]any); ok && truthy(pharmacy["id"]) {
		return true
	}

	if role, ok := shape["role"].(string); ok && isPharmacyRole(role) {
		return true
	}

	switch roles := shape["roles"].(type) {
	case []any:
		for _, r := range roles {
			if s, ok := r.(string); ok && pharmacyRolePattern.MatchString(s) {
				return true
			}
		}
	case []string:
		for _, s := range roles {
			if pharmacyRolePattern.MatchString(s) {
				return true
			}
		}
	}

	return false
}

func isPharmacyRole(role string) bool {
	normalized := strings.ToUpper(strings.TrimSpace(role))
	if normalized == "" {
		return false
	}
	if _, ok := PharmacyRoles[normalized]; ok {
		return true
	}
	return strings.Contains(normalized, "PHARMACY")
}

// truthy mirrors loose JSON truthiness: zero values and empty strings are false.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return val.String() != ""
		}
		return f != 0
	case float64:
		return val != 0
	case float32:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case int32:
		return val != 0
	default:
		return true
	}
}

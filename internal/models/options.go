package models

// Dropdown options for form fields
// These constants eliminate duplication across template files

var (
	// ViolenceTypes defines the report categories accepted by the backend
	ViolenceTypes = []string{
		"Physical Violence",
		"Psychological Violence",
		"Sexual Violence",
		"Workplace Violence",
		"Discrimination",
	}

	// Zones defines the campus zones offered in the filter dropdown
	Zones = []string{
		"Universidad Nacional",
	}
)

// IsViolenceType reports whether category is one of ViolenceTypes (exact match).
func IsViolenceType(category string) bool {
	for _, t := range ViolenceTypes {
		if t == category {
			return true
		}
	}
	return false
}

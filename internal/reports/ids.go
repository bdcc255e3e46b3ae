package reports

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"cacviun/internal/models"
)

// ErrInvalidID is returned before any network call when a report reference
// does not yield an identifier.
var ErrInvalidID = errors.New("invalid report ID")

// ResolveID extracts a report identifier from the shapes the backend has
// used: a bare string, a {"$oid": ...} wrapper, any value with a String
// method, or a report carrying _id or id.
func ResolveID(ref any) (string, error) {
	var id string
	switch v := ref.(type) {
	case nil:
	case string:
		id = v
	case models.ReportID:
		id = string(v)
	case *models.Report:
		id = v.Key()
	case models.Report:
		id = v.Key()
	case map[string]any:
		id = idFromMap(v)
	case map[string]string:
		id = v["$oid"]
	case fmt.Stringer:
		if !isNilPointer(v) {
			id = v.String()
		}
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrInvalidID
	}
	return id, nil
}

func idFromMap(m map[string]any) string {
	if oid, ok := m["$oid"].(string); ok {
		return oid
	}
	for _, k := range []string{"_id", "id"} {
		if inner, ok := m[k]; ok {
			if id, err := ResolveID(inner); err == nil {
				return id
			}
		}
	}
	return ""
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

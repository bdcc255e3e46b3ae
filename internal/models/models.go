package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Role is the backend's numeric role code carried as a string.
type Role string

const (
	RoleNone      Role = ""
	RoleAdmin     Role = "1"
	RoleUser      Role = "2"
	RoleValidator Role = "3"
)

func (r Role) IsAdmin() bool     { return r == RoleAdmin }
func (r Role) IsValidator() bool { return r == RoleValidator }
func (r Role) IsLogged() bool    { return r != RoleNone }

// Label returns a human readable role name.
func (r Role) Label() string {
	switch r {
	case RoleAdmin:
		return "Administrator"
	case RoleUser:
		return "User"
	case RoleValidator:
		return "Validator"
	default:
		return "Guest"
	}
}

// Session is the authenticated identity held for a browser.
// The zero value is the signed-out session.
type Session struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// IsZero reports whether s is the signed-out session.
func (s Session) IsZero() bool {
	return s.Name == "" && s.Email == "" && s.Role == RoleNone
}

// ReportID holds a backend record identifier. The backend has sent it as a
// bare string, as a {"$oid": "..."} wrapper and as a number.
type ReportID string

// String implements fmt.Stringer.
func (id ReportID) String() string { return string(id) }

func (id *ReportID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ReportID(strings.TrimSpace(s))
	case '{':
		var wrapper struct {
			OID string `json:"$oid"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return err
		}
		*id = ReportID(strings.TrimSpace(wrapper.OID))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*id = ReportID(n.String())
	}
	return nil
}

// Report is a single submitted incident record.
type Report struct {
	MongoID      ReportID `json:"_id,omitempty"`
	ID           ReportID `json:"id,omitempty"`
	UserEmail    string   `json:"user_email"`
	Age          Age      `json:"age"`
	Date         string   `json:"date"`
	CreationTime string   `json:"creationTime,omitempty"`
	Category     string   `json:"category"`
	Description  string   `json:"description"`
	Zone         string   `json:"zone"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
}

// Key returns the first non-empty identifier of the report.
func (r *Report) Key() string {
	if r == nil {
		return ""
	}
	if r.MongoID != "" {
		return string(r.MongoID)
	}
	return string(r.ID)
}

// dateLayouts are tried in order. Values without an offset are read as UTC;
// values with one keep it, so calendar buckets follow the written date.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate parses the date shapes the backend and the date inputs produce.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// When returns the moment the incident happened, falling back to the
// creation time when the date field is empty.
func (r *Report) When() (time.Time, bool) {
	if r == nil {
		return time.Time{}, false
	}
	src := r.Date
	if strings.TrimSpace(src) == "" {
		src = r.CreationTime
	}
	return ParseDate(src)
}

// Age is a reporter's age. The form stored it as text, so the backend may
// send a number or a numeric string. Anything else decodes to 0, which reads
// as not given.
type Age int

func (a *Age) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		*a = 0
		return nil
	}
	*a = Age(f)
	return nil
}

// ReportEdit carries the only two fields a report owner may change.
type ReportEdit struct {
	Category    string `json:"category"`
	Description string `json:"description"`
}

// Coordinate is a float that the backend may send as a number or a string.
// Unparseable input decodes to NaN.
type Coordinate float64

func (c *Coordinate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = Coordinate(math.NaN())
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			f = math.NaN()
		}
		*c = Coordinate(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		*c = Coordinate(math.NaN())
		return nil
	}
	*c = Coordinate(f)
	return nil
}

// Location is a single point of the heat map layer.
type Location struct {
	Latitude  Coordinate `json:"latitud"`
	Longitude Coordinate `json:"longitud"`
}

// RecentReport is a recent incident shown as a map marker.
type RecentReport struct {
	Category    string     `json:"category"`
	Description string     `json:"description,omitempty"`
	Zone        string     `json:"zone,omitempty"`
	Date        string     `json:"date,omitempty"`
	Latitude    Coordinate `json:"latitud"`
	Longitude   Coordinate `json:"longitud"`
}

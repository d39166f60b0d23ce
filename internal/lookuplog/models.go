package lookuplog

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JSONB wraps json.RawMessage with Scanner/Valuer for jsonb columns.
type JSONB json.RawMessage

func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "{}", nil
	}
	return string(j), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = JSONB("{}")
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = JSONB(v)
	default:
		return fmt.Errorf("unsupported type: %T", value)
	}
	return nil
}

func (j JSONB) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("{}"), nil
	}
	return json.RawMessage(j).MarshalJSON()
}

func (j *JSONB) UnmarshalJSON(data []byte) error {
	if j == nil {
		return fmt.Errorf("JSONB: UnmarshalJSON on nil pointer")
	}
	*j = append((*j)[0:0], data...)
	return nil
}

// LookupLog is one completed lookup. Rows are only ever inserted.
type LookupLog struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Dt             time.Time `gorm:"not null;default:now();index" json:"dt"`
	Lat            float64   `gorm:"not null" json:"lat"`
	Lon            float64   `gorm:"not null" json:"lon"`
	RemoteAddr     string    `json:"remote_addr"`
	FQDN           string    `gorm:"column:fqdn" json:"fqdn"`
	Result         JSONB     `gorm:"type:jsonb" json:"result"`
	ResponseTimeMs int       `json:"response_time_ms"`
}

func (LookupLog) TableName() string { return "lookup_log" }

// ErrorLog keeps unexpected failures of the HTTP surface.
type ErrorLog struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Dt           time.Time `gorm:"not null;default:now()" json:"dt"`
	ErrorType    string    `gorm:"not null" json:"error_type"`
	ErrorMessage string    `json:"error_message"`
	Traceback    string    `json:"traceback"`
	ContextInfo  JSONB     `gorm:"type:jsonb" json:"context_info"`
}

func (ErrorLog) TableName() string { return "error_log" }

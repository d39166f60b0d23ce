// Package lookuplog appends completed lookups and server errors to the
// database.
package lookuplog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrStorageUnavailable wraps every failure writing to or reading from the
// log tables.
var ErrStorageUnavailable = errors.New("lookup log unavailable")

const reverseDNSTimeout = 2 * time.Second

// Entry is one lookup to record. Result must already have internal fields
// removed.
type Entry struct {
	Lat        float64
	Lon        float64
	RemoteAddr string
	Result     json.RawMessage
	Elapsed    time.Duration
}

// EntryFromRequest fills the client address from the request.
func EntryFromRequest(r *http.Request, lat, lon float64, result json.RawMessage, elapsed time.Duration) Entry {
	return Entry{
		Lat:        lat,
		Lon:        lon,
		RemoteAddr: RemoteAddr(r),
		Result:     result,
		Elapsed:    elapsed,
	}
}

// Recorder writes LookupLog and ErrorLog rows.
type Recorder struct {
	db  *gorm.DB
	dns Resolver
}

// NewRecorder uses the system resolver for reverse DNS.
func NewRecorder(d *gorm.DB) *Recorder {
	return &Recorder{db: d, dns: net.DefaultResolver}
}

// WithResolver swaps the reverse DNS resolver.
func (r *Recorder) WithResolver(res Resolver) *Recorder {
	r.dns = res
	return r
}

// Migrate creates the log tables.
func (r *Recorder) Migrate() error {
	if err := r.db.AutoMigrate(&LookupLog{}, &ErrorLog{}); err != nil {
		return fmt.Errorf("auto-migrate log tables: %w", err)
	}
	return nil
}

// Record appends a lookup.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	dnsCtx, cancel := context.WithTimeout(ctx, reverseDNSTimeout)
	fqdn := FQDN(dnsCtx, r.dns, e.RemoteAddr)
	cancel()

	row := LookupLog{
		Dt:             time.Now().UTC(),
		Lat:            e.Lat,
		Lon:            e.Lon,
		RemoteAddr:     e.RemoteAddr,
		FQDN:           fqdn,
		Result:         JSONB(e.Result),
		ResponseTimeMs: int(e.Elapsed.Milliseconds()),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("%w: insert lookup: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// RecordError stores a failure together with request context.
func (r *Recorder) RecordError(ctx context.Context, errType, message, trace string, info map[string]any) error {
	b, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal error context: %w", err)
	}
	if trace == "" {
		trace = "No traceback available"
	}
	row := ErrorLog{
		ID:           uuid.New(),
		Dt:           time.Now().UTC(),
		ErrorType:    errType,
		ErrorMessage: message,
		Traceback:    trace,
		ContextInfo:  JSONB(b),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("%w: insert error: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Report summarises the lookup log.
type Report struct {
	Total          int64       `json:"total"`
	Missing        int64       `json:"missing"`
	AvgResponseMs  float64     `json:"avg_response_ms"`
	Recent         []LookupLog `json:"recent"`
	RecentErrors   []ErrorLog  `json:"recent_errors"`
	GeneratedAtUTC time.Time   `json:"generated_at"`
}

// Report returns totals and the most recent limit lookups and errors.
func (r *Recorder) Report(ctx context.Context, limit int) (*Report, error) {
	if limit <= 0 {
		limit = 50
	}
	d := r.db.WithContext(ctx)
	rep := &Report{GeneratedAtUTC: time.Now().UTC()}

	var stats struct {
		Total   int64
		Missing int64
		Avg     *float64
	}
	err := d.Raw(`
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE result->>'missing' = 'true') AS missing,
		       AVG(response_time_ms) AS avg
		FROM lookup_log
	`).Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("%w: report totals: %v", ErrStorageUnavailable, err)
	}
	rep.Total = stats.Total
	rep.Missing = stats.Missing
	if stats.Avg != nil {
		rep.AvgResponseMs = *stats.Avg
	}

	if err := d.Order("dt DESC").Limit(limit).Find(&rep.Recent).Error; err != nil {
		return nil, fmt.Errorf("%w: recent lookups: %v", ErrStorageUnavailable, err)
	}
	if err := d.Order("dt DESC").Limit(limit).Find(&rep.RecentErrors).Error; err != nil {
		return nil, fmt.Errorf("%w: recent errors: %v", ErrStorageUnavailable, err)
	}
	return rep, nil
}

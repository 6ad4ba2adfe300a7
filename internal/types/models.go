package types

import "time"

// Assignment sources for call categorization.
const (
	SourceRule   = "rule"
	SourceAI     = "ai"
	SourceManual = "manual"
)

// Weekly report artifact statuses.
const (
	StatusPending    = "pending"
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// CallRecord is one finalized phone call for a tenant. Categorization fields
// are owned by the categorization pipeline and the confidence enforcer;
// ReportID is owned by the report freezer.
type CallRecord struct {
	ID               int64      `json:"id"`
	TenantID         string     `json:"tenant_id"`
	SubAccountID     string     `json:"sub_account_id,omitempty"`
	ServerID         string     `json:"server_id,omitempty"`
	ProviderCallID   string     `json:"provider_call_id"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	DurationSec      int64      `json:"duration_sec"`
	DID              string     `json:"did,omitempty"`
	SourceNumber     string     `json:"source_number,omitempty"`
	Status           string     `json:"status,omitempty"`
	Transcript       string     `json:"transcript,omitempty"`
	Summary          string     `json:"summary,omitempty"`
	CategoryID       *int64     `json:"category_id,omitempty"`
	SubCategoryID    *int64     `json:"sub_category_id,omitempty"`
	SubCategoryLabel string     `json:"sub_category_label,omitempty"`
	Confidence       *float64   `json:"confidence,omitempty"`
	AssignmentSource string     `json:"assignment_source,omitempty"`
	AssignedAt       *time.Time `json:"assigned_at,omitempty"`
	ReportID         *string    `json:"report_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// WeeklyReport is one tenant x sub-account x ISO-week analytics snapshot.
// Metric fields are owned by the report upsert step; Status and the artifact
// fields are owned solely by the artifact generator.
type WeeklyReport struct {
	ID                  string        `json:"id"`
	TenantID            string        `json:"tenant_id"`
	SubAccountID        string        `json:"sub_account_id"`
	ServerID            string        `json:"server_id,omitempty"`
	WeekStart           string        `json:"week_start"` // YYYY-MM-DD, Monday in tenant-local time
	TotalCalls          int           `json:"total_calls"`
	AnsweredCalls       int           `json:"answered_calls"`
	MissedCalls         int           `json:"missed_calls"`
	CallsWithTranscript int           `json:"calls_with_transcript"`
	TotalDurationSec    int64         `json:"total_duration_sec"`
	AvgDurationSec      int64         `json:"avg_duration_sec"`
	FirstCallAt         *time.Time    `json:"first_call_at,omitempty"`
	LastCallAt          *time.Time    `json:"last_call_at,omitempty"`
	Metrics             ReportMetrics `json:"metrics"`
	Status              string        `json:"status"`
	DocumentPath        string        `json:"document_path,omitempty"`
	SpreadsheetPath     string        `json:"spreadsheet_path,omitempty"`
	ErrorMessage        string        `json:"error_message,omitempty"`
	GeneratedAt         *time.Time    `json:"generated_at,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// CallCategory is a read-only category reference.
type CallCategory struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Enabled          bool   `json:"enabled"`
	AssignmentSource string `json:"assignment_source,omitempty"`
}

// CallSubCategory is a read-only sub-category reference.
type CallSubCategory struct {
	ID         int64  `json:"id"`
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
}

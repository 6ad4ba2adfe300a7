package types

// MetricsSchemaVersion marks the current shape of the serialized metrics
// payload. Older rows missing fields decode to zero values.
const MetricsSchemaVersion = 1

// ReportMetrics is the derived analytics payload stored alongside a weekly
// report row. It is written whole on every upsert and read back by the
// artifact generator and the report query surface.
type ReportMetrics struct {
	SchemaVersion     int                 `json:"schema_version"`
	CategoryCounts    []CategoryCount     `json:"category_counts,omitempty"`
	CategoryBreakdown []CategoryBreakdown `json:"category_breakdown,omitempty"`
	TopDIDs           []DIDVolume         `json:"top_dids,omitempty"`
	HourlyHistogram   [24]int             `json:"hourly_histogram"`
	Insights          Insights            `json:"insights"`
	ExecutiveSummary  string              `json:"executive_summary,omitempty"`
}

// CategoryCount pairs a category with its weekly call volume.
type CategoryCount struct {
	CategoryID int64   `json:"category_id"`
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Percent    float64 `json:"percent"`
}

// CategoryBreakdown expands one category into sub-category volumes plus a
// handful of representative transcripts.
type CategoryBreakdown struct {
	CategoryID    int64              `json:"category_id"`
	Name          string             `json:"name"`
	Count         int                `json:"count"`
	SubCategories []SubCategoryCount `json:"sub_categories,omitempty"`
	SampleCalls   []SampleCall       `json:"sample_calls,omitempty"`
}

// SubCategoryCount is one sub-category's share within its category.
type SubCategoryCount struct {
	SubCategoryID int64   `json:"sub_category_id,omitempty"`
	Name          string  `json:"name"`
	Count         int     `json:"count"`
	Percent       float64 `json:"percent"`
}

// SampleCall is a truncated transcript excerpt stored with a breakdown.
type SampleCall struct {
	Date         string `json:"date"`
	DID          string `json:"did,omitempty"`
	SourceNumber string `json:"source_number,omitempty"`
	Transcript   string `json:"transcript"`
}

// DIDVolume is one inbound number's weekly call count.
type DIDVolume struct {
	DID   string `json:"did"`
	Count int    `json:"count"`
}

// Insights groups the rule-based findings for one report.
type Insights struct {
	Opportunities     []Opportunity    `json:"opportunities,omitempty"`
	Highlights        []Highlight      `json:"highlights,omitempty"`
	Recommendations   []Recommendation `json:"recommendations,omitempty"`
	PeakHours         []string         `json:"peak_hours,omitempty"`
	AfterHoursPercent float64          `json:"after_hours_percent"`
}

// Opportunity flags a category heavy enough to be an automation candidate.
type Opportunity struct {
	CategoryID     int64   `json:"category_id"`
	Category       string  `json:"category"`
	Count          int     `json:"count"`
	Percent        float64 `json:"percent"`
	TopSubCategory string  `json:"top_sub_category,omitempty"`
	SubPercent     float64 `json:"sub_percent,omitempty"`
}

// Highlight calls out the dominant sub-category of a high-volume category.
type Highlight struct {
	CategoryID     int64   `json:"category_id"`
	Category       string  `json:"category"`
	Count          int     `json:"count"`
	TopSubCategory string  `json:"top_sub_category,omitempty"`
	SubPercent     float64 `json:"sub_percent,omitempty"`
}

// Recommendation is a rule-derived operational suggestion.
type Recommendation struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Recommendation kinds.
const (
	RecommendationLowAnswerRate   = "low_answer_rate"
	RecommendationHighMissedCalls = "high_missed_volume"
	RecommendationAfterHours      = "after_hours_volume"
)

// ReportView is the read model handed to the admin API: everything needed to
// render one weekly report to an end user.
type ReportView struct {
	ReportID         string        `json:"report_id"`
	TenantID         string        `json:"tenant_id"`
	SubAccountID     string        `json:"sub_account_id"`
	WeekStart        string        `json:"week_start"`
	WeekEnd          string        `json:"week_end"`
	Status           string        `json:"status"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	ExecutiveSummary string        `json:"executive_summary,omitempty"`
	TotalCalls       int           `json:"total_calls"`
	AnsweredCalls    int           `json:"answered_calls"`
	MissedCalls      int           `json:"missed_calls"`
	AnswerRate       float64       `json:"answer_rate"`
	AvgDuration      string        `json:"avg_duration"`
	TotalDuration    string        `json:"total_duration"`
	Metrics          ReportMetrics `json:"metrics"`
	DocumentReady    bool          `json:"document_ready"`
	SpreadsheetReady bool          `json:"spreadsheet_ready"`
}

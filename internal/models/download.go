package models

// Outcome is the final state of one playlist entry.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// FailureKind says why an entry failed.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureResolve   FailureKind = "resolve"
	FailureStatus    FailureKind = "status"
	FailureTransport FailureKind = "transport"
	FailureLocked    FailureKind = "locked"
	FailureWrite     FailureKind = "write"
)

type DownloadResult struct {
	Entry        string      `json:"entry"`
	SourceURL    string      `json:"source_url,omitempty"`
	LocalPath    string      `json:"local_path,omitempty"`
	Outcome      Outcome     `json:"outcome"`
	Failure      FailureKind `json:"failure,omitempty"`
	StatusCode   int         `json:"status_code,omitempty"`
	Bytes        int64       `json:"bytes"`
	StaleRemoved bool        `json:"stale_removed,omitempty"`
	Err          error       `json:"-"`
}

func (r DownloadResult) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

type SyncResult struct {
	RunID          string   `json:"run_id"`
	PlaylistURL    string   `json:"playlist_url"`
	CacheDirectory string   `json:"cache_directory"`
	SuccessCount   int      `json:"success_count"`
	TotalCount     int      `json:"total_count"`
	Failed         []string `json:"failed"`
	TotalSizeBytes int64    `json:"total_size_bytes"`
	TotalSizeHuman string   `json:"total_size_human"`
	OperationTime  string   `json:"operation_time"`
	Duration       string   `json:"duration"`
}

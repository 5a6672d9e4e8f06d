package model

import "time"

// IngestSummary captures metrics from a single upload ingest run.
type IngestSummary struct {
	FilePath        string        `json:"filePath,omitempty"`
	FileSHA256      string        `json:"fileSha256,omitempty"`
	IngestBatchID   string        `json:"ingestBatchId"`
	RowsRead        int64         `json:"rowsRead"`
	RowsSkipped     int64         `json:"rowsSkipped"`
	RecordsMerged   int64         `json:"recordsMerged"`
	RecordsArchived int64         `json:"recordsArchived"`
	PatientsCreated int64         `json:"patientsCreated"`
	VisitsCreated   int64         `json:"visitsCreated"`
	VisitsMerged    int64         `json:"visitsMerged"`
	DurationMerge   time.Duration `json:"durationMerge"`
	DurationTotal   time.Duration `json:"durationTotal"`
}

// Package sql embeds the Postgres migrations and queries used by the
// Postgres store.
package sql

import (
	"embed"
)

//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed queries/upsert_patient.sql
var UpsertPatient string

//go:embed queries/upsert_visit.sql
var UpsertVisit string

//go:embed queries/select_patient.sql
var SelectPatient string

//go:embed queries/insert_patient.sql
var InsertPatient string

//go:embed queries/update_patient.sql
var UpdatePatient string

//go:embed queries/select_visit.sql
var SelectVisit string

//go:embed queries/insert_visit.sql
var InsertVisit string

//go:embed queries/update_visit.sql
var UpdateVisit string

//go:embed queries/merged_view.sql
var MergedView string

// ArchiveTable and ArchiveColumns describe the COPY target for archived
// processed records.
var ArchiveTable = []string{"intake", "processed_records"}

var ArchiveColumns = []string{
	"batch_id", "row_seq", "full_name", "first_name", "last_name", "mrn",
	"char_status", "payer_source_name", "branch_code", "visit_type", "status",
	"visit_date", "zip_code", "hchb_calculation", "total_pmt", "icd_codes",
	"questionnaire",
}

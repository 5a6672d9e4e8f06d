package model

import (
	"time"

	"github.com/google/uuid"
)

// ArchivedRecord is one processed record as kept in the archive, tagged with
// the batch that merged it and its position in that batch.
type ArchivedRecord struct {
	BatchID    uuid.UUID       `json:"batchId" bson:"batch_id"`
	Seq        int             `json:"seq" bson:"seq"`
	Record     ProcessedRecord `json:"record" bson:"record"`
	ArchivedAt time.Time       `json:"archivedAt" bson:"archived_at"`
}

// ArchiveBatch tags recs with batchID and their 1-based sequence numbers.
func ArchiveBatch(batchID uuid.UUID, recs []ProcessedRecord, at time.Time) []ArchivedRecord {
	out := make([]ArchivedRecord, len(recs))
	for i := range recs {
		out[i] = ArchivedRecord{BatchID: batchID, Seq: i + 1, Record: recs[i], ArchivedAt: at}
	}
	return out
}

// CopyValues returns the archive row in COPY column order. ArchivedAt is left
// to the column default.
func (a *ArchivedRecord) CopyValues() []any {
	r := &a.Record
	codes := r.ICDCodes
	if codes == nil {
		codes = []string{}
	}
	q := r.Questionnaire
	if q == nil {
		q = Questionnaire{}
	}
	return []any{
		a.BatchID,
		a.Seq,
		r.FullName,
		r.FirstName,
		r.LastName,
		r.MRN,
		r.CharStatus,
		r.PayerSourceName,
		r.BranchCode,
		r.VisitType,
		r.Status,
		r.VisitDate,
		r.ZipCode,
		r.HCHBCalculation,
		r.TotalPmt,
		codes,
		q,
	}
}

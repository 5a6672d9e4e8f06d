package mongostore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gyeh/visitload/internal/model"
)

func TestEscapeKey_RoundTrip(t *testing.T) {
	for _, k := range []string{"M1800", "Q.1", "$where", "50%", "a.b$c%2E"} {
		assert.Equal(t, k, unescapeKey(escapeKey(k)), k)
	}
	assert.Equal(t, "Q%2E1", escapeKey("Q.1"))
}

func TestDecodeQuestionnaire_NormalizesIntegers(t *testing.T) {
	q := decodeQuestionnaire(map[string][]any{"Q%2E1": {int32(2), int64(3), "x", 1.5}})
	assert.Equal(t, []any{float64(2), float64(3), "x", 1.5}, q["Q.1"])
}

// openTestStore connects to VISITLOAD_MONGO_URI with a throwaway database.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("VISITLOAD_MONGO_URI")
	if uri == "" {
		t.Skip("set VISITLOAD_MONGO_URI to run MongoDB store tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	db := client.Database(fmt.Sprintf("visitload_test_%d", time.Now().UnixNano()))
	st := New(client, db, zerolog.Nop())
	require.NoError(t, st.EnsureIndexes(ctx))

	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = st.Close()
	})
	return st
}

func TestUpsertVisit_UnionsAnswers(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	p, created, err := st.UpsertPatient(ctx, &model.Patient{MRN: "M1", FirstName: "Jane", LastName: "Doe"})
	require.NoError(t, err)
	assert.True(t, created)

	v := &model.Visit{
		PatientID: p.ID, MRN: "M1", VisitType: "SOC", VisitDate: "2024-01-15", Status: "Open",
		ICDCodes: []string{"I10"}, Questionnaire: model.Questionnaire{"Q.1": {"x"}},
	}
	first, created, err := st.UpsertVisit(ctx, v)
	require.NoError(t, err)
	assert.True(t, created)

	v2 := *v
	v2.Status = "Closed"
	v2.ICDCodes = []string{"E11.9", "I10"}
	v2.Questionnaire = model.Questionnaire{"Q.1": {"x", "y"}, "R": {float64(4)}}
	second, created, err := st.UpsertVisit(ctx, &v2)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Closed", second.Status)
	assert.Equal(t, []string{"I10", "E11.9"}, second.ICDCodes)
	assert.Equal(t, []any{"x", "y"}, second.Questionnaire["Q.1"])
	assert.Equal(t, []any{float64(4)}, second.Questionnaire["R"])

	rows, err := st.MergedView(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, p.ID, rows[0].PatientID)
	assert.Equal(t, "Jane", rows[0].FirstName)
}

func TestMergedViewMatch_RejectsNullAndEmpty(t *testing.T) {
	want := bson.M{"$nin": bson.A{nil, ""}}
	assert.Equal(t, bson.M{"mrn": want, "visitDate": want}, mergedViewMatch())
}

func TestMergedView_SkipsVisitsWithoutKeyFields(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	p, _, err := st.UpsertPatient(ctx, &model.Patient{MRN: "M1", FirstName: "Jane", LastName: "Doe"})
	require.NoError(t, err)
	_, _, err = st.UpsertVisit(ctx, &model.Visit{PatientID: p.ID, MRN: "M1", VisitType: "SOC", VisitDate: "2024-01-15"})
	require.NoError(t, err)

	pid := p.ID.String()
	_, err = st.visits.InsertMany(ctx, []any{
		bson.M{"_id": uuid.NewString(), "patientId": pid, "mrn": "M1", "visitType": "ROC"},
		bson.M{"_id": uuid.NewString(), "patientId": pid, "mrn": "M1", "visitType": "DC", "visitDate": nil},
		bson.M{"_id": uuid.NewString(), "patientId": pid, "mrn": "M1", "visitType": "RECERT", "visitDate": ""},
		bson.M{"_id": uuid.NewString(), "patientId": pid, "visitType": "SOC", "visitDate": "2024-02-01"},
	})
	require.NoError(t, err)

	rows, err := st.MergedView(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "SOC", rows[0].VisitType)
	assert.Equal(t, "2024-01-15", rows[0].VisitDate)
}

func TestArchiveRecords_InsertsBatch(t *testing.T) {
	st := openTestStore(t)
	n, err := st.ArchiveRecords(context.Background(), uuid.New(), []model.ProcessedRecord{{MRN: "M1"}, {MRN: "M2"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

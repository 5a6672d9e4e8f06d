// Package mongostore is the MongoDB implementation of store.Store. Each
// upsert is one findOneAndUpdate; $addToSet gives the order-preserving
// union for ICD codes and questionnaire answers.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/gyeh/visitload/internal/model"
	"github.com/gyeh/visitload/internal/store"
)

// DefaultDatabase is used when the connection URI names no database.
const DefaultDatabase = "visitload"

const (
	patientsCollection = "patients"
	visitsCollection   = "visits"
	archiveCollection  = "processed_records"
)

// Store keeps patients, visits and archived records in three collections.
type Store struct {
	client   *mongo.Client
	patients *mongo.Collection
	visits   *mongo.Collection
	archive  *mongo.Collection
	log      zerolog.Logger
	now      func() time.Time
}

var (
	_ store.Store    = (*Store)(nil)
	_ store.Upserter = (*Store)(nil)
	_ store.Archiver = (*Store)(nil)
)

// Open connects to uri and ensures the unique indexes on the natural keys.
func Open(ctx context.Context, uri string, log zerolog.Logger) (*Store, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("parse mongo uri: %w", err)
	}
	dbName := cs.Database
	if dbName == "" {
		dbName = DefaultDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := New(client, client.Database(dbName), log)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New builds a Store on an existing client and database.
func New(client *mongo.Client, db *mongo.Database, log zerolog.Logger) *Store {
	return &Store{
		client:   client,
		patients: db.Collection(patientsCollection),
		visits:   db.Collection(visitsCollection),
		archive:  db.Collection(archiveCollection),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates the unique indexes that make upserts key-exact.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.patients.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "mrn", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("patients_mrn_key"),
	})
	if err != nil {
		return fmt.Errorf("create patients index: %w", err)
	}
	_, err = s.visits.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "mrn", Value: 1}, {Key: "visitType", Value: 1}, {Key: "visitDate", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("visits_natural_key"),
		},
		{
			Keys:    bson.D{{Key: "patientId", Value: 1}},
			Options: options.Index().SetName("visits_patient_id"),
		},
	})
	if err != nil {
		return fmt.Errorf("create visits indexes: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) FindPatient(ctx context.Context, mrn string) (*model.Patient, error) {
	var doc patientDoc
	err := s.patients.FindOne(ctx, bson.M{"mrn": mrn}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find patient: %w", err)
	}
	return doc.toModel()
}

func (s *Store) CreatePatient(ctx context.Context, p *model.Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	if _, err := s.patients.InsertOne(ctx, fromPatient(p)); err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (s *Store) UpdatePatient(ctx context.Context, mrn string, ch store.PatientChanges) error {
	_, err := s.patients.UpdateOne(ctx, bson.M{"mrn": mrn}, bson.M{"$set": bson.M{
		"firstName": ch.FirstName,
		"lastName":  ch.LastName,
		"updatedAt": s.now(),
	}})
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	return nil
}

func (s *Store) FindVisit(ctx context.Context, key model.VisitKey) (*model.Visit, error) {
	var doc visitDoc
	err := s.visits.FindOne(ctx, visitFilter(key)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find visit: %w", err)
	}
	return doc.toModel()
}

func (s *Store) CreateVisit(ctx context.Context, v *model.Visit) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	now := s.now()
	v.CreatedAt, v.UpdatedAt = now, now
	if _, err := s.visits.InsertOne(ctx, fromVisit(v)); err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

func (s *Store) UpdateVisit(ctx context.Context, key model.VisitKey, ch store.VisitChanges) error {
	codes := ch.ICDCodes
	if codes == nil {
		codes = []string{}
	}
	_, err := s.visits.UpdateOne(ctx, visitFilter(key), bson.M{"$set": bson.M{
		"branchCode":      ch.BranchCode,
		"status":          ch.Status,
		"payerSourceName": ch.PayerSourceName,
		"icdCodes":        codes,
		"questionnaire":   encodeQuestionnaire(ch.Questionnaire),
		"updatedAt":       s.now(),
	}})
	if err != nil {
		return fmt.Errorf("update visit: %w", err)
	}
	return nil
}

// UpsertPatient creates the patient or overwrites its names.
func (s *Store) UpsertPatient(ctx context.Context, p *model.Patient) (*model.Patient, bool, error) {
	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := s.now()
	update := bson.M{
		"$set": bson.M{
			"firstName": p.FirstName,
			"lastName":  p.LastName,
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{
			"_id":       id.String(),
			"createdAt": now,
		},
	}

	var doc patientDoc
	err := retryOnDuplicate(func() error {
		return s.patients.FindOneAndUpdate(ctx, bson.M{"mrn": p.MRN}, update, upsertAfter()).Decode(&doc)
	})
	if err != nil {
		return nil, false, fmt.Errorf("upsert patient: %w", err)
	}
	out, err := doc.toModel()
	if err != nil {
		return nil, false, err
	}
	return out, out.ID == id, nil
}

// UpsertVisit creates the visit or merges into it: scalars are overwritten,
// ICD codes and questionnaire answers are added with $addToSet.
func (s *Store) UpsertVisit(ctx context.Context, v *model.Visit) (*model.Visit, bool, error) {
	id := v.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := s.now()

	setOnInsert := bson.M{
		"_id":             id.String(),
		"patientId":       v.PatientID.String(),
		"charStatus":      v.CharStatus,
		"zipCode":         v.ZipCode,
		"hchbCalculation": v.HCHBCalculation,
		"totalPmt":        v.TotalPmt,
		"createdAt":       now,
	}
	addToSet := bson.M{}
	if len(v.ICDCodes) > 0 {
		addToSet["icdCodes"] = bson.M{"$each": v.ICDCodes}
	} else {
		setOnInsert["icdCodes"] = []string{}
	}
	if len(v.Questionnaire) > 0 {
		for k, answers := range v.Questionnaire {
			addToSet["questionnaire."+escapeKey(k)] = bson.M{"$each": answers}
		}
	} else {
		setOnInsert["questionnaire"] = bson.M{}
	}

	update := bson.M{
		"$set": bson.M{
			"branchCode":      v.BranchCode,
			"status":          v.Status,
			"payerSourceName": v.PayerSourceName,
			"updatedAt":       now,
		},
		"$setOnInsert": setOnInsert,
	}
	if len(addToSet) > 0 {
		update["$addToSet"] = addToSet
	}

	var doc visitDoc
	err := retryOnDuplicate(func() error {
		return s.visits.FindOneAndUpdate(ctx, visitFilter(v.Key()), update, upsertAfter()).Decode(&doc)
	})
	if err != nil {
		return nil, false, fmt.Errorf("upsert visit: %w", err)
	}
	out, err := doc.toModel()
	if err != nil {
		return nil, false, err
	}
	return out, out.ID == id, nil
}

// mergedViewMatch keeps visits whose mrn and visitDate are set. $nin also
// drops documents where either field is null or missing.
func mergedViewMatch() bson.M {
	present := bson.M{"$nin": bson.A{nil, ""}}
	return bson.M{"mrn": present, "visitDate": present}
}

func (s *Store) MergedView(ctx context.Context) ([]model.MergedRecord, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: mergedViewMatch()}},
		{{Key: "$lookup", Value: bson.M{
			"from":         patientsCollection,
			"localField":   "patientId",
			"foreignField": "_id",
			"as":           "patient",
		}}},
		{{Key: "$unwind", Value: "$patient"}},
		{{Key: "$sort", Value: bson.D{{Key: "mrn", Value: 1}, {Key: "visitDate", Value: 1}, {Key: "visitType", Value: 1}}}},
	}
	cur, err := s.visits.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate merged view: %w", err)
	}
	defer cur.Close(ctx)

	out := []model.MergedRecord{}
	for cur.Next(ctx) {
		var doc mergedDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode merged row: %w", err)
		}
		pid, err := uuid.Parse(doc.Patient.ID)
		if err != nil {
			return nil, fmt.Errorf("patient id: %w", err)
		}
		out = append(out, model.MergedRecord{
			PatientID:       pid,
			MRN:             doc.Patient.MRN,
			FirstName:       doc.Patient.FirstName,
			LastName:        doc.Patient.LastName,
			VisitType:       doc.VisitType,
			VisitDate:       doc.VisitDate,
			Status:          doc.Status,
			PayerSourceName: doc.PayerSourceName,
			BranchCode:      doc.BranchCode,
			Questionnaire:   decodeQuestionnaire(doc.Questionnaire),
		})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate merged view: %w", err)
	}
	return out, nil
}

// ArchiveRecords inserts one document per record.
func (s *Store) ArchiveRecords(ctx context.Context, batchID uuid.UUID, recs []model.ProcessedRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	rows := model.ArchiveBatch(batchID, recs, s.now())
	docs := make([]any, len(rows))
	for i := range rows {
		docs[i] = fromArchived(&rows[i])
	}
	res, err := s.archive.InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("insert processed records: %w", err)
	}
	return int64(len(res.InsertedIDs)), nil
}

func visitFilter(k model.VisitKey) bson.M {
	return bson.M{"mrn": k.MRN, "visitType": k.VisitType, "visitDate": k.VisitDate}
}

func upsertAfter() *options.FindOneAndUpdateOptions {
	return options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
}

// retryOnDuplicate retries fn once when two upserts race on the same key
// and the loser hits the unique index.
func retryOnDuplicate(fn func() error) error {
	err := fn()
	if mongo.IsDuplicateKeyError(err) {
		err = fn()
	}
	return err
}

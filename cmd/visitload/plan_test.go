package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gyeh/visitload/internal/model"
)

func TestSummarize(t *testing.T) {
	recs := []model.ProcessedRecord{
		{MRN: "M1", VisitType: "SOC", VisitDate: "2024-01-15", ICDCodes: []string{"I10", "E11.9"}},
		{MRN: "M1", VisitType: "SOC", VisitDate: "2024-01-15", ICDCodes: []string{"I10"}},
		{MRN: "M1", VisitType: "ROC", VisitDate: "2024-02-01"},
		{MRN: "M2", VisitType: "SOC", VisitDate: "2024-01-15", ICDCodes: []string{"Z99", "E11.9", "I10"}},
	}

	got := summarize(recs)
	assert.Equal(t, 2, got.patients)
	assert.Equal(t, 3, got.visits)
	assert.Equal(t, []codeCount{{"I10", 3}, {"E11.9", 2}, {"Z99", 1}}, got.codes)
}

func TestSummarize_Empty(t *testing.T) {
	got := summarize(nil)
	assert.Zero(t, got.patients)
	assert.Zero(t, got.visits)
	assert.Empty(t, got.codes)
}

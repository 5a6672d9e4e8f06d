// mkfixture writes a synthetic visit export workbook for local ingest runs.
// Every patient gets several visits and some visits repeat with extra ICD
// codes and answers, so an ingest exercises both create and merge paths.
// Usage: go run ./cmd/mkfixture --out testdata/visits.xlsx --patients 50 --visits 4
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/gyeh/visitload/internal/tabular"
)

var header = []any{
	"patient", "MRN", "chart_status", "PayorSourceName", "BranchCode",
	"form", "form_status", "admitDate", "ZipCode",
	"M1023(1)", "M1023(2)", "M1023(3)",
	"M1800(1)", "M1800(2)", "Pain(1)", "Pain(2)",
}

var (
	firstNames = []string{"Doe", "Smith", "Garcia", "Nguyen", "Okafor", "Larsen"}
	lastNames  = []string{"Jane", "John", "Maria", "Minh", "Ada", "Erik"}
	payers     = []string{"Medicare", "Medicaid", "Aetna", "Humana"}
	branches   = []string{"BR1", "BR2", "BR3"}
	forms      = []string{"SOC", "ROC", "RECERT", "DC"}
	icdCodes   = []string{"I10", "E11.9", "Z99.81", "M62.81", "J44.9", "I50.9", "N18.3"}
)

func main() {
	out := flag.String("out", "testdata/visits.xlsx", "output workbook")
	patients := flag.Int("patients", 50, "number of distinct MRNs")
	visits := flag.Int("visits", 4, "visits per patient")
	seed := flag.Int64("seed", 1, "random seed")
	check := flag.Bool("check", false, "only read --out back and print row stats")
	flag.Parse()

	if *check {
		if err := checkWorkbook(*out); err != nil {
			fmt.Fprintf(os.Stderr, "check: %v\n", err)
			os.Exit(1)
		}
		return
	}

	rows := generate(rand.New(rand.NewSource(*seed)), *patients, *visits)
	if err := writeWorkbook(*out, rows); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d rows for %d patients to %s\n", len(rows), *patients, *out)
}

func generate(rng *rand.Rand, patients, visits int) [][]any {
	var rows [][]any
	for p := 0; p < patients; p++ {
		mrn := fmt.Sprintf("MRN%05d", p+1)
		name := firstNames[rng.Intn(len(firstNames))] + ", " + lastNames[rng.Intn(len(lastNames))]
		zip := fmt.Sprintf("%05d", 10000+rng.Intn(89999))
		for v := 0; v < visits; v++ {
			date := fmt.Sprintf("2024-%02d-%02d", 1+v%12, 1+rng.Intn(28))
			row := visitRow(rng, name, mrn, forms[v%len(forms)], date, zip)
			rows = append(rows, row)
			// Repeat a third of the visits so the second copy merges.
			if rng.Intn(3) == 0 {
				rows = append(rows, visitRow(rng, name, mrn, forms[v%len(forms)], date, zip))
			}
		}
	}
	return rows
}

func visitRow(rng *rand.Rand, name, mrn, form, date, zip string) []any {
	status := "Completed"
	if rng.Intn(4) == 0 {
		status = "In Progress"
	}
	row := []any{
		name, mrn, "Open", payers[rng.Intn(len(payers))], branches[rng.Intn(len(branches))],
		form, status, date, zip,
	}
	for i := 0; i < 3; i++ {
		if i == 0 || rng.Intn(2) == 0 {
			row = append(row, icdCodes[rng.Intn(len(icdCodes))])
		} else {
			row = append(row, "")
		}
	}
	for i := 0; i < 2; i++ {
		row = append(row, rng.Intn(4))
	}
	for i := 0; i < 2; i++ {
		if rng.Intn(3) == 0 {
			row = append(row, "NULL")
		} else {
			row = append(row, rng.Intn(11))
		}
	}
	return row
}

func writeWorkbook(path string, rows [][]any) error {
	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter(f.GetSheetName(0))
	if err != nil {
		return err
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func checkWorkbook(path string) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	rr, err := tabular.Open(path, fh)
	if err != nil {
		return err
	}
	defer rr.Close()

	rows, err := tabular.ReadAll(rr)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%s has no header row", path)
	}
	mrns := make(map[string]bool)
	for _, row := range rows[1:] {
		if len(row) > 1 {
			mrns[row[1].Text()] = true
		}
	}
	fmt.Printf("Rows: %d (+1 header), columns: %d, distinct MRNs: %d\n", len(rows)-1, len(rows[0]), len(mrns))
	return nil
}

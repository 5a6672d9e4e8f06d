package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gyeh/visitload/internal/extract"
)

// DefaultRequiredHeaders must be present in every upload's header row.
var DefaultRequiredHeaders = []string{"MRN", "BranchCode", "form", "admitDate"}

// DefaultZipCode is stored when an upload has no zip code column value.
const DefaultZipCode = "00000"

// IndexRange names one PREFIX(start)..PREFIX(end) column family.
type IndexRange struct {
	Prefix string `yaml:"prefix"`
	Start  int    `yaml:"start"`
	End    int    `yaml:"end"`
}

// Profile describes the column convention of the uploads being ingested.
type Profile struct {
	RequiredHeaders []string   `yaml:"required_headers"`
	ICD             IndexRange `yaml:"icd"`
	ExcludedColumns []string   `yaml:"excluded_columns"`
	DefaultZipCode  string     `yaml:"default_zip_code"`
}

// DefaultProfile returns the built-in column convention.
func DefaultProfile() Profile {
	return Profile{
		RequiredHeaders: append([]string(nil), DefaultRequiredHeaders...),
		ICD:             IndexRange{Prefix: extract.ICDPrefix, Start: extract.ICDStart, End: extract.ICDEnd},
		ExcludedColumns: append([]string(nil), extract.DefaultExcludedColumns...),
		DefaultZipCode:  DefaultZipCode,
	}
}

// LoadProfileFile reads a YAML profile; keys it omits keep their defaults.
func LoadProfileFile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile file: %w", err)
	}
	var yp Profile
	if err := yaml.Unmarshal(data, &yp); err != nil {
		return Profile{}, fmt.Errorf("parse profile file: %w", err)
	}
	p := DefaultProfile()
	if len(yp.RequiredHeaders) > 0 {
		p.RequiredHeaders = yp.RequiredHeaders
	}
	if yp.ICD.Prefix != "" {
		p.ICD.Prefix = yp.ICD.Prefix
	}
	if yp.ICD.Start != 0 || yp.ICD.End != 0 {
		p.ICD.Start, p.ICD.End = yp.ICD.Start, yp.ICD.End
	}
	if len(yp.ExcludedColumns) > 0 {
		p.ExcludedColumns = yp.ExcludedColumns
	}
	if yp.DefaultZipCode != "" {
		p.DefaultZipCode = yp.DefaultZipCode
	}
	return p, p.Validate()
}

// Validate rejects profiles that cannot describe a column family.
func (p Profile) Validate() error {
	if p.ICD.Prefix == "" {
		return fmt.Errorf("icd.prefix must not be empty")
	}
	if p.ICD.Start < 0 || p.ICD.Start > p.ICD.End {
		return fmt.Errorf("icd range %d..%d is invalid", p.ICD.Start, p.ICD.End)
	}
	for _, h := range p.RequiredHeaders {
		if h == "" {
			return fmt.Errorf("required_headers contains an empty name")
		}
	}
	return nil
}

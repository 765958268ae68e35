// Package address models voter address records and their stable identities.
package address

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// Record is one row of an input address table. Street, City, State and Zip
// are required; Unit is optional. Fields carries passenger columns (voter
// counts, precinct codes, anything the caller wants joined back later).
type Record struct {
	Street string
	City   string
	State  string
	Zip    string
	Unit   string

	Fields map[string]string
}

// Identity holds the hash-derived keys for a record. BuildingID groups all
// units at one street address; AddressID additionally includes the unit.
type Identity struct {
	BuildingID string
	AddressID  string
}

// OneLine formats the record as a single free-text address for geocoding.
func (r Record) OneLine() string {
	parts := []string{r.Street, r.City, r.State, r.Zip}
	var nonEmpty []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}

// ComputeIdentity derives BuildingID and AddressID for a record.
// The hash is stable across runs and processes: SHA-256 of the NFC-normalized,
// lower-cased concatenation of the required components. Two records differing
// only in case or unit yield the same BuildingID.
func ComputeIdentity(r Record) (Identity, error) {
	required := []struct {
		name  string
		value string
	}{
		{"street", r.Street},
		{"city", r.City},
		{"state", r.State},
		{"zip", r.Zip},
	}

	var sb strings.Builder
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return Identity{}, eris.Errorf("address: missing required field %q", f.name)
		}
		sb.WriteString(f.value)
	}

	buildingID := contentHash(sb.String())

	addressID := buildingID
	if r.Unit != "" {
		sb.WriteString(r.Unit)
		addressID = contentHash(sb.String())
	}

	return Identity{BuildingID: buildingID, AddressID: addressID}, nil
}

// WeightOf extracts a non-negative numeric weight from a passenger column.
// An absent column is a data error; an empty value counts as zero.
func WeightOf(r Record, col string) (float64, error) {
	raw, ok := r.Fields[col]
	if !ok {
		return 0, eris.Errorf("address: column %q not present in record", col)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	w, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "address: parse weight column %q", col)
	}
	if w < 0 {
		return 0, eris.Errorf("address: negative weight %v in column %q", w, col)
	}
	return w, nil
}

// contentHash returns the SHA-256 hex digest of the normalized input.
func contentHash(s string) string {
	normalized := norm.NFC.String(strings.ToLower(s))
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

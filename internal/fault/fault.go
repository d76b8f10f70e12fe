// Package fault resolves fault percentages for a classified accident type
// from the reference case table.
package fault

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/accident.report/internal/monitoring"
)

// Column layout of the case table. The first row is a header. Column 11 is
// optional and narrows a code to one damage location.
const (
	colPlace = iota + 1
	colFeature
	colCarAProgress
	colCarBProgress
	colFaultA
	colFaultB
	colCode
	colTitle
	colLaws
	colPrecedents
	colDamage
)

const minColumns = colPrecedents + 1

// Case is one row of the reference table.
type Case struct {
	Code           string `json:"code"`
	Place          string `json:"accident_place"`
	Feature        string `json:"accident_feature"`
	CarAProgress   string `json:"car_a_progress"`
	CarBProgress   string `json:"car_b_progress"`
	FaultA         int    `json:"fault_a"`
	FaultB         int    `json:"fault_b"`
	Title          string `json:"title"`
	Laws           string `json:"laws"`
	Precedents     string `json:"precedents"`
	DamageLocation string `json:"damage_location,omitempty"`
}

// Table is the loaded case table. It is immutable after Load and safe for
// concurrent lookups.
type Table struct {
	cases []Case
}

// Len returns the number of usable rows.
func (t *Table) Len() int { return len(t.cases) }

// LoadTable opens and parses the CSV at path.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fault table: %w", err)
	}
	defer f.Close()
	t, err := ParseTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ParseTable reads a case table. Short rows, rows with unparsable fault
// values and rows whose fault values do not sum to 100 are skipped with a
// warning.
func ParseTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("fault table is empty")
		}
		return nil, fmt.Errorf("failed to read fault table header: %w", err)
	}

	t := &Table{}
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			monitoring.Logf("[fault] line %d: %v", line, err)
			continue
		}
		if len(row) < minColumns {
			monitoring.Logf("[fault] line %d: %d columns, need %d; skipped", line, len(row), minColumns)
			continue
		}
		a, errA := strconv.Atoi(strings.TrimSpace(row[colFaultA]))
		b, errB := strconv.Atoi(strings.TrimSpace(row[colFaultB]))
		if errA != nil || errB != nil {
			monitoring.Logf("[fault] line %d: unparsable fault values %q/%q; skipped", line, row[colFaultA], row[colFaultB])
			continue
		}
		if a < 0 || b < 0 || a+b != 100 {
			monitoring.Logf("[fault] line %d: fault values %d/%d do not sum to 100; skipped", line, a, b)
			continue
		}
		c := Case{
			Code:         strings.TrimSpace(row[colCode]),
			Place:        row[colPlace],
			Feature:      row[colFeature],
			CarAProgress: row[colCarAProgress],
			CarBProgress: row[colCarBProgress],
			FaultA:       a,
			FaultB:       b,
			Title:        row[colTitle],
			Laws:         row[colLaws],
			Precedents:   row[colPrecedents],
		}
		if len(row) > colDamage {
			c.DamageLocation = strings.TrimSpace(row[colDamage])
		}
		if c.Code == "" {
			monitoring.Logf("[fault] line %d: empty accident type code; skipped", line)
			continue
		}
		t.cases = append(t.cases, c)
	}
	return t, nil
}

// Match describes how a code was resolved.
type Match string

const (
	MatchExact   Match = "exact"
	MatchNumeric Match = "numeric"
	MatchPartial Match = "partial"
	MatchNone    Match = "unresolved"
)

// Outcome is the resolver output. FaultA and FaultB are nil when the code
// could not be resolved.
type Outcome struct {
	Code           string `json:"accident_type_code"`
	DamageLocation string `json:"damage_location"`
	FaultA         *int   `json:"fault_ratio_A"`
	FaultB         *int   `json:"fault_ratio_B"`
	Description    string `json:"description"`
	Match          Match  `json:"match"`
	Case           *Case  `json:"case,omitempty"`
}

// Resolved reports whether the table supplied the fault split.
func (o Outcome) Resolved() bool { return o.FaultA != nil && o.FaultB != nil }

// Resolve looks up code, preferring rows whose damage location matches when
// several rows share a code. An unmatched code is not an error.
func (t *Table) Resolve(code, damage string) Outcome {
	code = strings.TrimSpace(code)
	out := Outcome{Code: code, DamageLocation: damage, Match: MatchNone}
	if t == nil || code == "" {
		monitoring.Logf("[fault] no case for accident type %q", code)
		return out
	}

	c, m := t.find(code, damage)
	if c == nil {
		monitoring.Logf("[fault] no case for accident type %q (damage %q); using default split", code, damage)
		return out
	}
	a, b := c.FaultA, c.FaultB
	out.FaultA, out.FaultB = &a, &b
	out.Description = c.Title
	out.Match = m
	cc := *c
	out.Case = &cc
	return out
}

func (t *Table) find(code, damage string) (*Case, Match) {
	num, numErr := strconv.Atoi(code)

	tiers := []struct {
		m     Match
		match func(c *Case) bool
	}{
		{MatchExact, func(c *Case) bool { return c.Code == code }},
		{MatchNumeric, func(c *Case) bool {
			n, err := strconv.Atoi(c.Code)
			return numErr == nil && err == nil && n == num
		}},
		{MatchPartial, func(c *Case) bool { return strings.Contains(c.Code, code) }},
	}
	for _, tier := range tiers {
		var first *Case
		for i := range t.cases {
			c := &t.cases[i]
			if !tier.match(c) {
				continue
			}
			if damage != "" && c.DamageLocation == damage {
				return c, tier.m
			}
			if first == nil {
				first = c
			}
		}
		if first != nil {
			return first, tier.m
		}
	}
	return nil, MatchNone
}

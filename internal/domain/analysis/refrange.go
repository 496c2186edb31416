package analysis

import (
	"context"
	"errors"
)

// ErrNoReference is returned by a directory when no range covers the given
// test and sex. It is never a hard failure: classification proceeds with
// the missing-reference policy.
var ErrNoReference = errors.New("no reference range found")

// ReferenceRangeDirectory resolves the applicable reference range for a
// test name and patient sex. Test names match case-sensitively and exactly.
type ReferenceRangeDirectory interface {
	Lookup(ctx context.Context, testName, sex string) (*ReferenceRange, error)
}

// StaticDirectory is the fixed in-memory table of common tests with a
// single universal range each, used for ad-hoc document classification and
// as the fallback behind the persisted table.
type StaticDirectory struct {
	ranges map[string]ReferenceRange
}

// NewStaticDirectory returns the directory with the built-in test table.
func NewStaticDirectory() *StaticDirectory {
	ranges := map[string]ReferenceRange{
		"Emoglobina": {TestName: "Emoglobina", Sex: SexAny, Min: 12, Max: 16, Unit: "g/dL"},
		"Glicemia":   {TestName: "Glicemia", Sex: SexAny, Min: 70, Max: 99, Unit: "mg/dL"},
		"GOT (AST)":  {TestName: "GOT (AST)", Sex: SexAny, Min: 10, Max: 40, Unit: "U/L"},
		"GPT (ALT)":  {TestName: "GPT (ALT)", Sex: SexAny, Min: 10, Max: 40, Unit: "U/L"},
		"TSH":        {TestName: "TSH", Sex: SexAny, Min: 0.4, Max: 4.5, Unit: "mU/L"},
		"Creatinina": {TestName: "Creatinina", Sex: SexAny, Min: 0.6, Max: 1.2, Unit: "mg/dL"},
	}
	return &StaticDirectory{ranges: ranges}
}

// Lookup ignores sex: static ranges are universal.
func (d *StaticDirectory) Lookup(_ context.Context, testName, _ string) (*ReferenceRange, error) {
	r, ok := d.ranges[testName]
	if !ok {
		return nil, ErrNoReference
	}
	return &r, nil
}

// Ranges returns the static table, for seeding the persisted one.
func (d *StaticDirectory) Ranges() []ReferenceRange {
	out := make([]ReferenceRange, 0, len(d.ranges))
	for _, r := range d.ranges {
		out = append(out, r)
	}
	return out
}

// FallbackDirectory tries each directory in order and returns the first
// hit. Within one directory the recorded sex is tried first, then the
// sex-agnostic entry, so a per-sex range shadows an "any" range for the
// same test but an earlier directory always beats a later one. Lookup
// errors other than ErrNoReference stop the chain.
type FallbackDirectory struct {
	dirs []ReferenceRangeDirectory
}

func NewFallbackDirectory(dirs ...ReferenceRangeDirectory) *FallbackDirectory {
	return &FallbackDirectory{dirs: dirs}
}

func (d *FallbackDirectory) Lookup(ctx context.Context, testName, sex string) (*ReferenceRange, error) {
	for _, dir := range d.dirs {
		r, err := dir.Lookup(ctx, testName, sex)
		if errors.Is(err, ErrNoReference) && sex != SexAny {
			r, err = dir.Lookup(ctx, testName, SexAny)
		}
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, ErrNoReference) {
			return nil, err
		}
	}
	return nil, ErrNoReference
}

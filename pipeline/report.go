package pipeline

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/muddy/obfuscate"
)

// reportEncMode encodes reports canonically so equal runs produce equal
// bytes.
var reportEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("pipeline: failed to create CBOR enc mode: %v", err))
	}
	reportEncMode = em
}

// ClassResult is the outcome for one class file.
type ClassResult struct {
	// Path is the entry name inside an archive or the path relative to
	// the input directory.
	Path       string          `cbor:"1,keyasint"`
	Name       string          `cbor:"2,keyasint,omitempty"` // internal class name
	Err        string          `cbor:"3,keyasint,omitempty"`
	Stats      obfuscate.Stats `cbor:"4,keyasint"`
	InputHash  uint64          `cbor:"5,keyasint"` // xxh3 of the input bytes
	OutputHash uint64          `cbor:"6,keyasint"` // xxh3 of the output bytes
	Eligible   bool            `cbor:"7,keyasint"`
	Verified   bool            `cbor:"8,keyasint,omitempty"`
}

// Changed reports whether the output differs from the input.
func (r *ClassResult) Changed() bool {
	return r.InputHash != r.OutputHash
}

// Totals summarizes a report.
type Totals struct {
	Stats    obfuscate.Stats `cbor:"1,keyasint"`
	Classes  int             `cbor:"2,keyasint"`
	Eligible int             `cbor:"3,keyasint"`
	Changed  int             `cbor:"4,keyasint"`
	Failed   int             `cbor:"5,keyasint"`
	Other    int             `cbor:"6,keyasint"` // non-class entries copied
}

// Report describes one pipeline run.
type Report struct {
	Input    string        `cbor:"1,keyasint"`
	Output   string        `cbor:"2,keyasint"`
	Classes  []ClassResult `cbor:"3,keyasint"`
	Warnings []string      `cbor:"4,keyasint,omitempty"`
	Totals   Totals        `cbor:"5,keyasint"`
}

func (r *Report) add(res ClassResult) {
	r.Classes = append(r.Classes, res)
	r.Totals.Classes++
	r.Totals.Stats.Add(res.Stats)
	if res.Eligible {
		r.Totals.Eligible++
	}
	if res.Changed() {
		r.Totals.Changed++
	}
	if res.Err != "" {
		r.Totals.Failed++
	}
}

func (r *Report) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.Warnings = append(r.Warnings, msg)
	Logger().Warn(msg)
}

// MarshalReport serializes a Report to CBOR bytes.
func MarshalReport(r *Report) ([]byte, error) {
	return reportEncMode.Marshal(r)
}

// UnmarshalReport deserializes a Report from CBOR bytes.
func UnmarshalReport(data []byte) (*Report, error) {
	var r Report
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("pipeline: unmarshal report: %w", err)
	}
	return &r, nil
}

// WriteReport writes r to w as CBOR.
func WriteReport(w io.Writer, r *Report) error {
	data, err := MarshalReport(r)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

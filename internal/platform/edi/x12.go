// Package edi provides a minimal X12-style segment reader shared by the
// claim (837) and remittance (835) ingestion adapters. It parses the
// interchange envelope and exposes segments positionally; transaction-set
// specific interpretation lives with the adapters.
package edi

import (
	"fmt"
	"strings"
)

const (
	defaultSegmentTerm  = "~"
	defaultElementSep   = "*"
	defaultComponentSep = ":"
)

// Interchange represents a parsed X12 interchange.
type Interchange struct {
	SenderID         string // ISA06
	ReceiverID       string // ISA08
	ControlNumber    string // ISA13
	FunctionalGroup  string // GS01 (e.g. "HC" claims, "HP" payment advice)
	TransactionSetID string // ST01 (e.g. "837", "835")
	Segments         []Segment
}

// Segment is a single X12 segment: an ID followed by ordered elements.
type Segment struct {
	ID       string
	Elements []string
}

// Field returns element i (1-based, matching X12 element numbering) or ""
// when the segment is shorter than i. Callers never index-panic.
func (s Segment) Field(i int) string {
	if i < 1 || i > len(s.Elements) {
		return ""
	}
	return strings.TrimSpace(s.Elements[i-1])
}

// Component returns component j (1-based) of element i, splitting on the
// component separator. Out-of-range indices return "".
func (s Segment) Component(i, j int) string {
	f := s.Field(i)
	if f == "" {
		return ""
	}
	parts := strings.Split(f, defaultComponentSep)
	if j < 1 || j > len(parts) {
		return ""
	}
	return strings.TrimSpace(parts[j-1])
}

// Components returns all components of element i.
func (s Segment) Components(i int) []string {
	f := s.Field(i)
	if f == "" {
		return nil
	}
	return strings.Split(f, defaultComponentSep)
}

// Parse parses raw X12 interchange text into an Interchange. Segment
// terminators may be "~", "~\n", or bare newlines; trailing whitespace
// around segments is ignored.
func Parse(raw []byte) (*Interchange, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("edi: interchange is empty")
	}

	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	text = strings.ReplaceAll(text, defaultSegmentTerm+"\n", defaultSegmentTerm)
	text = strings.ReplaceAll(text, "\n", defaultSegmentTerm)

	var lines []string
	for _, line := range strings.Split(text, defaultSegmentTerm) {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("edi: no segments found")
	}
	if !strings.HasPrefix(lines[0], "ISA") {
		n := min(3, len(lines[0]))
		return nil, fmt.Errorf("edi: first segment must be ISA, got %q", lines[0][:n])
	}

	ic := &Interchange{}
	for _, line := range lines {
		seg, err := parseSegment(line)
		if err != nil {
			return nil, fmt.Errorf("edi: %w", err)
		}
		ic.Segments = append(ic.Segments, seg)
	}

	ic.extractEnvelope()
	return ic, nil
}

func parseSegment(line string) (Segment, error) {
	parts := strings.Split(line, defaultElementSep)
	if parts[0] == "" {
		return Segment{}, fmt.Errorf("segment has empty id: %q", line)
	}
	return Segment{ID: parts[0], Elements: parts[1:]}, nil
}

func (ic *Interchange) extractEnvelope() {
	for _, seg := range ic.Segments {
		switch seg.ID {
		case "ISA":
			ic.SenderID = seg.Field(6)
			ic.ReceiverID = seg.Field(8)
			ic.ControlNumber = seg.Field(13)
		case "GS":
			ic.FunctionalGroup = seg.Field(1)
		case "ST":
			if ic.TransactionSetID == "" {
				ic.TransactionSetID = seg.Field(1)
			}
		}
	}
}

// SegmentsByID returns all segments with the given id, in document order.
func (ic *Interchange) SegmentsByID(id string) []Segment {
	var out []Segment
	for _, seg := range ic.Segments {
		if seg.ID == id {
			out = append(out, seg)
		}
	}
	return out
}

// Loops splits the interchange body into per-record loops, each starting at
// a segment with the given anchor id (CLM for 837 claims, CLP for 835
// payments). Envelope segments before the first anchor and the trailing
// SE/GE/IEA trailers are excluded from every loop.
func (ic *Interchange) Loops(anchor string) [][]Segment {
	var loops [][]Segment
	var current []Segment
	for _, seg := range ic.Segments {
		switch {
		case seg.ID == anchor:
			if current != nil {
				loops = append(loops, current)
			}
			current = []Segment{seg}
		case seg.ID == "SE" || seg.ID == "GE" || seg.ID == "IEA":
			if current != nil {
				loops = append(loops, current)
				current = nil
			}
		case current != nil:
			current = append(current, seg)
		}
	}
	if current != nil {
		loops = append(loops, current)
	}
	return loops
}

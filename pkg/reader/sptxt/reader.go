// Package sptxt provides streaming readers for SPTXT (SpectraST) format spectral libraries
package sptxt

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/PepMap/pkg/core"
)

// inlineMod matches a residue (or n/c terminus) followed by its modified mass.
var inlineMod = regexp.MustCompile(`([a-zA-Z]?)\[(\d+(?:\.\d+)?)\]`)

// Reader provides streaming access to the peptides of an SPTXT file
type Reader struct {
	scanner      *bufio.Scanner
	modDB        *core.ModDatabase
	lineNum      int
	currentEntry *core.LibraryEntry
	err          error
}

// NewReader creates a new SPTXT reader
func NewReader(r io.Reader, modDB *core.ModDatabase) *Reader {
	if modDB == nil {
		modDB = core.DefaultModDatabase()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Reader{
		scanner: scanner,
		modDB:   modDB,
	}
}

// Next advances to the next entry. Returns false when no more entries or error.
func (r *Reader) Next() bool {
	r.currentEntry = nil

	entry, err := r.readEntry()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}

	r.currentEntry = entry
	return true
}

// Entry returns the current entry
func (r *Reader) Entry() *core.LibraryEntry {
	return r.currentEntry
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// readEntry reads a single entry from the SPTXT file
func (r *Reader) readEntry() (*core.LibraryEntry, error) {
	entry := &core.LibraryEntry{SourceFormat: "sptxt"}

	var numPeaks int
	inPeaks := false
	peaksRead := 0

	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())

		// Skip comments and empty lines
		if line == "" || strings.HasPrefix(line, "###") {
			continue
		}

		if !inPeaks {
			key, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)

			switch key {
			case "Name":
				if err := parseName(entry, value); err != nil {
					return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
				}
			case "PrecursorMZ":
				if mz, err := strconv.ParseFloat(value, 64); err == nil {
					entry.PrecursorMZ = mz
				}
			case "Comment":
				if err := r.parseComment(entry, value); err != nil {
					return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
				}
			case "NumPeaks":
				n, err := strconv.Atoi(value)
				if err != nil {
					return nil, fmt.Errorf("line %d: invalid num peaks: %w", r.lineNum, err)
				}
				numPeaks = n
				inPeaks = true
				if numPeaks == 0 {
					return entry, nil
				}
			}
		} else {
			// Peaks are only counted
			if fields := strings.Fields(line); len(fields) < 2 {
				return nil, fmt.Errorf("line %d: invalid peak format, expected at least 2 fields", r.lineNum)
			}
			peaksRead++
			entry.NumPeaks = peaksRead

			// Check if we've read all peaks
			if peaksRead >= numPeaks {
				return entry, nil
			}
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	// If we have a partially read entry, return it
	if entry.Sequence != "" {
		return entry, nil
	}

	return nil, io.EOF
}

// parseName extracts sequence, charge, and modifications from Name field
// Format: "n[305]AAAAQDEITGDGTTTVVC[160]LVGELLR/3"
func parseName(entry *core.LibraryEntry, name string) error {
	idx := strings.LastIndex(name, "/")
	if idx < 0 {
		return fmt.Errorf("invalid name format '%s', expected 'SEQUENCE/CHARGE'", name)
	}

	charge, err := strconv.Atoi(name[idx+1:])
	if err != nil {
		return fmt.Errorf("invalid charge in name '%s': %w", name, err)
	}

	sequence, mods, err := parseInlineModifications(name[:idx])
	if err != nil {
		return fmt.Errorf("failed to parse modifications from sequence: %w", err)
	}

	entry.Name = name
	entry.Charge = charge
	entry.Sequence = sequence
	entry.Modifications = mods
	return nil
}

// parseInlineModifications parses a sequence with inline modified masses like
// n[305]SEQUENC[160]E. The masses are nominal totals, so the deltas are only
// approximate until the Mods comment names them.
func parseInlineModifications(rawSeq string) (string, []core.Modification, error) {
	var sequence strings.Builder
	var mods []core.Modification
	var cterm *core.Modification

	lastIdx := 0
	for _, match := range inlineMod.FindAllStringSubmatchIndex(rawSeq, -1) {
		// Add unmodified sequence before this match
		sequence.WriteString(rawSeq[lastIdx:match[0]])

		aa := rawSeq[match[2]:match[3]]
		massStr := rawSeq[match[4]:match[5]]
		mass, err := strconv.ParseFloat(massStr, 64)
		if err != nil {
			return "", nil, fmt.Errorf("invalid modification mass '%s': %w", massStr, err)
		}

		switch aa {
		case "n", "":
			mods = append(mods, core.Modification{Mass: mass - core.MassH, Position: 0, Name: massStr})
		case "c":
			cterm = &core.Modification{Mass: mass - core.MassO - core.MassH, Name: massStr}
		default:
			comp, ok := core.AminoAcidMasses[rune(aa[0])]
			if !ok {
				return "", nil, fmt.Errorf("unknown modified residue '%s'", aa)
			}
			sequence.WriteString(aa)
			mods = append(mods, core.Modification{Mass: mass - comp.Mass(), Position: sequence.Len(), Name: massStr})
		}

		lastIdx = match[1]
	}

	// Add remaining sequence
	sequence.WriteString(rawSeq[lastIdx:])

	seq := sequence.String()
	if cterm != nil {
		cterm.Position = len(seq) + 1
		mods = append(mods, *cterm)
	}
	for i := 0; i < len(seq); i++ {
		if seq[i] < 'A' || seq[i] > 'Z' {
			return "", nil, fmt.Errorf("invalid residue '%c' in '%s'", seq[i], rawSeq)
		}
	}

	return seq, mods, nil
}

// parseComment extracts metadata from Comment field
func (r *Reader) parseComment(entry *core.LibraryEntry, comment string) error {
	for _, field := range strings.Fields(comment) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}

		switch key {
		case "Parent":
			if mz, err := strconv.ParseFloat(value, 64); err == nil && entry.PrecursorMZ == 0 {
				entry.PrecursorMZ = mz
			}

		case "RetentionTime":
			// May be comma-separated list, take first value
			if rt, err := strconv.ParseFloat(strings.Split(value, ",")[0], 64); err == nil {
				entry.RetentionTime = &rt
			}

		case "Mods":
			if err := r.nameMods(entry, value); err != nil {
				return err
			}
		}
	}

	return nil
}

// nameMods replaces the approximate inline modifications with the named
// ones of the Mods field where their sites agree.
func (r *Reader) nameMods(entry *core.LibraryEntry, value string) error {
	if value == "0" {
		return nil
	}
	named, _, err := r.modDB.ParseModsField(value, len(entry.Sequence))
	if err != nil {
		return err
	}

	for _, mod := range named {
		found := false
		for j := range entry.Modifications {
			if entry.Modifications[j].Position == mod.Position {
				entry.Modifications[j] = mod
				found = true
				break
			}
		}
		if !found {
			entry.Modifications = append(entry.Modifications, mod)
		}
	}
	sort.SliceStable(entry.Modifications, func(i, j int) bool {
		return entry.Modifications[i].Position < entry.Modifications[j].Position
	})
	return nil
}

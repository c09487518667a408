// Package msp provides streaming readers for MSP (NIST, Prosit) format spectral libraries
package msp

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/PepMap/pkg/core"
)

// Reader provides streaming access to the peptides of an MSP file
type Reader struct {
	scanner      *bufio.Scanner
	modDB        *core.ModDatabase
	lineNum      int
	currentEntry *core.LibraryEntry
	unknownMods  map[string]int
	err          error
}

// NewReader creates a new MSP reader
func NewReader(r io.Reader, modDB *core.ModDatabase) *Reader {
	if modDB == nil {
		modDB = core.DefaultModDatabase()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Reader{
		scanner:     scanner,
		modDB:       modDB,
		unknownMods: make(map[string]int),
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

// UnknownModifications returns how often each modification name missing from
// the database was seen. Such modifications are left out of the entries.
func (r *Reader) UnknownModifications() map[string]int {
	return r.unknownMods
}

// readEntry reads a single entry from the MSP file
func (r *Reader) readEntry() (*core.LibraryEntry, error) {
	entry := &core.LibraryEntry{SourceFormat: "msp"}

	var numPeaks int
	var modsField, modString string
	inPeaks := false
	peaksRead := 0

	finish := func() (*core.LibraryEntry, error) {
		entry.NumPeaks = peaksRead
		if err := r.resolveMods(entry, modsField, modString); err != nil {
			return nil, fmt.Errorf("entry %s: %w", entry.Name, err)
		}
		return entry, nil
	}

	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())

		// Skip empty lines between entries
		if line == "" {
			if entry.Sequence == "" {
				continue
			}
			if inPeaks {
				return finish()
			}
			continue
		}

		if !inPeaks {
			key, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)

			switch strings.ToLower(key) {
			case "name":
				if err := parseName(entry, value); err != nil {
					return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
				}
			case "mw":
				// Recomputed from the sequence
			case "precursormz":
				if mz, err := strconv.ParseFloat(value, 64); err == nil {
					entry.PrecursorMZ = mz
				}
			case "comment":
				modsField, modString = parseComment(entry, value)
			case "num peaks", "numpeaks":
				n, err := strconv.Atoi(value)
				if err != nil {
					return nil, fmt.Errorf("line %d: invalid num peaks: %w", r.lineNum, err)
				}
				numPeaks = n
				inPeaks = true
				if numPeaks == 0 {
					return finish()
				}
			}
		} else {
			// Peaks are only counted
			if fields := strings.Fields(line); len(fields) < 2 {
				return nil, fmt.Errorf("line %d: invalid peak format, expected at least 2 fields", r.lineNum)
			}
			peaksRead++

			// Check if we've read all peaks
			if peaksRead >= numPeaks {
				return finish()
			}
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	// If we have a partially read entry, return it
	if entry.Sequence != "" {
		return finish()
	}

	return nil, io.EOF
}

// parseName extracts sequence and charge from Name field (format: "SEQUENCE/CHARGE").
// Bracketed or parenthesized modification tags in the sequence are dropped;
// the Comment fields describe them.
func parseName(entry *core.LibraryEntry, name string) error {
	idx := strings.LastIndex(name, "/")
	if idx < 0 {
		return fmt.Errorf("invalid name format '%s', expected 'SEQUENCE/CHARGE'", name)
	}

	// Charge may carry a suffix such as "2_0"
	chargeStr := name[idx+1:]
	if end := strings.IndexAny(chargeStr, "_ "); end >= 0 {
		chargeStr = chargeStr[:end]
	}
	charge, err := strconv.Atoi(chargeStr)
	if err != nil {
		return fmt.Errorf("invalid charge in name '%s': %w", name, err)
	}

	entry.Name = name
	entry.Charge = charge
	entry.Sequence = bareSequence(name[:idx])
	if entry.Sequence == "" {
		return fmt.Errorf("no residues in name '%s'", name)
	}
	return nil
}

// bareSequence keeps the upper case residues outside bracketed tags.
func bareSequence(s string) string {
	var b strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '[' || c == '(':
			depth++
		case c == ']' || c == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0 && c >= 'A' && c <= 'Z':
			b.WriteByte(c)
		}
	}
	return b.String()
}

// parseComment extracts metadata from Comment field and returns the raw
// modification fields.
func parseComment(entry *core.LibraryEntry, comment string) (modsField, modString string) {
	// Comment format: key=value key=value...
	// Example: Parent=414.71 Collision_energy=35 Mods=1/-1,R,TMT_Pro ModString=SEQUENCE//TMT_Pro@R-1/4 iRT=61.01

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

		case "iRT", "RetentionTime":
			if rt, err := strconv.ParseFloat(strings.Split(value, ",")[0], 64); err == nil {
				entry.RetentionTime = &rt
			}

		case "Mods":
			modsField = value

		case "ModString":
			modString = value
		}
	}

	return modsField, modString
}

// resolveMods fills the entry's modifications, preferring ModString over Mods.
func (r *Reader) resolveMods(entry *core.LibraryEntry, modsField, modString string) error {
	if modString != "" {
		mods, err := r.parseModString(entry, modString)
		if err != nil {
			return err
		}
		entry.Modifications = mods
		return nil
	}

	if modsField == "" || modsField == "0" {
		return nil
	}
	mods, unknown, err := r.modDB.ParseModsField(modsField, len(entry.Sequence))
	if err != nil {
		return err
	}
	for _, name := range unknown {
		r.unknownMods[name]++
	}
	entry.Modifications = mods
	return nil
}

// parseModString parses modification information from ModString field
func (r *Reader) parseModString(entry *core.LibraryEntry, modString string) ([]core.Modification, error) {
	// Format: SEQUENCE//Mod@Pos/Charge or SEQUENCE//Mod@Pos
	// Example: EIESAGDITFNR//TMT_Pro@R-1/4

	_, modPart, ok := strings.Cut(modString, "//")
	if !ok {
		return nil, nil
	}
	// Remove trailing charge info if present
	modPart, _, _ = strings.Cut(modPart, "/")

	var mods []core.Modification
	for _, spec := range strings.Split(modPart, ";") {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		name, _, _ := strings.Cut(spec, "@")
		_, known := r.modDB.GetMass(name)
		if _, err := strconv.ParseFloat(name, 64); !known && err != nil {
			r.unknownMods[name]++
			continue
		}

		parsed, err := r.modDB.ParseModString(spec, entry.Sequence)
		if err != nil {
			return nil, fmt.Errorf("invalid ModString '%s': %w", modString, err)
		}
		mods = append(mods, parsed...)
	}
	sort.SliceStable(mods, func(i, j int) bool { return mods[i].Position < mods[j].Position })
	return mods, nil
}

// Package dictionary resolves DICOM tags and UIDs to their standard
// names and value representations. The table is loaded once from an
// embedded tab-separated file, the same shape a dictionary scraped
// from the NEMA standard would produce — this package does not scrape
// the standard itself, only loads a pre-built table of it.
package dictionary

import (
	"bytes"
	"encoding/csv"
	_ "embed"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jpfielding/godcm/pkg/dicom/tag"
	"github.com/jpfielding/godcm/pkg/dicom/vr"
)

//go:embed tagdict.tsv
var tagDictData string

//go:embed uiddict.tsv
var uidDictData string

// TagEntry is a single tag dictionary row.
type TagEntry struct {
	Tag  tag.Tag
	VR   vr.VR
	Name string
	VM   string
}

// UIDEntry is a single UID dictionary row (transfer syntaxes, SOP
// classes, and any other UID the caller wants a human name for).
type UIDEntry struct {
	UID  string
	Name string
	Kind string
}

var (
	once     sync.Once
	tagTable map[tag.Tag]TagEntry
	nameIdx  map[string]TagEntry
	uidTable map[string]UIDEntry
	mu       sync.RWMutex
)

// load parses the embedded tables into tagTable/nameIdx/uidTable. It
// runs once, lazily, so RegisterTag calls made before the first lookup
// are not clobbered by init-time loading order.
func load() {
	once.Do(func() {
		tagTable = make(map[tag.Tag]TagEntry)
		nameIdx = make(map[string]TagEntry)
		uidTable = make(map[string]UIDEntry)

		r := csv.NewReader(bytes.NewReader([]byte(tagDictData)))
		r.Comma = '\t'
		r.Comment = '#'
		r.FieldsPerRecord = -1
		for {
			row, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil || len(row) < 3 {
				continue
			}
			t, ok := tag.Parse(row[0])
			if !ok {
				continue
			}
			vm := ""
			if len(row) > 3 {
				vm = row[3]
			}
			entry := TagEntry{Tag: t, VR: vr.VR(strings.ToUpper(row[1])), Name: row[2], VM: vm}
			tagTable[t] = entry
			nameIdx[entry.Name] = entry
		}

		ur := csv.NewReader(bytes.NewReader([]byte(uidDictData)))
		ur.Comma = '\t'
		ur.Comment = '#'
		ur.FieldsPerRecord = -1
		for {
			row, err := ur.Read()
			if err == io.EOF {
				break
			}
			if err != nil || len(row) < 2 {
				continue
			}
			kind := ""
			if len(row) > 2 {
				kind = row[2]
			}
			uidTable[row[0]] = UIDEntry{UID: row[0], Name: row[1], Kind: kind}
		}
	})
}

// RegisterTag adds or overrides a tag dictionary entry, for private
// tags a caller knows the meaning of. Safe for concurrent use.
func RegisterTag(entry TagEntry) {
	load()
	mu.Lock()
	defer mu.Unlock()
	tagTable[entry.Tag] = entry
	nameIdx[entry.Name] = entry
}

// groupLengthFallback is returned for any (group,0000) tag not already
// in the table: a group-length element is always UL, VM 1, and its
// name only needs to convey that it tracks a group.
func groupLengthFallback(t tag.Tag) TagEntry {
	return TagEntry{Tag: t, VR: vr.UL, Name: fmt.Sprintf("GenericGroupLength(%04X)", t.Group), VM: "1"}
}

// canonicalize maps a repeating-group tag to the table's canonical
// entry. Curve Data (50xx,eeee) and Overlay Plane (60xx,eeee) repeat
// their element definitions across every even group in their byte
// range; Source Image IDs (0020,31xx) repeats across every low byte of
// its element. The table only carries one entry per family, keyed at
// the canonical group/element shown in the standard's "xx" notation.
func canonicalize(t tag.Tag) (tag.Tag, bool) {
	switch {
	case t.Group&0xFF00 == 0x5000:
		return tag.Tag{Group: 0x5000, Element: t.Element}, true
	case t.Group&0xFF00 == 0x6000:
		return tag.Tag{Group: 0x6000, Element: t.Element}, true
	case t.Group == 0x0020 && t.Element&0xFF00 == 0x3100:
		return tag.Tag{Group: 0x0020, Element: 0x3100}, true
	}
	return tag.Tag{}, false
}

// LookupTag resolves a tag to its dictionary entry. Tags not in the
// table fall back by family: group-length elements resolve
// structurally (see groupLengthFallback), repeating-group elements
// resolve through their canonical entry (see canonicalize), and
// everything else resolves to an UN/"Unknown" entry so callers always
// get *something* to work with, per the dictionary's no-hard-failure
// contract.
func LookupTag(t tag.Tag) (TagEntry, bool) {
	load()
	mu.RLock()
	entry, ok := tagTable[t]
	mu.RUnlock()
	if ok {
		return entry, true
	}
	if t.IsGroupLength() {
		return groupLengthFallback(t), true
	}
	if canon, ok := canonicalize(t); ok {
		mu.RLock()
		entry, ok := tagTable[canon]
		mu.RUnlock()
		if ok {
			entry.Tag = t
			return entry, true
		}
	}
	return TagEntry{Tag: t, VR: vr.UN, Name: "Unknown"}, false
}

// LookupName resolves a tag by its dictionary name.
func LookupName(name string) (TagEntry, bool) {
	load()
	mu.RLock()
	defer mu.RUnlock()
	entry, ok := nameIdx[name]
	return entry, ok
}

// LookupUID resolves a UID (transfer syntax, SOP class, or otherwise)
// to its dictionary name.
func LookupUID(uid string) (UIDEntry, bool) {
	load()
	mu.RLock()
	defer mu.RUnlock()
	entry, ok := uidTable[uid]
	return entry, ok
}

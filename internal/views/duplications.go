package views

import (
	"encoding/xml"
	"errors"
	"sort"
	"strings"
)

// DuplicationRecords maps a resource key to the set of clone class ids
// seen in it. Entries are handed out once by Drain.
type DuplicationRecords struct {
	entries map[string]map[string]struct{}
}

// NewDuplicationRecords creates an empty record set.
func NewDuplicationRecords() *DuplicationRecords {
	return &DuplicationRecords{entries: make(map[string]map[string]struct{})}
}

// Add records that resourceKey takes part in clone class classID.
func (d *DuplicationRecords) Add(resourceKey, classID string) {
	set, ok := d.entries[resourceKey]
	if !ok {
		set = make(map[string]struct{})
		d.entries[resourceKey] = set
	}
	set[classID] = struct{}{}
}

// Lookup returns the sorted class ids recorded for resourceKey, or nil.
func (d *DuplicationRecords) Lookup(resourceKey string) []string {
	set, ok := d.entries[resourceKey]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of resources with pending records.
func (d *DuplicationRecords) Len() int {
	return len(d.entries)
}

// Keys returns the resource keys with pending records, sorted.
func (d *DuplicationRecords) Keys() []string {
	keys := make([]string, 0, len(d.entries))
	for k := range d.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Drain hands every entry to emit in key order and removes it right after
// the call, whether or not emit failed, so no entry is emitted twice.
// Errors from emit are joined and returned after all entries are drained.
func (d *DuplicationRecords) Drain(emit func(resourceKey string, classIDs []string) error) error {
	var errs []error
	for _, key := range d.Keys() {
		ids := d.Lookup(key)
		err := emit(key, ids)
		delete(d.entries, key)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EncodeDuplications renders class ids as the duplications data measure:
//
//	<duplications><g id="C1"/><g id="C2"/></duplications>
func EncodeDuplications(classIDs []string) string {
	var b strings.Builder
	b.WriteString("<duplications>")
	for _, id := range classIDs {
		b.WriteString(`<g id="`)
		// strings.Builder never fails.
		_ = xml.EscapeText(&b, []byte(id))
		b.WriteString(`"/>`)
	}
	b.WriteString("</duplications>")
	return b.String()
}

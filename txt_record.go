package zeroconf

import (
	"bytes"
	"fmt"
	"iter"
	"strings"

	"golang.org/x/exp/slices"
)

// MaxTxtEntryLength is the maximum length of a single key=value entry.
const MaxTxtEntryLength = 255

type txtEntry struct {
	key   string
	value []byte
}

// TxtRecord is the key/value payload attached to a service instance. Keys
// are case-insensitive, the insertion order is kept for encoding.
//
// The zero value is an empty record ready to use.
type TxtRecord struct {
	entries []txtEntry
}

func NewTxtRecord() *TxtRecord {
	return &TxtRecord{}
}

// NewTxtRecordFromMap builds a record out of m, failing on the first invalid entry.
func NewTxtRecordFromMap(m map[string]string) (*TxtRecord, error) {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	r := NewTxtRecord()
	for _, key := range keys {
		if err := r.InsertString(key, m[key]); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func checkTxtEntry(key string, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: empty key", ErrInvalidTxtRecordEntry)
	} else if len(key)+1+len(value) > MaxTxtEntryLength {
		return fmt.Errorf("%w: entry for %q is %d bytes long, max is %d", ErrInvalidTxtRecordEntry, key, len(key)+1+len(value), MaxTxtEntryLength)
	}

	for i := 0; i < len(key); i++ {
		if c := key[i]; c < 0x20 || c > 0x7e || c == '=' {
			return fmt.Errorf("%w: invalid character %q in key %q", ErrInvalidTxtRecordEntry, c, key)
		}
	}

	return nil
}

// equalKeys compares keys case-insensitively in ASCII only, as DNS-SD does.
func equalKeys(a, b string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := 0; i < len(a); i++ {
		if toLowerASCII(a[i]) != toLowerASCII(b[i]) {
			return false
		}
	}

	return true
}

func toLowerASCII(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func (r *TxtRecord) index(key string) int {
	return slices.IndexFunc(r.entries, func(e txtEntry) bool { return equalKeys(e.key, key) })
}

// Insert sets the value for key, replacing any existing entry with the same
// key. On error the record is left unchanged.
func (r *TxtRecord) Insert(key string, value []byte) error {
	if err := checkTxtEntry(key, value); err != nil {
		return err
	}

	entry := txtEntry{key: key, value: bytes.Clone(value)}
	if entry.value == nil {
		entry.value = []byte{}
	}

	if idx := r.index(key); idx >= 0 {
		r.entries[idx] = entry
	} else {
		r.entries = append(r.entries, entry)
	}

	return nil
}

func (r *TxtRecord) InsertString(key, value string) error {
	return r.Insert(key, []byte(value))
}

// Get returns a copy of the value for key.
func (r *TxtRecord) Get(key string) ([]byte, bool) {
	if r == nil {
		return nil, false
	}

	idx := r.index(key)
	if idx < 0 {
		return nil, false
	}

	return bytes.Clone(r.entries[idx].value), true
}

func (r *TxtRecord) GetString(key string) (string, bool) {
	val, ok := r.Get(key)
	return string(val), ok
}

// Remove deletes key and returns the value it had. Removing a missing key is
// a no-op.
func (r *TxtRecord) Remove(key string) ([]byte, bool) {
	if r == nil {
		return nil, false
	}

	idx := r.index(key)
	if idx < 0 {
		return nil, false
	}

	val := r.entries[idx].value
	r.entries = slices.Delete(r.entries, idx, idx+1)
	return val, true
}

func (r *TxtRecord) ContainsKey(key string) bool {
	return r != nil && r.index(key) >= 0
}

func (r *TxtRecord) Len() int {
	if r == nil {
		return 0
	}

	return len(r.entries)
}

func (r *TxtRecord) IsEmpty() bool {
	return r.Len() == 0
}

// All iterates over the entries in insertion order. The sequence can be
// ranged over multiple times.
func (r *TxtRecord) All() iter.Seq2[string, []byte] {
	return func(yield func(string, []byte) bool) {
		if r == nil {
			return
		}

		for _, e := range r.entries {
			if !yield(e.key, e.value) {
				return
			}
		}
	}
}

func (r *TxtRecord) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		for key := range r.All() {
			if !yield(key) {
				return
			}
		}
	}
}

func (r *TxtRecord) ToMap() map[string]string {
	m := make(map[string]string, r.Len())
	for key, val := range r.All() {
		m[key] = string(val)
	}
	return m
}

func (r *TxtRecord) Clone() *TxtRecord {
	if r == nil {
		return nil
	}

	c := &TxtRecord{entries: make([]txtEntry, len(r.entries))}
	for i, e := range r.entries {
		c.entries[i] = txtEntry{key: e.key, value: bytes.Clone(e.value)}
	}
	return c
}

// Equal compares the records ignoring order and key case.
func (r *TxtRecord) Equal(other *TxtRecord) bool {
	if r.Len() != other.Len() {
		return false
	}

	for key, val := range r.All() {
		otherVal, ok := other.Get(key)
		if !ok || !bytes.Equal(val, otherVal) {
			return false
		}
	}

	return true
}

func (r *TxtRecord) String() string {
	return strings.Join(r.encodeStrings(), " ")
}

// encodeStrings encodes the record as key=value strings.
func (r *TxtRecord) encodeStrings() []string {
	out := make([]string, 0, r.Len())
	for key, val := range r.All() {
		out = append(out, key+"="+string(val))
	}
	return out
}

// encodeBytes encodes the record as the list of raw entries.
func (r *TxtRecord) encodeBytes() [][]byte {
	out := make([][]byte, 0, r.Len())
	for key, val := range r.All() {
		entry := make([]byte, 0, len(key)+1+len(val))
		entry = append(entry, key...)
		entry = append(entry, '=')
		entry = append(entry, val...)
		out = append(out, entry)
	}
	return out
}

// parseTxtEntries decodes raw entries received from a daemon. Malformed
// entries are skipped, the first occurrence of a key wins. Entries without
// a value (boolean attributes) map to an empty value.
func parseTxtEntries(entries [][]byte) *TxtRecord {
	r := NewTxtRecord()
	for _, entry := range entries {
		key, val, _ := bytes.Cut(entry, []byte{'='})
		if r.ContainsKey(string(key)) {
			continue
		}

		_ = r.Insert(string(key), val)
	}
	return r
}

func parseTxtStrings(entries []string) *TxtRecord {
	raw := make([][]byte, len(entries))
	for i, entry := range entries {
		raw[i] = []byte(entry)
	}
	return parseTxtEntries(raw)
}

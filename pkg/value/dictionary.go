package value

import "reflect"

type DictionaryEntry struct {
	Key   any
	Value any
}

// Dictionary maps arbitrary keys to values. Composite keys are compared by
// identity, primitive keys by value. Iteration follows insertion order.
type Dictionary struct {
	// WeakKeys is carried on the wire only.
	WeakKeys bool
	entries  []DictionaryEntry
}

func NewDictionary() *Dictionary {
	return &Dictionary{}
}

func sameKey(a, b any) bool {
	aid, aok := Identity(a)
	bid, bok := Identity(b)
	if aok || bok {
		return aok && bok && aid == bid
	}

	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) {
		return false
	}
	if ta == nil {
		return true
	}
	if !ta.Comparable() {
		return false
	}
	return a == b
}

func (d *Dictionary) index(key any) int {
	for i := range d.entries {
		if sameKey(d.entries[i].Key, key) {
			return i
		}
	}
	return -1
}

func (d *Dictionary) Set(key, value any) {
	if i := d.index(key); i >= 0 {
		d.entries[i].Value = value
		return
	}
	d.entries = append(d.entries, DictionaryEntry{Key: key, Value: value})
}

func (d *Dictionary) Get(key any) (any, bool) {
	if i := d.index(key); i >= 0 {
		return d.entries[i].Value, true
	}
	return nil, false
}

func (d *Dictionary) Has(key any) bool {
	return d.index(key) >= 0
}

func (d *Dictionary) Delete(key any) {
	if i := d.index(key); i >= 0 {
		d.entries = append(d.entries[:i], d.entries[i+1:]...)
	}
}

func (d *Dictionary) Len() int {
	return len(d.entries)
}

// Entries returns the pairs in insertion order.
func (d *Dictionary) Entries() []DictionaryEntry {
	return append([]DictionaryEntry(nil), d.entries...)
}

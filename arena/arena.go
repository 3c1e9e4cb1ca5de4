// Package arena provides the owned-string storage used by the query
// package's DynamicResultSet.
package arena

// Arena owns the backing storage for every string the query package's
// mapRows decodes into one DynamicResultSet. Go is garbage collected, so
// Arena is not a bump allocator over raw memory the way a C-style arena
// would be — instead it is a single slice of owned strings that every
// OwnedString in one result set shares a Release point with. Release frees
// nothing itself: the strings become collectible once nothing references
// the arena or its OwnedStrings any more.
type Arena struct {
	strings []string
	closed  bool
}

// NewArena returns an empty Arena ready to own strings.
func NewArena() *Arena {
	return &Arena{}
}

// Intern records s as owned by the arena and returns an OwnedString
// referencing it.
func (a *Arena) Intern(s string) OwnedString {
	if a.closed {
		panic("arena: Intern called on a released arena")
	}
	a.strings = append(a.strings, s)
	return OwnedString{arena: a, index: len(a.strings) - 1}
}

// Release marks the arena closed. Every OwnedString that referenced it
// keeps working — Go's GC, not the arena, owns the backing memory — but
// further interning is rejected, matching the one-shot "read, then
// release" usage pattern the rest of the engine follows for a List.
func (a *Arena) Release() {
	a.closed = true
}

// OwnedString is a string value whose storage is attributed to one Arena.
// Its zero value is the empty string, not "detached" — the common case of
// comparing or printing an OwnedString never needs to consult its arena.
type OwnedString struct {
	arena *Arena
	index int
}

// String returns the underlying string value.
func (o OwnedString) String() string {
	if o.arena == nil {
		return ""
	}
	return o.arena.strings[o.index]
}

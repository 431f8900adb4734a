package profile

import "strings"

// Bluno is the DFRobot Bluno family: one serial characteristic used for writes.
var Bluno = Profile{
	Family:        "Bluno",
	ServiceUUID:   "0000dfb0-0000-1000-8000-00805f9b34fb",
	WriteCharUUID: "0000dfb1-0000-1000-8000-00805f9b34fb",
}

// Bean is the LightBlue Bean family. Its scratch service carries five
// characteristics; the first is written to and the second is subscribed to.
var Bean = Profile{
	Family:        "Bean",
	ServiceUUID:   "a495ff20-c5b1-4b44-b512-1370f02d74de",
	WriteCharUUID: "a495ff21-c5b1-4b44-b512-1370f02d74de",
	ReadCharUUID:  "a495ff22-c5b1-4b44-b512-1370f02d74de",
	OtherChars: []string{
		"a495ff23-c5b1-4b44-b512-1370f02d74de",
		"a495ff24-c5b1-4b44-b512-1370f02d74de",
		"a495ff25-c5b1-4b44-b512-1370f02d74de",
	},
}

// Entry pairs a name substring with the profile it selects.
type Entry struct {
	Match   string
	Profile Profile
}

// Registry resolves advertised names to profiles. Entries are checked in
// order and the first whose Match is a case-insensitive substring of the name
// wins. A Registry is not safe for concurrent mutation; populate it before
// handing it to a Manager.
type Registry struct {
	entries []Entry
}

// NewRegistry creates a registry holding the given entries in order.
func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{}
	for _, e := range entries {
		r.Add(e.Match, e.Profile)
	}
	return r
}

// DefaultRegistry returns a registry with the built-in families.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Entry{Match: "BLUNO", Profile: Bluno},
		Entry{Match: "BEAN", Profile: Bean},
	)
}

// Add appends an entry. Empty matches are ignored since they would claim
// every device.
func (r *Registry) Add(match string, p Profile) {
	if strings.TrimSpace(match) == "" {
		return
	}
	r.entries = append(r.entries, Entry{Match: strings.ToUpper(match), Profile: p})
}

// Resolve returns the profile for an advertised name. ok is false when no
// entry matches, which callers treat as an unrecognized device.
func (r *Registry) Resolve(name string) (p Profile, ok bool) {
	upper := strings.ToUpper(name)
	for _, e := range r.entries {
		if strings.Contains(upper, e.Match) {
			return e.Profile, true
		}
	}
	return Profile{}, false
}

// Entries returns a copy of the registry's entries in match order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

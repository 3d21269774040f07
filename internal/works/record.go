package works

import (
	"encoding/json"
	"strings"
)

// AssetRoutePrefix is the public route under which stored assets are served.
const AssetRoutePrefix = "/assets/"

// Record is one persisted submission.
//
// Records decoded from disk keep the exact bytes they were read from so a
// rewrite of the collection reproduces entries this version cannot interpret.
type Record struct {
	ID                string `json:"id"`
	Author            string `json:"author"`
	CurrentHabits     string `json:"currentHabits"`
	Reflection        string `json:"reflection"`
	ScorecardFilename string `json:"scorecardFilename"`
	ComicFilename     string `json:"comicFilename"`

	raw     json.RawMessage
	invalid []string
}

// record is the wire shape; raw fields distinguish absent keys from
// present-but-wrong-type ones.
type record struct {
	ID                json.RawMessage `json:"id"`
	Author            json.RawMessage `json:"author"`
	CurrentHabits     json.RawMessage `json:"currentHabits"`
	Reflection        json.RawMessage `json:"reflection"`
	ScorecardFilename json.RawMessage `json:"scorecardFilename"`
	ComicFilename     json.RawMessage `json:"comicFilename"`
}

// DecodeRecord decodes one stored entry. It never fails: entries that are not
// objects, or whose fields are missing or not strings, come back with those
// fields recorded as invalid.
func DecodeRecord(data json.RawMessage) Record {
	rec := Record{raw: append(json.RawMessage(nil), data...)}

	var wire record
	if err := json.Unmarshal(data, &wire); err != nil {
		rec.invalid = []string{"record"}
		return rec
	}

	fields := []struct {
		name string
		raw  json.RawMessage
		dst  *string
	}{
		{"id", wire.ID, &rec.ID},
		{"author", wire.Author, &rec.Author},
		{"currentHabits", wire.CurrentHabits, &rec.CurrentHabits},
		{"reflection", wire.Reflection, &rec.Reflection},
		{"scorecardFilename", wire.ScorecardFilename, &rec.ScorecardFilename},
		{"comicFilename", wire.ComicFilename, &rec.ComicFilename},
	}
	for _, f := range fields {
		if len(f.raw) == 0 {
			rec.invalid = append(rec.invalid, f.name)
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			rec.invalid = append(rec.invalid, f.name)
		}
	}
	return rec
}

// MarshalJSON reproduces decoded entries verbatim.
func (r Record) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	type plain Record
	return json.Marshal(plain(r))
}

// Validate returns the names of fields that make the record unusable. An
// empty result means the record is well formed.
func (r Record) Validate() []string {
	failed := append([]string(nil), r.invalid...)
	seen := make(map[string]bool, len(failed))
	for _, name := range failed {
		seen[name] = true
	}
	if seen["record"] {
		return failed
	}

	check := func(name, value string) {
		if !seen[name] && strings.TrimSpace(value) == "" {
			failed = append(failed, name)
		}
	}
	check("id", r.ID)
	check("author", r.Author)
	check("currentHabits", r.CurrentHabits)
	check("reflection", r.Reflection)
	check("scorecardFilename", r.ScorecardFilename)
	check("comicFilename", r.ComicFilename)
	return failed
}

// PublicWork is the read-facing projection of a Record.
type PublicWork struct {
	ID            string `json:"id"`
	Author        string `json:"author"`
	CurrentHabits string `json:"currentHabits"`
	Reflection    string `json:"reflection"`
	ScorecardURL  string `json:"scorecardUrl"`
	ComicURL      string `json:"comicUrl"`

	// Same URLs under the keys the bundled gallery page reads.
	ScorecardImageURL string `json:"scorecardImageUrl"`
	ComicImageURL     string `json:"comicImageUrl"`
}

// Public projects r with asset URLs under AssetRoutePrefix.
func (r Record) Public() PublicWork {
	return PublicWork{
		ID:            r.ID,
		Author:        r.Author,
		CurrentHabits: r.CurrentHabits,
		Reflection:    r.Reflection,
		ScorecardURL:  AssetURL(r.ScorecardFilename),
		ComicURL:      AssetURL(r.ComicFilename),

		ScorecardImageURL: AssetURL(r.ScorecardFilename),
		ComicImageURL:     AssetURL(r.ComicFilename),
	}
}

// AssetURL returns the public URL for a stored asset filename.
func AssetURL(filename string) string {
	return AssetRoutePrefix + filename
}

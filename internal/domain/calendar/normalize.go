package calendar

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// DefaultTitle is used for events without a title.
const DefaultTitle = "Sans titre"

const maxDepth = 4

var (
	envelopeKeys = []string{"data", "events", "items", "result"}
	idKeys       = []string{"id", "event_id", "uid", "iCalUID"}
	titleKeys    = []string{"title", "summary", "name"}
	startKeys    = []string{"start", "start_date", "startDate"}
	endKeys      = []string{"end", "end_date", "endDate"}
)

// paris is the zone of date-times given without offset.
var paris = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		return time.UTC
	}
	return loc
}()

type fields map[string]jx.Raw

// Normalize extracts events from a calendar webhook payload. It accepts a
// top-level array, an object wrapping the list under data, events, items
// or result, n8n items of the form {"json": {...}}, or a single event.
// Events without a parseable start are skipped.
func Normalize(payload []byte, source string) ([]Event, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return []Event{}, nil
	}

	var objs []fields
	if err := collect(jx.DecodeBytes(payload), 0, &objs); err != nil {
		return nil, errors.Wrap(err, "decode calendar payload")
	}

	events := make([]Event, 0, len(objs))
	for _, f := range objs {
		e, ok := toEvent(f)
		if !ok {
			continue
		}
		e.Source = source
		events = append(events, e)
	}
	return events, nil
}

func collect(d *jx.Decoder, depth int, out *[]fields) error {
	if depth > maxDepth {
		return d.Skip()
	}
	switch d.Next() {
	case jx.Array:
		return d.Arr(func(d *jx.Decoder) error {
			return collect(d, depth+1, out)
		})
	case jx.Object:
		f, err := readFields(d)
		if err != nil {
			return err
		}
		if inner, ok := f["json"]; ok && inner.Type() == jx.Object {
			return collect(jx.DecodeBytes(inner), depth+1, out)
		}
		if !f.looksLikeEvent() {
			for _, k := range envelopeKeys {
				if inner, ok := f[k]; ok && (inner.Type() == jx.Array || inner.Type() == jx.Object) {
					return collect(jx.DecodeBytes(inner), depth+1, out)
				}
			}
		}
		*out = append(*out, f)
		return nil
	default:
		return d.Skip()
	}
}

func readFields(d *jx.Decoder) (fields, error) {
	f := fields{}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		// Raw aliases the decoder buffer.
		f[key] = append(jx.Raw(nil), raw...)
		return nil
	})
	return f, err
}

func (f fields) looksLikeEvent() bool {
	for _, keys := range [][]string{titleKeys, startKeys} {
		for _, k := range keys {
			if _, ok := f[k]; ok {
				return true
			}
		}
	}
	return false
}

// str returns the first non-empty string or number among keys.
func (f fields) str(keys ...string) string {
	for _, k := range keys {
		raw, ok := f[k]
		if !ok {
			continue
		}
		var s string
		switch raw.Type() {
		case jx.String:
			v, err := jx.DecodeBytes(raw).Str()
			if err != nil {
				continue
			}
			s = v
		case jx.Number:
			n, err := jx.DecodeBytes(raw).Num()
			if err != nil {
				continue
			}
			s = n.String()
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// when reads a time given as a string or as {"dateTime": ...} / {"date": ...}.
func (f fields) when(keys ...string) (t time.Time, allDay, ok bool) {
	for _, k := range keys {
		raw, found := f[k]
		if !found {
			continue
		}
		switch raw.Type() {
		case jx.String:
			s, err := jx.DecodeBytes(raw).Str()
			if err != nil {
				continue
			}
			if t, allDay, ok = parseTime(s); ok {
				return t, allDay, true
			}
		case jx.Object:
			inner, err := readFields(jx.DecodeBytes(raw))
			if err != nil {
				continue
			}
			if s := inner.str("dateTime"); s != "" {
				if t, _, ok = parseTime(s); ok {
					return t, false, true
				}
			}
			if s := inner.str("date"); s != "" {
				if t, allDay, ok = parseTime(s); ok {
					return t, allDay, true
				}
			}
		}
	}
	return time.Time{}, false, false
}

func parseTime(s string) (time.Time, bool, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, true
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, s, paris); err == nil {
			return t, false, true
		}
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, paris); err == nil {
		return t, true, true
	}
	return time.Time{}, false, false
}

func toEvent(f fields) (Event, bool) {
	start, allDay, ok := f.when(startKeys...)
	if !ok {
		return Event{}, false
	}

	e := Event{
		ExternalID:  f.str(idKeys...),
		Title:       f.str(titleKeys...),
		Description: f.str("description"),
		Location:    f.str("location"),
		Start:       start,
		AllDay:      allDay,
	}
	if e.Title == "" {
		e.Title = DefaultTitle
	}
	if end, _, ok := f.when(endKeys...); ok {
		e.End = &end
	}
	if e.ExternalID == "" {
		e.ExternalID = derivedID(e.Title, e.Start)
	}
	return e, true
}

func derivedID(title string, start time.Time) string {
	sum := sha1.Sum([]byte(title + "|" + start.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:])
}

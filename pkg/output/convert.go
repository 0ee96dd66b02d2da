package output

import (
	"time"

	"github.com/3leaps/twinpane/pkg/listing"
	"github.com/3leaps/twinpane/pkg/store"
)

// EntryRecords converts a listing into rows, folders first.
func EntryRecords(l *listing.Listing) []EntryRecord {
	entries := l.Entries()
	out := make([]EntryRecord, 0, len(entries))
	for _, e := range entries {
		rec := EntryRecord{Prefix: l.Prefix, Name: e.Name, Kind: e.Kind.String()}
		if !e.IsDir() {
			rec.Key = e.Key
			rec.Size = e.Size
			rec.LastModified = timePtr(e.LastModified)
		}
		out = append(out, rec)
	}
	return out
}

// NewStatRecord converts a typed existence result.
func NewStatRecord(e store.Existence) *StatRecord {
	rec := &StatRecord{Key: e.Key, State: e.State.String()}
	if e.Meta != nil {
		rec.Size = e.Meta.Size
		rec.ETag = e.Meta.ETag
		rec.ContentType = e.Meta.ContentType
		rec.LastModified = timePtr(e.Meta.LastModified)
	}
	if e.Err != nil {
		rec.Error = e.Err.Error()
	}
	return rec
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

package feed

import (
	"sort"

	"github.com/ad-tracker/viral-video-detector/internal/extract"
)

// recordListPaths are the places a record list has been found in feed
// payloads, in the order they are tried.
var recordListPaths = []extract.Path{
	extract.P("data"),
	extract.P("json", "itemList"),
	extract.P("itemList"),
	extract.P("items"),
	extract.P("aweme_list"),
	extract.P("videos"),
	extract.P("data", "itemList"),
	extract.P("data", "items"),
	extract.P("data", "videos"),
}

// ExtractRecords locates the list of video records in a decoded payload. The
// first candidate list holding at least one object wins. Non-object elements
// are dropped. An unrecognized shape yields an empty slice.
func ExtractRecords(payload any) []extract.Record {
	switch p := payload.(type) {
	case []any:
		return toRecords(p)
	case map[string]any:
		rec := extract.Record(p)
		for _, path := range recordListPaths {
			v, ok := rec.Lookup(path)
			if !ok {
				continue
			}
			list, ok := v.([]any)
			if !ok {
				continue
			}
			if records := toRecords(list); len(records) > 0 {
				return records
			}
		}
	}
	return []extract.Record{}
}

// TopLevelKeys lists the keys of an object payload, sorted, for diagnosing
// unrecognized shapes.
func TopLevelKeys(payload any) []string {
	m, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	keys := extract.Record(m).Keys()
	sort.Strings(keys)
	return keys
}

func toRecords(list []any) []extract.Record {
	out := make([]extract.Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, extract.Record(m))
		}
	}
	return out
}

package feed

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodePayload(t *testing.T, raw string) any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	require.NoError(t, dec.Decode(&v))
	return v
}

func TestExtractRecords(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantIDs []string
	}{
		{"data list", `{"data":[{"id":"1"},{"id":"2"}]}`, []string{"1", "2"}},
		{"nested json item list", `{"json":{"itemList":[{"id":"3"}]}}`, []string{"3"}},
		{"item list", `{"status":"success","itemList":[{"id":"4"}]}`, []string{"4"}},
		{"items", `{"items":[{"id":"5"}]}`, []string{"5"}},
		{"aweme list", `{"aweme_list":[{"aweme_id":"6"}]}`, []string{""}},
		{"data object with item list", `{"data":{"itemList":[{"id":"7"}]}}`, []string{"7"}},
		{"bare list", `[{"id":"8"},{"id":"9"}]`, []string{"8", "9"}},
		{"data wins over item list", `{"data":[{"id":"a"}],"itemList":[{"id":"b"}]}`, []string{"a"}},
		{"empty data falls through", `{"data":[],"itemList":[{"id":"c"}]}`, []string{"c"}},
		{"non object elements dropped", `{"items":[1,"x",{"id":"d"},null]}`, []string{"d"}},
		{"unknown shape", `{"cursor":1,"hasMore":false}`, nil},
		{"scalar", `"nope"`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := ExtractRecords(decodePayload(t, tt.payload))
			require.NotNil(t, records)
			require.Len(t, records, len(tt.wantIDs))
			for i, want := range tt.wantIDs {
				got, _ := records[i]["id"].(string)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestExtractRecords_NilPayload(t *testing.T) {
	assert.Empty(t, ExtractRecords(nil))
}

func TestTopLevelKeys(t *testing.T) {
	assert.Equal(t, []string{"cursor", "hasMore", "status"},
		TopLevelKeys(decodePayload(t, `{"status":"ok","hasMore":false,"cursor":1}`)))
	assert.Nil(t, TopLevelKeys(decodePayload(t, `[1,2]`)))
}

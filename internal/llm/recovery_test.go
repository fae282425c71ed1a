package llm

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want any
	}{
		{name: "already_valid_object", in: `{"a":1,"b":[true,null]}`, want: map[string]any{"a": float64(1), "b": []any{true, nil}}},
		{name: "already_valid_array", in: ` [1, 2] `, want: []any{float64(1), float64(2)}},
		{name: "fenced_trailing_comma", in: "```json\n{\"a\":1,}\n```", want: map[string]any{"a": float64(1)}},
		{name: "uppercase_fence", in: "```JSON\n{\"ok\":true}\n```", want: map[string]any{"ok": true}},
		{name: "prose_around_object", in: "Here is the digest:\n{\"summary\":\"ok\"}\nLet me know!", want: map[string]any{"summary": "ok"}},
		{name: "brace_inside_string", in: `note {"x":{"y":"}"}} tail {"z":1}`, want: map[string]any{"x": map[string]any{"y": "}"}}},
		{name: "single_quoted", in: `{'title': 'Solar', 'tags': ['a','b'],}`, want: map[string]any{"title": "Solar", "tags": []any{"a", "b"}}},
		{name: "nested_trailing_commas", in: "{\"items\":[{\"h\":\"a\",},],}", want: map[string]any{"items": []any{map[string]any{"h": "a"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseJSON(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseJSONMalformedKeepsRaw(t *testing.T) {
	for _, raw := range []string{"I could not find any news today.", `"just a string"`, "42", "", "{ broken: [ }"} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseJSON(raw)
			require.Error(t, err)
			var malformed *MalformedOutputError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, raw, malformed.Raw)
			assert.Equal(t, raw, RawOutput(err))
		})
	}
}

func TestParseJSONObjectRejectsArrays(t *testing.T) {
	_, err := ParseJSONObject(`[{"a":1}]`)
	var malformed *MalformedOutputError
	require.True(t, errors.As(err, &malformed))

	obj, err := ParseJSONObject("```{\"a\":1}```")
	require.NoError(t, err)
	assert.Equal(t, float64(1), obj["a"])
}

func TestExtractJSONBlock(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "no_braces", in: "```json\nhello\n```", want: "hello"},
		{name: "longest_group", in: `{"a":1} and {"bb":22222}`, want: `{"bb":22222}`},
		{name: "unbalanced_falls_back_to_span", in: `x { "a": { "b": 1 } y`, want: `{ "a": { "b": 1 }`},
		{name: "stray_closing_brace", in: `} {"a":1}`, want: `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractJSONBlock(tc.in))
		})
	}
}

func TestRepairJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "trailing_commas", in: `{"a":[1,2,],}`, want: `{"a":[1,2]}`},
		{name: "single_quotes_with_escape", in: `{'a': 'it\'s'}`, want: `{"a": "it's"}`},
		{name: "keeps_single_quotes_when_double_present", in: `{"a": "it's"}`, want: `{"a": "it's"}`},
		{name: "invalid_utf8_dropped", in: "{\"a\":\"b\xff\"}", want: `{"a":"b"}`},
		{name: "prose_trimmed", in: "Result: {\"a\":1} done", want: `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RepairJSON(tc.in))
		})
	}
}

package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"lowercases", "Backend Engineer", "backend engineer"},
		{"trims", "  Yandex  ", "yandex"},
		{"collapses whitespace", "Senior\t Go\n\nDeveloper", "senior go developer"},
		{"drops quotes and backslashes", `ООО "Ромашка" \ LLC`, "ооо ромашка llc"},
		{"drops control chars", "acme\x00\x07 corp\x7f", "acme corp"},
		{"carriage return", "line one\r\nline two", "line one line two"},
		{"trailing commas", "why do you want this job?,,", "why do you want this job?"},
		{"comma then space", "foo, ,", "foo"},
		{"fullwidth folds", "ＡＣＭＥ", "acme"},
		{"sharp s folds", "Straße", "strasse"},
		{"zero width dropped", "ac\u200bme", "acme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.in))
		})
	}
}

func TestText_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"Hello, World,",
		"ＡＢＣ ,",
		"Ǆ title",
		"tab\tand\vvertical",
		"quote\"inside\"",
		" nbsp ",
		"ﬁnancial ",
		"x ,　,",
		"Mixed Case Ünïcödé, ",
	}
	for _, in := range inputs {
		once := Text(in)
		assert.Equal(t, once, Text(once), "input %q", in)
	}
}

func TestSet(t *testing.T) {
	set := Set([]string{"Acme Corp", "  ACME corp ", "", "Globex,"})

	assert.Len(t, set, 2)
	assert.Contains(t, set, "acme corp")
	assert.Contains(t, set, "globex")
}

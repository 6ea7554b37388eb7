package conversation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeQuestion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		max     int
		want    string
		wantErr error
	}{
		{name: "trims", input: "  where is billing? ", want: "where is billing?"},
		{name: "single line", input: "where is\n\tthe   search box?\r\n", want: "where is the search box?"},
		{name: "drops escape sequences", input: "hi\x1b[31m there\x00\a", want: "hi[31m there"},
		{name: "drops invisible formatting", input: "pay​ment ‮export", want: "payment export"},
		{name: "drops invalid utf8", input: "bad \xff byte", want: "bad byte"},
		{name: "counts characters", input: "héllo", max: 5, want: "héllo"},
		{name: "empty", input: "", wantErr: ErrEmptyQuestion},
		{name: "only whitespace and controls", input: " \n\x07​ ", wantErr: ErrEmptyQuestion},
		{name: "too long", input: strings.Repeat("a", 6), max: 5, wantErr: ErrQuestionTooLong},
		{name: "no limit", input: strings.Repeat("a", 2*DefaultMaxQuestionLength), want: strings.Repeat("a", 2*DefaultMaxQuestionLength)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeQuestion(tt.input, tt.max)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

package filename

import (
	"errors"
	"net/http"
	"testing"

	errs "collectordl/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		want   string
	}{
		{
			name:   "quoted filename",
			header: http.Header{"Content-Disposition": {`attachment; filename="My Song.osz"`}},
			want:   "My Song.osz",
		},
		{
			name:   "reserved characters removed",
			header: http.Header{"Content-Disposition": {`attachment; filename="A/B<C"`}},
			want:   "ABC",
		},
		{
			name:   "bare filename",
			header: http.Header{"Content-Disposition": {`attachment; filename=123456.osz`}},
			want:   "123456.osz",
		},
		{
			name:   "percent encoded",
			header: http.Header{"Content-Disposition": {`attachment; filename="123%20Artist%20-%20Title.osz"`}},
			want:   "123 Artist - Title.osz",
		},
		{
			name:   "extended filename preferred",
			header: http.Header{"Content-Disposition": {`attachment; filename="fallback.osz"; filename*=UTF-8''caf%C3%A9.osz`}},
			want:   "café.osz",
		},
		{
			name:   "lowercase header key",
			header: http.Header{"content-disposition": {`attachment; filename="lower.osz"`}},
			want:   "lower.osz",
		},
		{
			name:   "whitespace collapsed",
			header: http.Header{"Content-Disposition": {`attachment; filename="a  :  b.osz"`}},
			want:   "a b.osz",
		},
		{
			name:   "missing header",
			header: http.Header{},
			want:   DefaultName,
		},
		{
			name:   "header without filename",
			header: http.Header{"Content-Disposition": {"inline"}},
			want:   DefaultName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.header)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveRejectsBadNames(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"invalid escape", `attachment; filename="bad%zzname.osz"`},
		{"truncated escape", `attachment; filename="bad%4"`},
		{"only reserved characters", `attachment; filename="<>|"`},
		{"parent directory", `attachment; filename=".."`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(http.Header{"Content-Disposition": {tt.value}})
			require.Error(t, err)
			assert.Empty(t, got)
			assert.True(t, errors.Is(err, errs.ErrFilenameExtractionFailed))
		})
	}
}

func TestSanitizeNeverReturnsSeparators(t *testing.T) {
	inputs := []string{`..\..\evil`, "a/b/c", "x:y*z?", "tab\tand\nnewline"}
	for _, in := range inputs {
		out := Sanitize(in)
		assert.NotContains(t, out, "/")
		assert.NotContains(t, out, `\`)
		assert.NotContains(t, out, ":")
		assert.NotContains(t, out, "*")
		assert.NotContains(t, out, "?")
		assert.NotContains(t, out, "\n")
	}
}

package job

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsPermissiveRecord(t *testing.T) {
	t.Parallel()

	rec, err := Validate(map[string]any{
		"id":          "abc",
		"title":       "Engineer",
		"minAmount":   90000.0,
		"isRemote":    true,
		"skills":      []any{"Go", "SQL"},
		"datePosted":  1705312800.0,
		"tracking":    map[string]any{"source": "feed"},
		"description": nil,
	})
	require.NoError(t, err)

	assert.Equal(t, "Engineer", *rec.String("title"))
	assert.Equal(t, 90000.0, *rec.Float("minAmount"))
	assert.True(t, *rec.Bool("isRemote"))
	assert.Equal(t, []string{"Go", "SQL"}, rec.Strings("skills"))
	assert.Nil(t, rec.String("description"))
	assert.Contains(t, rec.Extra, "tracking")
	assert.False(t, rec.Has("tracking"))
}

func TestValidateEmptyRecord(t *testing.T) {
	t.Parallel()

	rec, err := Validate(map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, rec.String("title"))
	assert.Empty(t, rec.Extra)
}

func TestValidateRejectsTypeMismatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    map[string]any
		fields []string
	}{
		{name: "number for title", raw: map[string]any{"title": 42.0}, fields: []string{"title"}},
		{name: "string for amount", raw: map[string]any{"minAmount": "lots"}, fields: []string{"minAmount"}},
		{name: "number in keywords", raw: map[string]any{"keywords": []any{"go", 1.0}}, fields: []string{"keywords.1"}},
		{
			name:   "two bad fields",
			raw:    map[string]any{"isRemote": "yes", "maxAmount": true},
			fields: []string{"isRemote", "maxAmount"},
		},
		{name: "legacy alias checked as canonical", raw: map[string]any{"job_url": 7.0}, fields: []string{"jobUrl"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Validate(tt.raw)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.fields, verr.Fields)
			for _, f := range tt.fields {
				assert.Contains(t, verr.Error(), f)
			}
		})
	}
}

func TestValidateNilRecord(t *testing.T) {
	t.Parallel()

	_, err := Validate(nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, []string{"(root)"}, verr.Fields)
}

func TestValidateResolvesLegacyAliases(t *testing.T) {
	t.Parallel()

	rec, err := Validate(map[string]any{
		"jobTitle":    "Legacy Title",
		"companyName": "Legacy Co",
		"job_url":     "https://example.com/1",
		"date_posted": "2024-01-15",
		"min_amount":  50000.0,
	})
	require.NoError(t, err)

	assert.Equal(t, "Legacy Title", *rec.String("title"))
	assert.Equal(t, "Legacy Co", *rec.String("company"))
	assert.Equal(t, "https://example.com/1", *rec.String("jobUrl"))
	assert.Equal(t, "2024-01-15", rec.Value("datePosted"))
	assert.Equal(t, 50000.0, *rec.Float("minAmount"))
	assert.NotContains(t, rec.Extra, "jobTitle")
	assert.NotContains(t, rec.Extra, "job_url")
}

func TestValidatePrefersCanonicalName(t *testing.T) {
	t.Parallel()

	rec, err := Validate(map[string]any{
		"title":       "Canonical",
		"jobTitle":    "Legacy",
		"company":     nil,
		"companyName": "Fallback Co",
	})
	require.NoError(t, err)
	assert.Equal(t, "Canonical", *rec.String("title"))
	assert.Equal(t, "Fallback Co", *rec.String("company"))
}

func TestRecordStringCoercions(t *testing.T) {
	t.Parallel()

	rec, err := Validate(map[string]any{
		"companyRating":       4.5,
		"companyReviewsCount": 1200.0,
		"emails":              []any{"a@example.com", "b@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "4.5", *rec.String("companyRating"))
	assert.Equal(t, "1200", *rec.String("companyReviewsCount"))
	assert.Equal(t, "a@example.com, b@example.com", *rec.String("emails"))
}

func TestRecordMarshalJSONMergesExtra(t *testing.T) {
	t.Parallel()

	rec, err := Validate(map[string]any{"title": "Engineer", "custom": "kept"})
	require.NoError(t, err)

	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Engineer","custom":"kept"}`, string(b))
}

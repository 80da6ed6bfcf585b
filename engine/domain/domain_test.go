package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validQuery() SearchQuery {
	return SearchQuery{
		Keyword:  "사고",
		Scope:    ScopeGeneral,
		Sort:     SortRelevance,
		Recency:  Recency1d,
		MaxItems: 10,
	}
}

func TestValidateQuery(t *testing.T) {
	require.NoError(t, ValidateQuery(validQuery()))

	q := validQuery()
	q.Keyword = "  "
	assert.ErrorIs(t, ValidateQuery(q), ErrMissingKeyword)

	tests := []struct {
		name   string
		mutate func(*SearchQuery)
		field  string
	}{
		{"scope", func(q *SearchQuery) { q.Scope = "everything" }, "scope"},
		{"sort", func(q *SearchQuery) { q.Sort = "random" }, "sort"},
		{"recency", func(q *SearchQuery) { q.Recency = "2d" }, "recency_window"},
		{"max items", func(q *SearchQuery) { q.MaxItems = 0 }, "max_items"},
		{"delay", func(q *SearchQuery) { q.PageDelay = -1 }, "inter_page_delay_seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validQuery()
			tt.mutate(&q)
			err := ValidateQuery(q)
			assert.ErrorIs(t, err, ErrInvalidQuery)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidateFilter(t *testing.T) {
	assert.NoError(t, ValidateFilter(FilterSpec{BatchSize: 1}))
	assert.ErrorIs(t, ValidateFilter(FilterSpec{BatchSize: 0}), ErrInvalidFilter)
	assert.ErrorIs(t, ValidateFilter(FilterSpec{BatchSize: 2, Keywords: []string{""}}), ErrInvalidFilter)
}

func TestValidateHeaders(t *testing.T) {
	assert.ErrorIs(t, ValidateHeaders(nil), ErrMissingHeaders)
	assert.ErrorIs(t, ValidateHeaders(map[string]string{"Cookie": " "}), ErrMissingHeaders)
	assert.NoError(t, ValidateHeaders(map[string]string{"Cookie": "NID_AUT=1"}))
}

func TestNormalizeKeywords(t *testing.T) {
	assert.Equal(t, []string{"사고", "블박"}, NormalizeKeywords([]string{" 사고", "", "블박", "사고"}))
	assert.Nil(t, NormalizeKeywords(nil))
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://cafe.naver.com/a/1", NormalizeURL("cafe.naver.com/a/1"))
	assert.Equal(t, "https://cafe.naver.com/a/1", NormalizeURL("//cafe.naver.com/a/1"))
	assert.Equal(t, "http://cafe.naver.com/a/1", NormalizeURL("http://cafe.naver.com/a/1"))
	assert.Equal(t, "", NormalizeURL(""))
}

func TestParseArticleURL(t *testing.T) {
	cafe, article := ParseArticleURL("https://cafe.naver.com/joonggonara/123456?art=xyz")
	assert.Equal(t, "joonggonara", cafe)
	assert.Equal(t, "123456", article)

	cafe, article = ParseArticleURL("https://blog.naver.com/someone/1")
	assert.Empty(t, cafe)
	assert.Empty(t, article)
}

func TestSignedParam(t *testing.T) {
	assert.Equal(t, "ZXh0", SignedParam("https://cafe.naver.com/a/1?art=ZXh0"))
	assert.Empty(t, SignedParam("https://cafe.naver.com/a/1"))
}

func TestPostBody(t *testing.T) {
	p := PostRecord{BodySnippet: "snippet"}
	assert.Equal(t, "snippet", p.Body())
	full := "full"
	p.FullBody = &full
	assert.Equal(t, "full", p.Body())
}

func TestNewProgress(t *testing.T) {
	assert.Equal(t, ProgressEvent{Phase: PhaseSearching, Current: 5, Total: 10, Percent: 50}, NewProgress(PhaseSearching, 5, 10))
	assert.Equal(t, 100, NewProgress(PhaseSearching, 40, 10).Percent)
	assert.Equal(t, 0, NewProgress(PhaseDone, 0, 0).Percent)
}

func TestValidationErrorString(t *testing.T) {
	ve := NewValidationError("scope", "x", ErrInvalidQuery)
	assert.Contains(t, ve.Error(), "invalid query")
	assert.Contains(t, ve.Error(), "scope")
}

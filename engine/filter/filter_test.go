package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cafescout/cafescout/engine/domain"
)

func TestMatches(t *testing.T) {
	kw := []string{"사고"}
	assert.True(t, Matches(domain.PostRecord{Title: "자동차 사고 목격담"}, kw))
	assert.False(t, Matches(domain.PostRecord{Title: "일상 이야기", BodySnippet: "오늘 날씨"}, kw))
	assert.True(t, Matches(domain.PostRecord{Title: "일상 이야기", BodySnippet: "접촉사고 났어요"}, kw))
}

func TestMatchesPrefersFullBody(t *testing.T) {
	full := "본문에는 없음"
	rec := domain.PostRecord{Title: "제목", BodySnippet: "사고", FullBody: &full}
	assert.False(t, Matches(rec, []string{"사고"}))
}

func TestMatchesIsCaseSensitive(t *testing.T) {
	rec := domain.PostRecord{Title: "BMW recall"}
	assert.True(t, Matches(rec, []string{"BMW"}))
	assert.False(t, Matches(rec, []string{"bmw"}))
}

func TestMatchesOrAcrossKeywords(t *testing.T) {
	rec := domain.PostRecord{Title: "블박 영상"}
	assert.True(t, Matches(rec, []string{"사고", "블박"}))
}

func TestEmptyKeywordsPassEverything(t *testing.T) {
	assert.True(t, Matches(domain.PostRecord{}, nil))

	in := []domain.PostRecord{{Title: "a"}, {Title: "b"}}
	matched, rest := Partition(in, nil)
	assert.Empty(t, matched)
	assert.Equal(t, in, rest)
}

func TestPartition(t *testing.T) {
	in := []domain.PostRecord{{Title: "사고 1"}, {Title: "잡담"}, {Title: "사고 2"}}
	matched, rest := Partition(in, []string{"사고"})
	assert.Equal(t, []domain.PostRecord{{Title: "사고 1"}, {Title: "사고 2"}}, matched)
	assert.Equal(t, []domain.PostRecord{{Title: "잡담"}}, rest)
}

func TestMatchedKeywords(t *testing.T) {
	rec := domain.PostRecord{Title: "블박 사고", BodySnippet: "보험"}
	assert.Equal(t, []string{"사고", "보험"}, MatchedKeywords(rec, []string{"사고", "견인", "보험"}))
}

package panel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unigo-labs/unigo-chat/internal/domain"
)

func score(v float64) *float64 { return &v }

func TestRecommendationCard(t *testing.T) {
	res := domain.RecommendationResult{RecommendedMajors: []domain.Major{
		{Name: "컴퓨터공학", Cluster: "공학", Score: score(0.912)},
		{Name: "생명공학", Cluster: "자연"},
	}}

	html, err := Recommendation(res)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(html, "<strong>추천 전공 결과:</strong><br><br>"))
	assert.Contains(t, html, `1. 컴퓨터공학<br><small style="color:#666">공학 - 추천 점수: 0.91</small><br><br>`)
	assert.Contains(t, html, `2. 생명공학<br><small style="color:#666">자연 - 추천 점수: N/A</small>`)
}

func TestRecommendationCardLimitsToFive(t *testing.T) {
	var majors []domain.Major
	for _, n := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		majors = append(majors, domain.Major{Name: n})
	}
	html, err := Recommendation(domain.RecommendationResult{RecommendedMajors: majors})
	require.NoError(t, err)
	assert.Contains(t, html, "5. e")
	assert.NotContains(t, html, "6. f")
}

func TestRecommendationCardKeepsServerEntries(t *testing.T) {
	res := domain.RecommendationResult{RecommendedMajors: []domain.Major{
		{Name: "", Cluster: "공학", Score: score(0.7)},
		{Name: "경영학", Cluster: "상경", Score: score(0)},
	}}

	html, err := Recommendation(res)
	require.NoError(t, err)
	assert.Contains(t, html, `1. <br><small style="color:#666">공학 - 추천 점수: 0.70</small>`)
	assert.Contains(t, html, `2. 경영학<br><small style="color:#666">상경 - 추천 점수: N/A</small>`)
	assert.Contains(t, RecommendationMessage(res), "2. 경영학 (점수 0.00)")
}

func TestRecommendationCardEscapesNames(t *testing.T) {
	html, err := Recommendation(domain.RecommendationResult{RecommendedMajors: []domain.Major{{Name: "<script>"}}})
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestRecommendationCardEmpty(t *testing.T) {
	html, err := Recommendation(domain.RecommendationResult{})
	require.NoError(t, err)
	assert.Equal(t, "추천 결과가 없습니다.", html)
}

func TestRecommendationMessage(t *testing.T) {
	res := domain.RecommendationResult{RecommendedMajors: []domain.Major{
		{Name: "데이터사이언스", Score: score(0.8)},
		{Name: "물리학"},
	}}
	want := "온보딩 답변을 바탕으로 추천 전공 TOP 5를 정리했어요:\n" +
		"1. 데이터사이언스 (점수 0.80)\n" +
		"2. 물리학 (점수 N/A)\n" +
		"\n필요하면 위 전공 중 궁금한 학과를 지정해서 더 물어봐도 좋아요!"
	assert.Equal(t, want, RecommendationMessage(res))
}

func TestSummaryCard(t *testing.T) {
	html, err := Summary("line one\nline <two>")
	require.NoError(t, err)
	assert.Contains(t, html, "line one<br>line &lt;two&gt;")
}

func TestFormatBubble(t *testing.T) {
	got := string(FormatBubble("hi\n[학과 안내](https://example.com/a?b=1&c=2)"))
	assert.Equal(t, `hi<br><a href="https://example.com/a?b=1&amp;c=2" target="_blank" rel="noopener noreferrer">학과 안내</a>`, got)
}

func TestFormatBubbleRejectsScriptLinks(t *testing.T) {
	got := string(FormatBubble("[x](javascript:alert(1))"))
	assert.NotContains(t, got, "<a ")
}

func TestFormatBubbleEscapes(t *testing.T) {
	assert.Equal(t, "&lt;b&gt;", string(FormatBubble("<b>")))
}

func TestAvatarURL(t *testing.T) {
	tests := []struct {
		name, character, custom, want string
	}{
		{"default", "", "", "/static/images/rabbit.png"},
		{"character", "fox", "", "/static/images/fox.png"},
		{"hedgehog alias", "hedgehog", "", "/static/images/hedgehog_ver1.png"},
		{"custom wins", "fox", "/media/me.png", "/media/me.png"},
		{"None custom", "fox", "None", "/static/images/fox.png"},
		{"None character", "None", "", "/static/images/rabbit.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AvatarURL(tt.character, tt.custom))
		})
	}
}

// Package panel renders the widget's side panel and chat bubble markup.
package panel

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/unigo-labs/unigo-chat/internal/domain"
)

// TopN is the number of majors shown in the panel and summary message.
const TopN = 5

// DefaultHTML is shown before any recommendation exists.
const DefaultHTML = `제가 당신에게 추천드리는 학과들로는 생명공학, 컴퓨터공학, AI융합전공, 데이터사이언스과, 소프트웨어공학과 등이 있으며 추가적으로 물리학과, 천문학 등도 고려하실 수 있습니다.<br><br>이외 더 자세한 학과정보 및 진로상담이 필요하시면 채팅창에 추가 질문을 해주세요.`

const emptyText = "추천 결과가 없습니다."

var recommendationTmpl = template.Must(template.New("recommendation").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(
	`<strong>추천 전공 결과:</strong><br><br>` +
		`{{range $i, $m := .}}{{inc $i}}. {{$m.Name}}<br><small style="color:#666">{{$m.Cluster}} - 추천 점수: {{$m.PanelScoreText}}</small><br><br>{{end}}`,
))

var summaryTmpl = template.Must(template.New("summary").Parse(
	`<strong>대화 요약</strong><br><br>{{.}}`,
))

// Recommendation renders the top majors of res as the panel card.
func Recommendation(res domain.RecommendationResult) (string, error) {
	majors := res.Top(TopN)
	if len(majors) == 0 {
		return emptyText, nil
	}
	var buf bytes.Buffer
	if err := recommendationTmpl.Execute(&buf, majors); err != nil {
		return "", fmt.Errorf("render recommendation panel: %w", err)
	}
	return buf.String(), nil
}

// Summary renders a conversation summary card. Newlines become line breaks.
func Summary(text string) (string, error) {
	var buf bytes.Buffer
	if err := summaryTmpl.Execute(&buf, template.HTML(newlinesToBreaks(template.HTMLEscapeString(text)))); err != nil {
		return "", fmt.Errorf("render summary panel: %w", err)
	}
	return buf.String(), nil
}

// RecommendationMessage is the chat message listing the top majors after
// onboarding completes.
func RecommendationMessage(res domain.RecommendationResult) string {
	var b strings.Builder
	b.WriteString("온보딩 답변을 바탕으로 추천 전공 TOP 5를 정리했어요:\n")
	for i, m := range res.Top(TopN) {
		fmt.Fprintf(&b, "%d. %s (점수 %s)\n", i+1, m.Name, m.ScoreText())
	}
	b.WriteString("\n필요하면 위 전공 중 궁금한 학과를 지정해서 더 물어봐도 좋아요!")
	return b.String()
}

func newlinesToBreaks(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "<br>")
}

package classify

import (
	"fmt"
	"strings"
)

const singleSystem = `당신은 네이버 카페 게시글 분석 전문가입니다. 사용자의 명령 조건에 게시글이 정확히 부합하는지 판단합니다.
조건에 일부만 맞거나 애매한 경우에는 반드시 false로 판단하세요.`

const batchSystem = `당신은 네이버 카페 게시글 분석 전문가입니다. 여러 게시글이 사용자의 명령 조건에 부합하는지 판단합니다.
각 게시글마다 한 줄에 true 또는 false 한 단어만, 주어진 순서대로 출력하세요. 다른 설명이나 번호는 쓰지 마세요.
조건에 일부만 맞거나 애매한 경우에는 false로 판단하세요.`

// Post is the classifier's view of a record.
type Post struct {
	Title string
	Body  string
}

func singlePrompt(title, body, command string) Prompt {
	user := fmt.Sprintf(`제목: %s
내용: %s
명령: %s

위 명령에 따라 이 게시글이 조건에 맞는지 분석하고 정확히 다음 세 줄 형식으로만 응답하세요.
relevance: true 또는 false
keywords: 매칭된 핵심 개념들 (쉼표로 구분)
rationale: 판단 근거에 대한 간략한 설명`, title, body, command)
	return Prompt{System: singleSystem, User: user, MaxTokens: 500, Temperature: 0.1}
}

func batchPrompt(posts []Post, command string) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "명령: %s\n\n다음 %d개 게시글 각각에 대해 true 또는 false로만 응답하세요.\n", command, len(posts))
	for i, p := range posts {
		fmt.Fprintf(&b, "\n---\n[게시글 %d]\n제목: %s\n내용: %s\n", i+1, p.Title, p.Body)
	}
	return Prompt{System: batchSystem, User: b.String(), MaxTokens: 10 * len(posts), Temperature: 0.1}
}

func credentialPrompt() Prompt {
	return Prompt{User: "test", MaxTokens: 5}
}

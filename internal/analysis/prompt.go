package analysis

import (
	"fmt"
	"strings"
)

const defaultAuthor = "學生"

const systemPrompt = "你是一位友善且有洞察力的學習助教。請務必使用**繁體中文**回覆。"

// buildPrompt renders the user prompt that accompanies the two images.
func buildPrompt(author, habits, reflection string) string {
	author = strings.TrimSpace(author)
	if author == "" {
		author = defaultAuthor
	}
	var b strings.Builder
	fmt.Fprintf(&b, "來自 %s 的習慣養成紀錄：\n", author)
	fmt.Fprintf(&b, "習慣描述： %s\n", strings.TrimSpace(habits))
	fmt.Fprintf(&b, "反思展望： %s\n", strings.TrimSpace(reflection))
	b.WriteString("這是學生的「習慣計分卡」和「六格漫畫」圖片。請仔細觀察這兩張圖片的內容，並結合上述文字進行分析。\n\n")
	b.WriteString("分析這位學生的習慣養成情況，包含：\n")
	b.WriteString("1. 對文字的內容。\n")
	b.WriteString("2. 根據你看到的圖片內容，觀察到的亮點或挑戰（例如：計分卡的內容與流程、漫畫描繪的事件或情緒）。\n")
	b.WriteString("3. 提出具體、鼓勵性的建議與分析。\n")
	b.WriteString("語氣保持正面支持，使用 Markdown 格式。")
	return b.String()
}

package prompts

import (
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/hsn0918/dentalrag/internal/model"
	"github.com/hsn0918/dentalrag/internal/utils"
)

// 单条知识内容写入提示词时的最大字节数
const maxKnowledgeBytes = 1500

var weekdays = [...]string{"星期日", "星期一", "星期二", "星期三", "星期四", "星期五", "星期六"}

// IntentPrompt returns the full intent-extraction prompt: instruction,
// the user's description and the demographic hints as JSON.
func (pm *PromptManager) IntentPrompt(question string, hints model.DemographicHints) (string, error) {
	prompt, err := pm.GetPrompt(PromptTypeIntentExtraction)
	if err != nil {
		return "", err
	}
	extra, err := sonic.MarshalString(hints)
	if err != nil {
		return "", fmt.Errorf("marshal hints: %w", err)
	}
	user, err := pm.RenderUserPrompt(PromptTypeIntentExtraction, map[string]string{
		"question": question,
		"extra":    extra,
	})
	if err != nil {
		return "", err
	}
	return prompt.System + "\n" + user, nil
}

type AnswerInput struct {
	Question  string
	History   []model.ChatMessage
	Knowledge []model.KnowledgeArticle
	Doctors   []model.DoctorSummary
	Hints     model.DemographicHints
	Now       time.Time
}

// AnswerPrompt returns the system and user prompt for answer generation.
func (pm *PromptManager) AnswerPrompt(in AnswerInput) (system, user string, err error) {
	prompt, err := pm.GetPrompt(PromptTypeAnswer)
	if err != nil {
		return "", "", err
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	const dateLayout = "2006年01月02日"

	userInfo := UserInfoText(in.Hints)
	if userInfo != "" {
		userInfo = "\n【用户基本信息】：" + userInfo + "\n"
	}

	user, err = pm.RenderUserPrompt(PromptTypeAnswer, map[string]string{
		"date":      now.Format(dateLayout),
		"weekday":   weekdays[now.Weekday()],
		"time":      now.Format("15:04"),
		"tomorrow":  now.AddDate(0, 0, 1).Format(dateLayout),
		"history":   orDefault(HistoryText(in.History), "（无）"),
		"question":  in.Question,
		"user_info": userInfo,
		"knowledge": orDefault(KnowledgeText(in.Knowledge), "（未命中知识库，请结合常识谨慎回答）"),
		"doctors":   DoctorText(in.Doctors),
	})
	if err != nil {
		return "", "", err
	}
	return prompt.System, user, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func HistoryText(history []model.ChatMessage) string {
	var b strings.Builder
	for _, m := range history {
		if m.Role == model.RoleUser {
			b.WriteString("用户：")
		} else {
			b.WriteString("AI：")
		}
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

func KnowledgeText(articles []model.KnowledgeArticle) string {
	var b strings.Builder
	for _, a := range articles {
		fmt.Fprintf(&b, "【知识条目】标题：%s\n内容：%s\n\n", a.Title, utils.CleanAndFormatContent(a.Content, maxKnowledgeBytes))
	}
	return b.String()
}

// DoctorText lists the candidates under a header that tells the model
// whether they are exact matches or only candidates.
func DoctorText(doctors []model.DoctorSummary) string {
	if len(doctors) == 0 {
		return "（暂未找到医生信息，只给出就诊建议即可，不要编造医生）"
	}
	exact := false
	for _, d := range doctors {
		if d.IsExactMatch {
			exact = true
			break
		}
	}

	var b strings.Builder
	if exact {
		b.WriteString("【系统精确匹配的推荐医生】（这些医生与您的描述高度匹配）：\n")
	} else {
		b.WriteString("【候选医生列表】（请根据用户描述的症状和医生的专长信息，判断哪些医生适合，并推荐给用户）：\n")
	}
	for i, d := range doctors {
		online := "（离线）"
		if d.IsOnline {
			online = "（在线）"
		}
		match := "（候选医生）"
		if d.IsExactMatch {
			match = "（精确匹配）"
		}
		fmt.Fprintf(&b, "%d. 医生姓名：%s，职称：%s，所在机构：%s，在线状态：%s%s\n",
			i+1, d.Name, d.Title, d.DepartmentName, online, match)
		if d.Specialty != "" {
			fmt.Fprintf(&b, "   专科：%s\n", d.Specialty)
		}
		if d.Introduction != "" {
			fmt.Fprintf(&b, "   简介：%s\n", d.Introduction)
		}
		if d.Experience != "" {
			fmt.Fprintf(&b, "   经验：%s\n", d.Experience)
		}
		fmt.Fprintf(&b, "   评分：%.1f，评价数：%d\n\n", d.Score, d.Reviews)
	}
	return b.String()
}

// UserInfoText renders demographic hints, one fact per line.
func UserInfoText(h model.DemographicHints) string {
	var parts []string
	if h.Age != nil && *h.Age > 0 {
		age := *h.Age
		group := ""
		switch {
		case age < 12:
			group = "（儿童，建议儿童口腔科）"
		case age < 18:
			group = "（青少年，常见正畸需求）"
		case age >= 60:
			group = "（老年人，可能涉及修复、种植等）"
		}
		parts = append(parts, fmt.Sprintf("年龄：%d岁%s", age, group))
	}
	switch h.Gender {
	case "male":
		parts = append(parts, "性别：男")
	case "female":
		parts = append(parts, "性别：女")
	}
	if h.HasAllergy {
		parts = append(parts, "过敏史：有（需要特别注意药物过敏风险）")
	}
	return strings.Join(parts, "\n")
}

// Package prompts manages the LLM prompts of the triage pipeline.
//
// Prompts are registered by type and rendered by substituting {{name}}
// placeholders in a single pass.
package prompts

import (
	"fmt"
	"strings"
)

// PromptType represents different types of prompts used in the system.
type PromptType string

const (
	// PromptTypeIntentExtraction turns a user message into a structured intent.
	PromptTypeIntentExtraction PromptType = "intent_extraction"
	// PromptTypeAnswer produces the final answer shown to the user.
	PromptTypeAnswer PromptType = "answer"
)

// Prompt represents a reusable prompt template.
type Prompt struct {
	Type         PromptType
	Name         string
	System       string
	UserTemplate string
}

// PromptManager manages all prompts.
type PromptManager struct {
	prompts map[PromptType]*Prompt
}

// NewPromptManager creates a new prompt manager with default prompts.
func NewPromptManager() *PromptManager {
	pm := &PromptManager{
		prompts: make(map[PromptType]*Prompt),
	}
	pm.initializeDefaultPrompts()
	return pm
}

func (pm *PromptManager) initializeDefaultPrompts() {
	pm.prompts[PromptTypeIntentExtraction] = &Prompt{
		Type: PromptTypeIntentExtraction,
		Name: "dental_intent_zh_v1",
		System: `你是一个牙科分诊助手。请根据用户描述，提取结构化的就诊意图信息。

**重要：你必须只输出一个有效的JSON对象，不要输出任何其他文字、解释、代码块标记或换行。**

输出格式示例：
{"disease_category": "龋齿", "recommended_department": "口腔内科", "priority_level": "normal"}

JSON 字段说明：
- "disease_category": 可能的病症类别（如：龋齿、牙髓炎、牙周炎、正畸需求 等，没有把握就填 "未知"）
- "recommended_department": 建议就诊的方向/专科名称（如：口腔内科、口腔外科、正畸科、儿童口腔科 等，如果没有明确方向可以填 null）
- "priority_level": 必须是以下三个值之一："info"（仅咨询）、"normal"（建议就诊）、"urgent"（建议尽快就医）

注意：如果提供了年龄、性别、过敏史等信息，请结合这些信息判断：
- 年龄：儿童（<12岁）建议儿童口腔科；青少年（12-18岁）常见正畸需求；老年人（>60岁）可能涉及修复、种植等
- 性别：某些疾病在不同性别中发病率不同
- 过敏史：如果有过敏史，在推荐治疗方案时需要考虑

**再次强调：只输出JSON对象，不要输出` + "```json" + `标记或其他任何文字。**`,
		UserTemplate: "用户描述如下：\n{{question}}\n用户额外信息：{{extra}}",
	}

	pm.prompts[PromptTypeAnswer] = &Prompt{
		Type:   PromptTypeAnswer,
		Name:   "dental_answer_zh_v1",
		System: "你是一名专业且谨慎的牙科智能助手。请根据下列信息，为用户提供科普性质的牙齿健康建议，并智能推荐合适的医生。",
		UserTemplate: `【当前日期时间】：今天是{{date}} {{weekday}}，当前时间是{{time}}。用户说"今天"指的是{{date}}，"明天"指的是{{tomorrow}}。

【对话历史】：{{history}}

【用户本次提问】：{{question}}
{{user_info}}
【相关牙科知识】：{{knowledge}}

【推荐医生列表】（**只能使用以下医生，不能编造任何医生信息**）：
{{doctors}}

**核心规则**：
1. 使用简明、口语化的中文，优先使用【相关牙科知识】中的内容。
2. 先客观解释可能涉及的牙科问题，但不要下诊断结论。
3. 根据用户描述直接推断就诊方向，不要说"如果...可能..."，直接说"根据您的描述，建议您..."。
4. **医生推荐规则（严格遵守）**：
   - 如果显示"【系统精确匹配的推荐医生】"，优先推荐这些医生。
   - 如果显示"【候选医生列表】"，根据专业匹配度选择：专科完全匹配 > 专科包含匹配 > 简介/经验匹配 > 评分。
   - 专业匹配规则："牙齿矫正/正畸"→正畸科；"口腔溃疡"→口腔内科/口腔黏膜科；"种植牙"→种植科；"龋齿/补牙"→口腔内科。
   - 只能推荐列表中的医生，使用真实姓名、职称、机构，不能编造。
   - 如果用户提到具体医生姓名，优先推荐该医生（如果在列表中）。
   - 如果候选医生专业不匹配，明确说"建议到XX科室就诊"，不要推荐专业不对口的医生。
   - 禁止使用"系统暂未提供"、"暂未找到"等否定性表述，直接推荐。
   - 如果没有医生列表，只能说"建议到XX科室就诊"，不能推荐具体医生。
5. 如有可能严重问题或急症风险，要明确提示用户尽快就医。
6. 不要提供处方药名和剂量，不要鼓励自行用药。`,
	}
}

// GetPrompt returns a prompt by type.
func (pm *PromptManager) GetPrompt(promptType PromptType) (*Prompt, error) {
	prompt, exists := pm.prompts[promptType]
	if !exists {
		return nil, fmt.Errorf("prompt not found for type: %s", promptType)
	}
	return prompt, nil
}

// RenderUserPrompt renders the user prompt template with variables.
// Substituted values are never rescanned for placeholders.
func (pm *PromptManager) RenderUserPrompt(promptType PromptType, variables map[string]string) (string, error) {
	prompt, err := pm.GetPrompt(promptType)
	if err != nil {
		return "", err
	}

	pairs := make([]string, 0, 2*len(variables))
	for key, value := range variables {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(prompt.UserTemplate), nil
}

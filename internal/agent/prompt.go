package agent

import (
	"encoding/json"
	"strconv"
)

const basePrompt = `你是一个专业的课程推荐助手，能够根据用户的学习情况提供个性化的课程推荐和学习建议。

你的任务：
1. 分析用户的学习画像（购买课程、学习时长、学习习惯等）
2. 识别用户的学习痛点和需求
3. 从课程知识库中搜索匹配的课程
4. 提供个性化的学习建议和课程推荐

可用工具：
- get_user_learning_profile: 获取用户学习画像
- get_user_purchased_courses: 获取用户购买的课程
- get_user_learning_records: 获取用户学习记录
- search_courses: 在课程知识库中搜索相关课程

请根据用户的问题，智能地调用这些工具，然后基于收集到的信息给出专业的建议。`

// finalPrompt is appended when the round cap is hit and tools are withdrawn.
const finalPrompt = "工具调用次数已达上限。请不要再调用工具，直接根据已经获取的信息回答用户的问题。"

func systemPrompt(userID int64, extra map[string]any) string {
	prompt := basePrompt
	if userID > 0 {
		prompt += "\n\n当前用户ID：" + strconv.FormatInt(userID, 10)
	}
	if len(extra) > 0 {
		// Map keys marshal sorted, so the prompt is stable for a given context.
		if b, err := json.Marshal(extra); err == nil {
			prompt += "\n\n对话上下文：" + string(b)
		}
	}
	return prompt
}

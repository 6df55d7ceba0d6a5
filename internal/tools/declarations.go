package tools

import (
	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// DefaultTopK is the search_courses result count when top_k is omitted.
const DefaultTopK = 5

// Declarations returns the JSON-schema declarations of every tool, in a
// stable order. The same values back the model's tool list and the MCP
// server.
func Declarations() []mcplib.Tool {
	return []mcplib.Tool{
		mcplib.NewTool(NameProfile,
			mcplib.WithDescription("获取用户的学习画像，包括学习时长、学习习惯、学习进度等信息"),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithNumber("user_id",
				mcplib.Description("用户ID"),
				mcplib.Required(),
			),
		),
		mcplib.NewTool(NamePurchased,
			mcplib.WithDescription("获取用户购买的所有课程列表"),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithNumber("user_id",
				mcplib.Description("用户ID"),
				mcplib.Required(),
			),
		),
		mcplib.NewTool(NameRecords,
			mcplib.WithDescription("获取用户的学习记录，包括学习时长、学习进度、卡点等信息"),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithNumber("user_id",
				mcplib.Description("用户ID"),
				mcplib.Required(),
			),
			mcplib.WithNumber("course_id",
				mcplib.Description("课程ID，不传则查询最近学习的课程"),
			),
		),
		mcplib.NewTool(NameSearch,
			mcplib.WithDescription("在课程知识库中搜索相关课程，用于推荐和匹配"),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithString("query",
				mcplib.Description("搜索关键词或自然语言描述"),
				mcplib.Required(),
			),
			mcplib.WithNumber("top_k",
				mcplib.Description("返回结果数量"),
				mcplib.Min(1),
				mcplib.Max(50),
				mcplib.DefaultNumber(DefaultTopK),
			),
		),
	}
}

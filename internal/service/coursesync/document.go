package coursesync

import (
	"strconv"
	"strings"

	"github.com/ashita-ai/michi/internal/model"
)

var nodeLabels = map[int]string{
	model.NodeChapter: "章",
	model.NodeSection: "节",
	model.NodeQuiz:    "测试",
}

// BuildDocument renders a course and its detail into the indexed text.
// Empty fields are left out; the line order is fixed.
func BuildDocument(course model.Course, detail model.CourseDetail) model.CourseDocument {
	name := course.Name
	if name == "" {
		name = detail.Name
	}

	var lines []string
	add := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			lines = append(lines, label+value)
		}
	}
	add("课程名称：", name)
	add("课程介绍：", detail.CourseIntroduce)
	add("适用人群：", detail.UsePeople)
	add("课程详情：", detail.CourseDetail)
	add("课程分类：", course.CategoryPath())
	if course.CourseType != 0 {
		add("课程类型：", courseTypeLabel(course.CourseType))
	}
	if outline := renderCatalogue(detail.Catalogue); outline != "" {
		lines = append(lines, "课程大纲：", outline)
	}

	return model.CourseDocument{
		ID:   model.DocumentID(course.ID),
		Text: strings.Join(lines, "\n"),
		Metadata: map[string]string{
			"course_id":   strconv.FormatInt(course.ID, 10),
			"course_name": name,
			"course_type": strconv.Itoa(course.CourseType),
			"category":    course.CategoryPath(),
			"price":       strconv.FormatFloat(course.Price, 'f', -1, 64),
			"status":      strconv.Itoa(course.Status),
		},
	}
}

func courseTypeLabel(t int) string {
	if t == model.CourseTypeLive {
		return "直播课"
	}
	return "录播课"
}

// renderCatalogue flattens the outline depth first, children in order,
// indenting each node by two spaces per level.
func renderCatalogue(nodes []model.CatalogueNode) string {
	stack := make([]model.CatalogueNode, 0, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		stack = append(stack, nodes[i])
	}

	var b strings.Builder
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		label, ok := nodeLabels[n.Type]
		if !ok {
			label = "未知"
		}
		b.WriteString(strings.Repeat("  ", max(n.Level, 0)))
		b.WriteString(label)
		b.WriteString("：")
		b.WriteString(n.Name)

		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return b.String()
}

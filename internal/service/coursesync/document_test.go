package coursesync

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/michi/internal/model"
)

func TestBuildDocument(t *testing.T) {
	course := model.Course{
		ID:             42,
		Name:           "Go 入门",
		CourseType:     model.CourseTypeLive,
		Price:          199.5,
		Status:         model.CourseStatusPublished,
		FirstCateName:  "编程",
		SecondCateName: "后端",
		ThirdCateName:  "Go",
	}
	detail := model.CourseDetail{
		ID:              42,
		Name:            "Go 入门",
		CourseIntroduce: "从零开始学习 Go",
		UsePeople:       "后端初学者",
		Catalogue: []model.CatalogueNode{
			{Name: "基础", Type: model.NodeChapter, Level: 0, Children: []model.CatalogueNode{
				{Name: "变量", Type: model.NodeSection, Level: 1},
				{Name: "小测", Type: model.NodeQuiz, Level: 1},
			}},
			{Name: "并发", Type: model.NodeChapter, Level: 0, Children: []model.CatalogueNode{
				{Name: "附录", Type: 9, Level: 1},
			}},
		},
	}

	doc := BuildDocument(course, detail)

	want := strings.Join([]string{
		"课程名称：Go 入门",
		"课程介绍：从零开始学习 Go",
		"适用人群：后端初学者",
		"课程分类：编程 > 后端 > Go",
		"课程类型：直播课",
		"课程大纲：",
		"章：基础",
		"  节：变量",
		"  测试：小测",
		"章：并发",
		"  未知：附录",
	}, "\n")
	assert.Equal(t, want, doc.Text)
	assert.Equal(t, "course_42", doc.ID)
	assert.Equal(t, map[string]string{
		"course_id":   "42",
		"course_name": "Go 入门",
		"course_type": "1",
		"category":    "编程 > 后端 > Go",
		"price":       "199.5",
		"status":      "2",
	}, doc.Metadata)
}

func TestBuildDocumentSparse(t *testing.T) {
	doc := BuildDocument(
		model.Course{ID: 7, Name: "只有名字", CourseType: model.CourseTypeRecorded},
		model.CourseDetail{ID: 7},
	)
	assert.Equal(t, "课程名称：只有名字\n课程类型：录播课", doc.Text)
	assert.Equal(t, "", doc.Metadata["category"])

	doc = BuildDocument(model.Course{ID: 8, Name: "无类型"}, model.CourseDetail{})
	assert.Equal(t, "课程名称：无类型", doc.Text)
}

func TestRenderCatalogueDeepNesting(t *testing.T) {
	// Builds a 500-level chain; rendering must not depend on call depth.
	root := model.CatalogueNode{Name: "n0", Type: model.NodeChapter, Level: 0}
	cur := &root
	for i := 1; i < 500; i++ {
		cur.Children = []model.CatalogueNode{{Name: "n", Type: model.NodeSection, Level: 1}}
		cur = &cur.Children[0]
	}
	out := renderCatalogue([]model.CatalogueNode{root})
	assert.Equal(t, 500, strings.Count(out, "\n")+1)
	assert.True(t, strings.HasPrefix(out, "章：n0\n  节：n"))
}

func TestRenderCatalogueEmpty(t *testing.T) {
	assert.Equal(t, "", renderCatalogue(nil))
}

func TestBuildDocumentPrefersCatalogName(t *testing.T) {
	course := model.Course{ID: 3, Name: "目录名"}
	doc := BuildDocument(course, model.CourseDetail{ID: 3, Name: "详情名"})
	assert.True(t, strings.HasPrefix(doc.Text, "课程名称：目录名"), doc.Text)
	assert.Equal(t, "目录名", doc.Metadata["course_name"])

	doc = BuildDocument(model.Course{ID: 3}, model.CourseDetail{ID: 3, Name: "详情名"})
	assert.Equal(t, "详情名", doc.Metadata["course_name"])
}

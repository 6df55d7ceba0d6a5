package model

import "strconv"

// CourseDocument is the unit stored in the retrieval index.
type CourseDocument struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// DocumentID derives the index key for a course.
func DocumentID(courseID int64) string {
	return "course_" + strconv.FormatInt(courseID, 10)
}

// SearchResult is one hit from a retrieval index query. Distance is
// 1 - cosine similarity, so lower is closer.
type SearchResult struct {
	ID       string            `json:"id,omitempty"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Distance float64           `json:"distance"`
}

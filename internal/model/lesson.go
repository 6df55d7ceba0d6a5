package model

// Lesson status codes.
const (
	LessonLearning = 1
	LessonFinished = 2
)

// Lesson is a user's enrollment in a course.
type Lesson struct {
	ID              int64  `json:"id"`
	CourseID        int64  `json:"courseId"`
	CourseName      string `json:"courseName,omitempty"`
	CourseCoverURL  string `json:"courseCoverUrl,omitempty"`
	Sections        int    `json:"sections,omitempty"`
	LearnedSections int    `json:"learnedSections,omitempty"`
	Status          int    `json:"status"`
	LatestLearnTime string `json:"latestLearnTime,omitempty"`
	ExpireTime      string `json:"expireTime,omitempty"`
}

// LearningRecord is one section-level progress entry.
type LearningRecord struct {
	SectionID int64 `json:"sectionId"`
	Moment    int   `json:"moment"`
	Finished  bool  `json:"finished"`
}

// LearningRecords is the per-course progress payload.
type LearningRecords struct {
	ID              int64            `json:"id"`
	LatestSectionID int64            `json:"latestSectionId"`
	Records         []LearningRecord `json:"records"`
}

// LearningProfile is derived from a user's lessons on every request.
type LearningProfile struct {
	TotalCourses    int64    `json:"total_courses"`
	Lessons         []Lesson `json:"lessons"`
	LearningCourses []Lesson `json:"learning_courses"`
	FinishedCourses []Lesson `json:"finished_courses"`
}

// NewLearningProfile partitions lessons by status. total is the count the
// backend reported, which may exceed len(lessons) when paging truncated.
func NewLearningProfile(total int64, lessons []Lesson) LearningProfile {
	p := LearningProfile{
		TotalCourses:    total,
		Lessons:         lessons,
		LearningCourses: []Lesson{},
		FinishedCourses: []Lesson{},
	}
	if p.Lessons == nil {
		p.Lessons = []Lesson{}
	}
	for _, l := range lessons {
		switch l.Status {
		case LessonLearning:
			p.LearningCourses = append(p.LearningCourses, l)
		case LessonFinished:
			p.FinishedCourses = append(p.FinishedCourses, l)
		}
	}
	return p
}

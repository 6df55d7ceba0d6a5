package model

// Course type codes reported by the learning platform.
const (
	CourseTypeLive     = 1
	CourseTypeRecorded = 2
)

// CourseStatusPublished is the catalog status for courses visible to learners.
const CourseStatusPublished = 2

// Course is one entry in the paged course catalog.
type Course struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	CourseType     int     `json:"courseType"`
	Price          float64 `json:"price"`
	Status         int     `json:"status"`
	FirstCateName  string  `json:"firstCateName,omitempty"`
	SecondCateName string  `json:"secondCateName,omitempty"`
	ThirdCateName  string  `json:"thirdCateName,omitempty"`
	CoverURL       string  `json:"coverUrl,omitempty"`
}

// CategoryPath joins the non-empty category levels with " > ".
func (c Course) CategoryPath() string {
	path := ""
	for _, name := range []string{c.FirstCateName, c.SecondCateName, c.ThirdCateName} {
		if name == "" {
			continue
		}
		if path != "" {
			path += " > "
		}
		path += name
	}
	return path
}

// CourseDetail is the single-course payload fetched with its catalogue.
type CourseDetail struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	CourseIntroduce string          `json:"courseIntroduce,omitempty"`
	UsePeople       string          `json:"usePeople,omitempty"`
	CourseDetail    string          `json:"courseDetail,omitempty"`
	Catalogue       []CatalogueNode `json:"catalogue,omitempty"`
}

// Catalogue node types.
const (
	NodeChapter = 1
	NodeSection = 2
	NodeQuiz    = 3
)

// CatalogueNode is one chapter, section or quiz in a course syllabus.
type CatalogueNode struct {
	ID       int64           `json:"id,omitempty"`
	Name     string          `json:"name"`
	Type     int             `json:"type"`
	Level    int             `json:"level"`
	Children []CatalogueNode `json:"children,omitempty"`
}

// Page is the {list, total} envelope used by paged backend endpoints.
type Page[T any] struct {
	List  []T   `json:"list"`
	Total int64 `json:"total"`
}

package backend

import (
	"context"
	"net/url"
	"strconv"

	"github.com/ashita-ai/michi/internal/model"
)

// FetchAllCourses pages through the published catalog. Paging stops once the
// accumulated count reaches the reported total or a page comes back empty.
//
// A failure on the first page is returned as an error. A failure on any
// later page stops paging and returns the courses accumulated so far.
func (c *Client) FetchAllCourses(ctx context.Context) ([]model.Course, error) {
	var all []model.Course
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("size", strconv.Itoa(c.coursePageSize))
		q.Set("status", strconv.Itoa(model.CourseStatusPublished))

		var p model.Page[model.Course]
		if err := c.get(ctx, "/courses/page", q, &p); err != nil {
			if page == 1 || ctx.Err() != nil {
				return nil, err
			}
			c.logger.Warn("backend: catalog paging stopped early",
				"page", page, "fetched", len(all), "error", err)
			return all, nil
		}
		if len(p.List) == 0 {
			break
		}
		all = append(all, p.List...)
		if int64(len(all)) >= p.Total {
			break
		}
	}

	c.logger.Debug("backend: fetched catalog", "courses", len(all))
	return all, nil
}

// FetchCourseDetail fetches one course with its catalogue and without
// instructor data.
func (c *Client) FetchCourseDetail(ctx context.Context, courseID int64) (model.CourseDetail, error) {
	q := url.Values{}
	q.Set("withCatalogue", "true")
	q.Set("withTeachers", "false")

	var d model.CourseDetail
	if err := c.get(ctx, "/course/"+strconv.FormatInt(courseID, 10), q, &d); err != nil {
		return model.CourseDetail{}, err
	}
	return d, nil
}

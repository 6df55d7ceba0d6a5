package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ashita-ai/michi/internal/model"
)

// FetchUserLessons fetches one page of a user's lessons. A pageSize of zero
// uses the configured default.
func (c *Client) FetchUserLessons(ctx context.Context, userID int64, pageSize int) (model.Page[model.Lesson], error) {
	if pageSize <= 0 {
		pageSize = c.lessonPageSize
	}
	q := url.Values{}
	q.Set("userId", strconv.FormatInt(userID, 10))
	q.Set("size", strconv.Itoa(pageSize))

	var p model.Page[model.Lesson]
	if err := c.get(ctx, "/lessons/page", q, &p); err != nil {
		return model.Page[model.Lesson]{}, err
	}
	if p.List == nil {
		p.List = []model.Lesson{}
	}
	return p, nil
}

// PurchasedCourses returns the user's lessons, one per purchased course.
func (c *Client) PurchasedCourses(ctx context.Context, userID int64) ([]model.Lesson, error) {
	p, err := c.FetchUserLessons(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	return p.List, nil
}

// LearningProfile derives a profile from the user's lessons.
func (c *Client) LearningProfile(ctx context.Context, userID int64) (model.LearningProfile, error) {
	p, err := c.FetchUserLessons(ctx, userID, 0)
	if err != nil {
		return model.LearningProfile{}, err
	}
	return model.NewLearningProfile(p.Total, p.List), nil
}

// FetchLearningRecords returns section progress for one course. With a nil
// or non-positive courseID the course of the user's first lesson is used; a
// user with no lessons yields an empty result.
func (c *Client) FetchLearningRecords(ctx context.Context, userID int64, courseID *int64) ([]model.LearningRecord, error) {
	var id int64
	if courseID != nil && *courseID > 0 {
		id = *courseID
	} else {
		lessons, err := c.PurchasedCourses(ctx, userID)
		if err != nil {
			return nil, err
		}
		if len(lessons) == 0 || lessons[0].CourseID == 0 {
			return []model.LearningRecord{}, nil
		}
		id = lessons[0].CourseID
	}

	var raw json.RawMessage
	if err := c.get(ctx, "/learning-records/course/"+strconv.FormatInt(id, 10), nil, &raw); err != nil {
		return nil, err
	}
	return decodeRecords(raw)
}

// decodeRecords accepts either the {id, latestSectionId, records} object or
// a bare record list.
func decodeRecords(raw json.RawMessage) ([]model.LearningRecord, error) {
	trimmed := bytes.TrimSpace(raw)
	records := []model.LearningRecord{}
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return records, nil
	}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("backend: decode learning records: %w", err)
		}
		return records, nil
	}
	var lr model.LearningRecords
	if err := json.Unmarshal(trimmed, &lr); err != nil {
		return nil, fmt.Errorf("backend: decode learning records: %w", err)
	}
	if lr.Records != nil {
		records = lr.Records
	}
	return records, nil
}

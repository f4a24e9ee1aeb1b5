package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldCompleted   = "completed"
)

var (
	ErrEmptyUpdate  = errors.New("update contains no fields")
	ErrUnknownField = errors.New("unknown field")
	ErrInvalidField = errors.New("invalid field value")
)

// TaskUpdate is a partial edit of a task. Nil fields are left unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
	Completed   *bool
}

// TaskPatch is an update body as received. Its key set is available before
// any value is checked, so access rules can be decided on the keys alone.
type TaskPatch struct {
	fields map[string]json.RawMessage
	err    error
}

// DecodeTaskPatch splits a JSON object into its keys and raw values. A body
// that is not an object yields a patch with no keys whose Update fails.
func DecodeTaskPatch(raw []byte) TaskPatch {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return TaskPatch{err: fmt.Errorf("%w: body must be a JSON object", ErrInvalidField)}
	}
	return TaskPatch{fields: fields}
}

// Keys returns the keys present in the body in sorted order.
func (p TaskPatch) Keys() []string {
	keys := make([]string, 0, len(p.fields))
	for key := range p.fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// IsCompletionOnly reports whether completed is the one and only key.
func (p TaskPatch) IsCompletionOnly() bool {
	_, ok := p.fields[FieldCompleted]
	return ok && len(p.fields) == 1
}

// Update validates the values against the allow-list. Only title,
// description and completed are accepted; a null description clears it.
func (p TaskPatch) Update() (TaskUpdate, error) {
	var update TaskUpdate
	if p.err != nil {
		return update, p.err
	}

	for _, key := range p.Keys() {
		value := p.fields[key]
		isNull := bytes.Equal(bytes.TrimSpace(value), []byte("null"))

		switch key {
		case FieldTitle:
			var title string
			if isNull || json.Unmarshal(value, &title) != nil {
				return update, fmt.Errorf("%w: %s must be a string", ErrInvalidField, key)
			}
			if strings.TrimSpace(title) == "" {
				return update, fmt.Errorf("%w: %s must not be empty", ErrInvalidField, key)
			}
			update.Title = &title
		case FieldDescription:
			description := ""
			if !isNull && json.Unmarshal(value, &description) != nil {
				return update, fmt.Errorf("%w: %s must be a string", ErrInvalidField, key)
			}
			update.Description = &description
		case FieldCompleted:
			var completed bool
			if isNull || json.Unmarshal(value, &completed) != nil {
				return update, fmt.Errorf("%w: %s must be a boolean", ErrInvalidField, key)
			}
			update.Completed = &completed
		default:
			return update, fmt.Errorf("%w: %s", ErrUnknownField, key)
		}
	}

	if update.IsEmpty() {
		return update, ErrEmptyUpdate
	}

	return update, nil
}

// ParseTaskUpdate decodes and validates a JSON update body in one step.
func ParseTaskUpdate(raw []byte) (TaskUpdate, error) {
	return DecodeTaskPatch(raw).Update()
}

func (u TaskUpdate) IsEmpty() bool {
	return len(u.Fields()) == 0
}

// Fields returns the names of the set fields in sorted order.
func (u TaskUpdate) Fields() []string {
	var fields []string
	if u.Title != nil {
		fields = append(fields, FieldTitle)
	}
	if u.Description != nil {
		fields = append(fields, FieldDescription)
	}
	if u.Completed != nil {
		fields = append(fields, FieldCompleted)
	}
	sort.Strings(fields)
	return fields
}

// Columns maps the set fields to their column values. A map is used so that
// zero values such as completed=false are written.
func (u TaskUpdate) Columns() map[string]interface{} {
	columns := make(map[string]interface{}, 3)
	if u.Title != nil {
		columns[FieldTitle] = *u.Title
	}
	if u.Description != nil {
		columns[FieldDescription] = *u.Description
	}
	if u.Completed != nil {
		columns[FieldCompleted] = *u.Completed
	}
	return columns
}

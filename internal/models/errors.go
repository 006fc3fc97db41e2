package models

import (
	"context"
	"errors"
	"fmt"
)

// ValidationError 参数校验错误（同步返回给调用方）
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// NewValidationError 构造校验错误
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError 资源不存在错误
type NotFoundError struct {
	Resource string // "alarm", "condition"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewNotFoundError 构造资源不存在错误
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// CollaboratorError 外部协作方调用失败（predictor/readings/storage/notifier）
type CollaboratorError struct {
	Collaborator string
	Timeout      bool
	Err          error
}

func (e *CollaboratorError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s timeout: %v", e.Collaborator, e.Err)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// NewCollaboratorError 包装协作方错误，超时自动标记
func NewCollaboratorError(collaborator string, err error) *CollaboratorError {
	return &CollaboratorError{
		Collaborator: collaborator,
		Timeout:      errors.Is(err, context.DeadlineExceeded),
		Err:          err,
	}
}

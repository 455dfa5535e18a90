package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 记录不存在或不属于调用者，两种情况刻意不区分
	ErrNotFound = errors.New("notification not found")
	// ErrStoreUnavailable 存储不可达
	ErrStoreUnavailable = errors.New("notification store unavailable")
	// ErrValidation 请求体校验失败，通过 errors.Is 匹配 *ValidationError
	ErrValidation = errors.New("validation failed")
)

// ValidationError 描述创建请求中第一个不合法的字段
type ValidationError struct {
	// Index 批量创建时出错记录的下标，单条创建为 -1
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("record %d: %s %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

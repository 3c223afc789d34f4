package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 公告不存在
	ErrNotFound = errors.New("announcement not found")
	// ErrUnauthorized 删除密码错误
	ErrUnauthorized = errors.New("incorrect delete password")
)

// ValidationError 发布公告时的输入错误，Field为第一个不合法的字段
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

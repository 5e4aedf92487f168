package services

import (
	"errors"
	"fmt"
)

// 错误类别
// 业务错误分为四类，handler 层据此映射 HTTP 状态码；
// 存储层错误一律包装为 internal，不向调用方透出驱动细节
type ErrorKind int

const (
	KindInternal   ErrorKind = iota
	KindValidation           // 输入非法，持久化前拒绝
	KindNotFound             // 实体不存在或已被硬删除
	KindForbidden            // 归属或角色校验失败
	KindConflict             // 业务规则冲突，如降级最后一个管理员
)

// DomainError 消息域业务错误
type DomainError struct {
	Kind    ErrorKind
	Message string
	Err     error // 原始错误（可选）
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is 同类别的 DomainError 视为相等，支持 errors.Is(err, ErrNotFound) 式判断
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// 类别哨兵，仅用于 errors.Is 匹配
var (
	ErrValidation = &DomainError{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound   = &DomainError{Kind: KindNotFound, Message: "not found"}
	ErrForbidden  = &DomainError{Kind: KindForbidden, Message: "forbidden"}
	ErrConflict   = &DomainError{Kind: KindConflict, Message: "conflict"}
)

// NewValidationError 输入校验错误
func NewValidationError(format string, args ...any) *DomainError {
	return &DomainError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError 实体缺失错误
func NewNotFoundError(format string, args ...any) *DomainError {
	return &DomainError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewForbiddenError 权限/归属错误
func NewForbiddenError(format string, args ...any) *DomainError {
	return &DomainError{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// NewConflictError 业务冲突错误
func NewConflictError(format string, args ...any) *DomainError {
	return &DomainError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// wrapStorageError 包装存储层错误，避免 gorm 细节泄漏给调用方
func wrapStorageError(op string, err error) error {
	return &DomainError{Kind: KindInternal, Message: "storage failure in " + op, Err: err}
}

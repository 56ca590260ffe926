package domain

import (
	"errors"
	"fmt"
)

// 编排器对外暴露的四种错误类别。调用方用 errors.Is 区分。
var (
	// ErrInvalidTransition 表示请求的边不在状态机中（或被时间/次数守卫关闭）。
	// 属于调用方错误，永远不应重试。
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrForbidden 表示边是合法的，但该角色无权触发。
	ErrForbidden = errors.New("forbidden")
	// ErrConflict 表示输掉了一次并发的 compare-and-set 竞争。
	// 执行器内部会带着新读取的状态自动重试一次，之后才会向外暴露。
	ErrConflict = errors.New("transition conflict")
	// ErrNotFound 表示订单不存在。
	ErrNotFound = errors.New("order not found")
)

// NewInvalidTransition 构造带边信息的 ErrInvalidTransition。
func NewInvalidTransition(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// NewForbidden 构造带角色信息的 ErrForbidden。
func NewForbidden(role Role, from, to Status) error {
	return fmt.Errorf("%w: role %s may not request %s -> %s", ErrForbidden, role, from, to)
}

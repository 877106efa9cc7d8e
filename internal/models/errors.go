package models

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable 存储层暂时不可用
// 提交过程中出现该错误时事件状态未知，调用方可退避重试；
// 重试不保证幂等，可能产生重复的日志条目
var ErrStoreUnavailable = errors.New("telemetry store unavailable")

// ValidationError 输入校验错误，不会触发存储操作，也不应自动重试
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid telemetry event: field %s: %s", e.Field, e.Reason)
}

// IsValidationError 判断是否为输入校验错误
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

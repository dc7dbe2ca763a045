package errs

import (
	"errors"
	"fmt"
)

// 业务哨兵错误
var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateReference = errors.New("payment reference already used")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrExpired            = errors.New("commitment window expired")
	ErrForbidden          = errors.New("operation not allowed for this user")
	ErrAlreadyResolved    = errors.New("already resolved")
	ErrAlreadyExists      = errors.New("already exists")
)

// ValidationError 输入校验错误，同步拒绝，不重试
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Validationf 构造校验错误
func Validationf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ExternalError 外部服务错误（网关超时/5xx），幂等调用可有限重试
type ExternalError struct {
	Service string
	Op      string
	Err     error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

// External 构造外部服务错误
func External(service, op string, err error) error {
	return &ExternalError{Service: service, Op: op, Err: err}
}

// IsValidation 是否为校验错误
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsConflict 是否为状态冲突（已决定的确定性结果，不重试）
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateReference) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrAlreadyResolved) ||
		errors.Is(err, ErrAlreadyExists)
}

// IsExternal 是否为外部服务错误
func IsExternal(err error) bool {
	var e *ExternalError
	return errors.As(err, &e)
}

package errors

import "errors"

// permanentError 标记不应由支付网关重试的错误
// 校验失败、数据不一致等问题重试不会恢复，webhook 层对其记录日志并返回 2xx
type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent 将错误标记为永久性错误
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent 判断错误是否为永久性错误
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// signatureError 标记签名校验失败的投递
// 载荷不可信，入口层应答 4xx 直接拒绝，而不是 5xx 让支付网关在整个重试窗口内重投
type signatureError struct {
	err error
}

func (e *signatureError) Error() string {
	return e.err.Error()
}

func (e *signatureError) Unwrap() error {
	return e.err
}

// InvalidSignature 将错误标记为签名校验失败
func InvalidSignature(err error) error {
	if err == nil {
		return nil
	}
	return &signatureError{err: err}
}

// IsInvalidSignature 判断错误是否为签名校验失败
func IsInvalidSignature(err error) bool {
	var se *signatureError
	return errors.As(err, &se)
}

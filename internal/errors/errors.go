// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 生成流程的错误分类
	ErrorTypeInvalidInput      ErrorType = "invalid_input"      // 输入参数无法生成任何场景
	ErrorTypeMissingCredential ErrorType = "missing_credential" // 密钥池为空
	ErrorTypeAuthentication    ErrorType = "authentication"     // 外部服务拒绝密钥，触发剔除
	ErrorTypeResponseFormat    ErrorType = "response_format"    // 外部响应无法解析为预期结构
	ErrorTypeTransport         ErrorType = "transport"          // 网络或其他传输层失败
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeProcessing        ErrorType = "processing_error"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewInvalidInputError 创建输入校验错误
func NewInvalidInputError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeInvalidInput, message, originalError)
}

// NewMissingCredentialError 创建密钥池为空错误
func NewMissingCredentialError(message string) *AppError {
	return NewAppError(ErrorTypeMissingCredential, message, nil)
}

// NewAuthenticationError 创建外部服务鉴权失败错误
func NewAuthenticationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeAuthentication, message, originalError)
}

// NewResponseFormatError 创建响应格式错误
func NewResponseFormatError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeResponseFormat, message, originalError)
}

// NewTransportError 创建传输层错误
func NewTransportError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeTransport, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeProcessing, message, originalError)
}

func isType(err error, t ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == t
	}
	return false
}

// IsInvalidInputError 检查是否为输入校验错误
func IsInvalidInputError(err error) bool {
	return isType(err, ErrorTypeInvalidInput)
}

// IsMissingCredentialError 检查是否为密钥池为空错误
func IsMissingCredentialError(err error) bool {
	return isType(err, ErrorTypeMissingCredential)
}

// IsAuthenticationError 检查是否为鉴权失败错误
func IsAuthenticationError(err error) bool {
	return isType(err, ErrorTypeAuthentication)
}

// IsResponseFormatError 检查是否为响应格式错误
func IsResponseFormatError(err error) bool {
	return isType(err, ErrorTypeResponseFormat)
}

// IsTransportError 检查是否为传输层错误
func IsTransportError(err error) bool {
	return isType(err, ErrorTypeTransport)
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeInvalidInput:
		return "INVALID_INPUT"
	case ErrorTypeMissingCredential:
		return "MISSING_CREDENTIAL"
	case ErrorTypeAuthentication:
		return "AUTHENTICATION_FAILURE"
	case ErrorTypeResponseFormat:
		return "RESPONSE_FORMAT"
	case ErrorTypeTransport:
		return "TRANSPORT_FAILURE"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeProcessing:
		return "PROCESSING_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，保留原始类型，只叠加消息
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	return NewAppError(errType, message, err)
}

package models

import (
	"errors"
	"fmt"
)

// Kind 失败分类
type Kind string

const (
	KindElementUnresolvable    Kind = "ElementUnresolvable"    // 所有定位策略均失败
	KindCategoryNotFound       Kind = "CategoryNotFound"       // 文献类型未注册定位策略
	KindNavigationTimeout      Kind = "NavigationTimeout"      // 导航或页面加载超时
	KindPermissionRequired     Kind = "PermissionRequired"     // 需要付费或登录
	KindDownloadControlMissing Kind = "DownloadControlMissing" // 未找到下载按钮
	KindUnclassified           Kind = "UnclassifiedFailure"    // 其他错误
)

// AcquireError 带分类的错误
type AcquireError struct {
	Kind Kind   // 分类
	Op   string // 出错的操作
	Err  error  // 底层错误
}

// NewError 创建分类错误
func NewError(kind Kind, op string, err error) *AcquireError {
	return &AcquireError{Kind: kind, Op: op, Err: err}
}

// Error 实现error接口
func (e *AcquireError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s [%s]", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

// Unwrap 支持errors.Unwrap
func (e *AcquireError) Unwrap() error {
	return e.Err
}

// KindOf 返回错误链中第一个分类,没有则为 KindUnclassified
func KindOf(err error) Kind {
	var ae *AcquireError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnclassified
}

// IsKind 判断错误链中是否包含指定分类
func IsKind(err error, kind Kind) bool {
	var ae *AcquireError
	for err != nil {
		if !errors.As(err, &ae) {
			return false
		}
		if ae.Kind == kind {
			return true
		}
		err = ae.Err
	}
	return false
}

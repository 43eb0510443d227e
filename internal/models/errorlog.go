package models

import (
	"time"
)

// 错误码
const (
	ErrorCodeRunFailed    = "E002" // 运行级失败(浏览器/检索/分类阶段)
	ErrorCodeRecordFailed = "E005" // 单篇文献下载失败
)

// ErrorRecord 结构化错误记录,用于事后排查
type ErrorRecord struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	ErrorCode    string                 `json:"error_code"`
	ErrorMessage string                 `json:"error_message"`
	Kind         Kind                   `json:"kind,omitempty"`
	PaperTitle   string                 `json:"paper_title,omitempty"`
	Context      map[string]interface{} `json:"context,omitempty"`
}

// NewErrorRecord 根据错误创建记录
func NewErrorRecord(code string, err error) ErrorRecord {
	rec := ErrorRecord{
		ID:        generateID(),
		Timestamp: time.Now(),
		ErrorCode: code,
		Context:   make(map[string]interface{}),
	}
	if err != nil {
		rec.ErrorMessage = err.Error()
		rec.Kind = KindOf(err)
	}
	return rec
}

// WithContext 附加上下文信息
func (r ErrorRecord) WithContext(key string, value interface{}) ErrorRecord {
	if r.Context == nil {
		r.Context = make(map[string]interface{})
	}
	r.Context[key] = value
	return r
}

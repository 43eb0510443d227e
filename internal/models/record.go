package models

// Record 检索结果中的一条文献
// Title 是唯一必填字段
type Record struct {
	Title     string `json:"title"`
	Authors   string `json:"authors,omitempty"`
	Source    string `json:"source,omitempty"`
	Year      string `json:"year,omitempty"`
	DetailURL string `json:"detail_url,omitempty"` // 绝对地址或站内相对地址
}

// ShortTitle 截断标题用于日志显示
func (r Record) ShortTitle() string {
	runes := []rune(r.Title)
	if len(runes) <= 50 {
		return r.Title
	}
	return string(runes[:50]) + "..."
}

package models

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DocumentCategory 文献类型
type DocumentCategory string

const (
	CategoryJournal      DocumentCategory = "学术期刊"
	CategoryDissertation DocumentCategory = "学位论文"
	CategoryConference   DocumentCategory = "会议"
	CategoryNewspaper    DocumentCategory = "报纸"
	CategoryYearbook     DocumentCategory = "年鉴"
	CategoryPatent       DocumentCategory = "专利"
	CategoryStandard     DocumentCategory = "标准"
	CategoryAchievement  DocumentCategory = "成果"
	CategoryCollection   DocumentCategory = "学术辑刊"
	CategoryBook         DocumentCategory = "图书"
	CategoryLibrary      DocumentCategory = "文库"
)

// AllCategories 支持的全部文献类型(按站点导航栏顺序)
var AllCategories = []DocumentCategory{
	CategoryJournal,
	CategoryDissertation,
	CategoryConference,
	CategoryNewspaper,
	CategoryYearbook,
	CategoryPatent,
	CategoryStandard,
	CategoryAchievement,
	CategoryCollection,
	CategoryBook,
	CategoryLibrary,
}

// IsKnown 是否为支持的文献类型
func (c DocumentCategory) IsKnown() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory 解析文献类型名称
func ParseCategory(name string) (DocumentCategory, error) {
	c := DocumentCategory(strings.TrimSpace(name))
	if !c.IsKnown() {
		return "", NewError(KindCategoryNotFound, "解析文献类型", fmt.Errorf("未知的文献类型: %s", name))
	}
	return c, nil
}

// AcquisitionRequest 一次下载任务的请求
// 创建后不可修改
type AcquisitionRequest struct {
	SearchTerm        string           `json:"search_term" validate:"required"`
	DesiredCount      int              `json:"desired_count" validate:"gt=0"`
	Category          DocumentCategory `json:"category" validate:"required"`
	DestinationFolder string           `json:"destination_folder" validate:"required"`
}

var requestValidator = validator.New()

// NewAcquisitionRequest 创建请求,目标目录会被解析为绝对路径
// 目录是否可写由调用方通过 utils.ValidateDestination 检查
func NewAcquisitionRequest(term string, count int, category DocumentCategory, dest string) (AcquisitionRequest, error) {
	req := AcquisitionRequest{
		SearchTerm:   strings.TrimSpace(term),
		DesiredCount: count,
		Category:     category,
	}

	if dest != "" {
		abs, err := filepath.Abs(dest)
		if err != nil {
			return AcquisitionRequest{}, fmt.Errorf("解析保存目录失败: %w", err)
		}
		req.DestinationFolder = abs
	}

	if err := req.Validate(); err != nil {
		return AcquisitionRequest{}, err
	}
	return req, nil
}

// Validate 验证请求字段
func (r AcquisitionRequest) Validate() error {
	if err := requestValidator.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			switch fe.Field() {
			case "DesiredCount":
				return fmt.Errorf("下载数量必须大于0,当前值: %d", r.DesiredCount)
			case "SearchTerm":
				return fmt.Errorf("检索关键词不能为空")
			case "DestinationFolder":
				return fmt.Errorf("保存目录不能为空")
			case "Category":
				return fmt.Errorf("文献类型不能为空")
			}
		}
		return fmt.Errorf("请求参数无效: %w", err)
	}
	if !r.Category.IsKnown() {
		return NewError(KindCategoryNotFound, "验证请求", fmt.Errorf("未知的文献类型: %s", r.Category))
	}
	if !filepath.IsAbs(r.DestinationFolder) {
		return fmt.Errorf("保存目录必须是绝对路径: %s", r.DestinationFolder)
	}
	return nil
}

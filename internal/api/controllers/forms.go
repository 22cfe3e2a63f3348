package controllers

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"dev365-portal/internal/models"
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

const (
	maxProjectName = 100
	maxDescription = 2000
	maxSubject     = 150
	maxMessage     = 3000
)

// RequestForm 网站需求表单，features和referenceLinks为逗号分隔的字符串
type RequestForm struct {
	ProjectName         string             `json:"projectName"`
	Description         string             `json:"description"`
	ProjectType         models.ProjectType `json:"projectType"`
	ContactName         string             `json:"contactName"`
	ContactEmail        string             `json:"contactEmail"`
	ContactPhone        string             `json:"contactPhone"`
	PagesRequired       *int               `json:"pagesRequired,omitempty"`
	Features            string             `json:"features"`
	ReferenceLinks      string             `json:"referenceLinks"`
	RecommendedTemplate string             `json:"recommendedTemplate,omitempty"`
	SelectedPlan        string             `json:"selectedPlan,omitempty"`
}

// Validate 按表单规则校验，返回第一条错误
func (f *RequestForm) Validate() error {
	switch {
	case strings.TrimSpace(f.ProjectName) == "":
		return fmt.Errorf("Project name is required")
	case utf8.RuneCountInString(f.ProjectName) > maxProjectName:
		return fmt.Errorf("Project name must be at most %d characters", maxProjectName)
	case strings.TrimSpace(f.Description) == "":
		return fmt.Errorf("Description is required")
	case utf8.RuneCountInString(f.Description) > maxDescription:
		return fmt.Errorf("Description must be at most %d characters", maxDescription)
	case !f.ProjectType.Valid():
		return fmt.Errorf("Please select a valid project type")
	case strings.TrimSpace(f.ContactName) == "":
		return fmt.Errorf("Contact name is required")
	case strings.TrimSpace(f.ContactEmail) == "":
		return fmt.Errorf("Contact email is required")
	case !emailPattern.MatchString(f.ContactEmail):
		return fmt.Errorf("Please provide a valid email")
	case strings.TrimSpace(f.ContactPhone) == "":
		return fmt.Errorf("Contact phone is required")
	case f.PagesRequired != nil && *f.PagesRequired < 1:
		return fmt.Errorf("Pages required must be a positive number")
	}
	return nil
}

// DTO 转换为后端请求体
func (f *RequestForm) DTO() models.CreateWebsiteRequestDTO {
	return models.CreateWebsiteRequestDTO{
		ProjectName:         f.ProjectName,
		Description:         f.Description,
		ProjectType:         f.ProjectType,
		ContactName:         f.ContactName,
		ContactEmail:        f.ContactEmail,
		ContactPhone:        f.ContactPhone,
		PagesRequired:       f.PagesRequired,
		Features:            splitList(f.Features),
		ReferenceLinks:      splitList(f.ReferenceLinks),
		RecommendedTemplate: f.RecommendedTemplate,
		SelectedPlan:        f.SelectedPlan,
	}
}

// PatchDTO 编辑表单提交完整内容，转换为PATCH请求体
func (f *RequestForm) PatchDTO() models.UpdateWebsiteRequestDTO {
	dto := f.DTO()
	patch := models.UpdateWebsiteRequestDTO{
		ProjectName:    &dto.ProjectName,
		Description:    &dto.Description,
		ProjectType:    &dto.ProjectType,
		ContactName:    &dto.ContactName,
		ContactEmail:   &dto.ContactEmail,
		ContactPhone:   &dto.ContactPhone,
		PagesRequired:  dto.PagesRequired,
		Features:       dto.Features,
		ReferenceLinks: dto.ReferenceLinks,
	}
	if dto.RecommendedTemplate != "" {
		patch.RecommendedTemplate = &dto.RecommendedTemplate
	}
	if dto.SelectedPlan != "" {
		patch.SelectedPlan = &dto.SelectedPlan
	}
	return patch
}

// SupportForm 支持工单表单
type SupportForm struct {
	WebsiteID string                 `json:"websiteId"`
	Category  models.SupportCategory `json:"category"`
	Subject   string                 `json:"subject"`
	Message   string                 `json:"message"`
}

// Validate 按表单规则校验，返回第一条错误
func (f *SupportForm) Validate() error {
	switch {
	case f.WebsiteID == "":
		return fmt.Errorf("Please select a website")
	case f.Category == "":
		return fmt.Errorf("Please select an issue type")
	case !f.Category.Valid():
		return fmt.Errorf("Please select a valid issue type")
	case strings.TrimSpace(f.Subject) == "":
		return fmt.Errorf("Subject is required")
	case utf8.RuneCountInString(f.Subject) > maxSubject:
		return fmt.Errorf("Subject must be less than %d characters", maxSubject)
	case strings.TrimSpace(f.Message) == "":
		return fmt.Errorf("Message is required")
	case utf8.RuneCountInString(f.Message) > maxMessage:
		return fmt.Errorf("Message must be less than %d characters", maxMessage)
	}
	return nil
}

// DTO 转换为后端请求体
func (f *SupportForm) DTO() models.CreateSupportRequestDTO {
	return models.CreateSupportRequestDTO{
		WebsiteID: f.WebsiteID,
		Category:  f.Category,
		Subject:   strings.TrimSpace(f.Subject),
		Message:   strings.TrimSpace(f.Message),
	}
}

// splitList 拆分逗号分隔的列表，去掉空白和空项
func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

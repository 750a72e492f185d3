// internal/llm/interface.go
package llm

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// 错误定义
var (
	ErrUnknownProvider = errors.New("未知的AI提供者")
	ErrNoCandidates    = errors.New("模型未返回任何结果")
)

// Blob 内联二进制数据（图片）
type Blob struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// Part 多模态请求的一个片段：文本或内联图片
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inline_data,omitempty"`
}

// TextPart 构造文本片段
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart 构造图片片段
func ImagePart(mime string, data []byte) Part {
	return Part{InlineData: &Blob{MIMEType: mime, Data: data}}
}

// ContentRequest 请求参数标准化
type ContentRequest struct {
	Model string `json:"model,omitempty"`
	Parts []Part `json:"parts"`

	// 结构化输出
	ResponseMIMEType string                 `json:"response_mime_type,omitempty"`
	ResponseSchema   map[string]interface{} `json:"response_schema,omitempty"`

	// 图像生成
	AspectRatio        string   `json:"aspect_ratio,omitempty"`
	ImageSize          string   `json:"image_size,omitempty"`
	ResponseModalities []string `json:"response_modalities,omitempty"`

	Temperature float32 `json:"temperature,omitempty"`
}

// ContentResponse 响应结构标准化
type ContentResponse struct {
	Text         string `json:"text"`
	Images       []Blob `json:"images,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	TokensUsed   int    `json:"tokens_used,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
}

// FirstImage 返回第一张图片
func (r *ContentResponse) FirstImage() (Blob, bool) {
	if r == nil || len(r.Images) == 0 {
		return Blob{}, false
	}
	return r.Images[0], true
}

// Provider 定义所有LLM提供者必须实现的接口
type Provider interface {
	// 初始化提供者，传入配置
	Initialize(config map[string]string) error

	// 获取提供者名称
	GetName() string

	// 获取支持的模型列表
	GetSupportedModels() []string

	// 多模态内容生成
	GenerateContent(ctx context.Context, req ContentRequest) (*ContentResponse, error)
}

// ProviderFactory 提供者工厂函数
type ProviderFactory func() Provider

var (
	providers   = make(map[string]ProviderFactory)
	providersMu sync.RWMutex
)

// Register 注册提供者工厂
func Register(name string, factory ProviderFactory) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[name] = factory
}

// GetProvider 创建指定名称的提供者实例
func GetProvider(name string, config map[string]string) (Provider, error) {
	providersMu.RLock()
	factory, exists := providers[name]
	providersMu.RUnlock()
	if !exists {
		return nil, ErrUnknownProvider
	}

	provider := factory()
	if err := provider.Initialize(config); err != nil {
		return nil, err
	}
	return provider, nil
}

// ListProviders 返回所有已注册的提供者名称
func ListProviders() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

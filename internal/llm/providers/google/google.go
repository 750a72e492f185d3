// internal/llm/providers/google/google.go
package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Corphon/VogueVault/internal/llm"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

func init() {
	llm.Register("google", func() llm.Provider {
		return &Provider{
			models: []string{
				"gemini-2.5-flash",
				"gemini-2.5-flash-image",
				"gemini-3-pro-image-preview",
			},
			baseURL: defaultBaseURL,
		}
	})
}

type Provider struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	defaultModel string
	models       []string
}

// 请求体中的片段
type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey, exists := config["api_key"]
	if !exists || apiKey == "" {
		return errors.New("google_api密钥未提供")
	}
	p.apiKey = apiKey

	timeout := 60 * time.Second
	if v, err := strconv.Atoi(config["timeout_seconds"]); err == nil && v > 0 {
		timeout = time.Duration(v) * time.Second
	}
	p.client = &http.Client{Timeout: timeout}

	if model, exists := config["default_model"]; exists && model != "" {
		p.defaultModel = model
	} else {
		p.defaultModel = "gemini-2.5-flash"
	}

	if baseURL, exists := config["base_url"]; exists && baseURL != "" {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
	if p.baseURL == "" {
		p.baseURL = defaultBaseURL
	}

	return nil
}

func (p *Provider) GetName() string {
	return "google gemini"
}

func (p *Provider) GetSupportedModels() []string {
	return p.models
}

// buildRequestBody 将标准请求转换为Gemini generateContent请求体
func buildRequestBody(req llm.ContentRequest) map[string]interface{} {
	parts := make([]part, 0, len(req.Parts))
	for _, pt := range req.Parts {
		if pt.InlineData != nil {
			parts = append(parts, part{InlineData: &inlineData{
				MimeType: pt.InlineData.MIMEType,
				Data:     base64.StdEncoding.EncodeToString(pt.InlineData.Data),
			}})
			continue
		}
		parts = append(parts, part{Text: pt.Text})
	}

	requestBody := map[string]interface{}{
		"contents": []content{{Role: "user", Parts: parts}},
	}

	generationConfig := map[string]interface{}{}
	if req.Temperature > 0 {
		generationConfig["temperature"] = req.Temperature
	}
	if req.ResponseMIMEType != "" {
		generationConfig["responseMimeType"] = req.ResponseMIMEType
	}
	if req.ResponseSchema != nil {
		generationConfig["responseSchema"] = req.ResponseSchema
	}
	if len(req.ResponseModalities) > 0 {
		generationConfig["responseModalities"] = req.ResponseModalities
	}
	if req.AspectRatio != "" || req.ImageSize != "" {
		imageConfig := map[string]interface{}{}
		if req.AspectRatio != "" {
			imageConfig["aspectRatio"] = req.AspectRatio
		}
		if req.ImageSize != "" {
			imageConfig["imageSize"] = req.ImageSize
		}
		generationConfig["imageConfig"] = imageConfig
	}
	if len(generationConfig) > 0 {
		requestBody["generationConfig"] = generationConfig
	}

	return requestBody
}

// GenerateContent 调用 models/{model}:generateContent
func (p *Provider) GenerateContent(ctx context.Context, req llm.ContentRequest) (*llm.ContentResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	if len(req.Parts) == 0 {
		return nil, errors.New("请求内容为空")
	}

	jsonData, err := json.Marshal(buildRequestBody(req))
	if err != nil {
		return nil, err
	}

	apiURL := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, url.PathEscape(model))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		// 错误信息中只保留模型名，不带请求地址
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return nil, fmt.Errorf("gemini请求失败(%s): %w", model, urlErr.Err)
		}
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errorResp map[string]interface{}
		body, _ := io.ReadAll(httpResp.Body)
		if err := json.Unmarshal(body, &errorResp); err == nil {
			if errorObj, ok := errorResp["error"].(map[string]interface{}); ok {
				return nil, fmt.Errorf("google gemini API错误(%d): %v",
					httpResp.StatusCode, errorObj["message"])
			}
		}
		return nil, fmt.Errorf("google gemini API错误(%d): %s", httpResp.StatusCode, string(body))
	}

	var response generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("解析gemini响应失败: %w", err)
	}
	if len(response.Candidates) == 0 {
		return nil, llm.ErrNoCandidates
	}

	candidate := response.Candidates[0]
	result := &llm.ContentResponse{
		FinishReason: candidate.FinishReason,
		TokensUsed:   response.UsageMetadata.TotalTokenCount,
		ModelName:    model,
		ProviderName: p.GetName(),
	}

	var text strings.Builder
	for _, pt := range candidate.Content.Parts {
		if pt.InlineData != nil {
			data, err := base64.StdEncoding.DecodeString(pt.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("解码图片数据失败: %w", err)
			}
			result.Images = append(result.Images, llm.Blob{MIMEType: pt.InlineData.MimeType, Data: data})
			continue
		}
		text.WriteString(pt.Text)
	}
	result.Text = text.String()

	return result, nil
}

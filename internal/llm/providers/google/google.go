// internal/llm/providers/google/google.go
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/Corphon/VideoScriptStudio/internal/errors"
	"github.com/Corphon/VideoScriptStudio/internal/llm"
)

func init() {
	llm.Register("google", func() llm.Provider {
		return &Provider{}
	})
}

// Provider 实现Google Gemini API（REST v1beta，支持responseSchema结构化输出）
type Provider struct {
	apiKey       string
	baseURL      string
	defaultModel string
	client       *http.Client
}

// geminiRequest 请求结构
type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float32                `json:"temperature,omitempty"`
	MaxOutputTokens  int                    `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string                 `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]interface{} `json:"responseSchema,omitempty"`
}

// geminiResponse 响应结构
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Initialize 初始化提供者
func (p *Provider) Initialize(config map[string]string) error {
	apiKey, exists := config["api_key"]
	if !exists || apiKey == "" {
		return apperrors.NewMissingCredentialError("Google API密钥未提供")
	}
	p.apiKey = apiKey

	p.baseURL = config["base_url"]
	if p.baseURL == "" {
		p.baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	p.defaultModel = config["default_model"]
	if p.defaultModel == "" {
		p.defaultModel = "gemini-1.5-pro"
	}

	p.client = &http.Client{
		Timeout: 120 * time.Second,
	}
	return nil
}

// GetName 获取提供者名称
func (p *Provider) GetName() string {
	return "Google Gemini"
}

// CompleteText 文本生成
func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	geminiReq := geminiRequest{
		Contents: []geminiContent{
			{
				Role:  "user",
				Parts: []geminiPart{{Text: req.Prompt}},
			},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      req.Temperature,
			MaxOutputTokens:  req.MaxTokens,
			ResponseMIMEType: req.ResponseMIMEType,
			ResponseSchema:   req.ResponseSchema,
		},
	}

	reqBody, err := json.Marshal(geminiReq)
	if err != nil {
		return nil, apperrors.NewInvalidInputError("序列化请求失败", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, apperrors.NewTransportError("创建HTTP请求失败", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewTransportError("Gemini API请求失败", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewTransportError("读取响应失败", err)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return nil, apperrors.NewResponseFormatError(
			fmt.Sprintf("解析Gemini响应失败 (状态码 %d)", resp.StatusCode), err)
	}

	if resp.StatusCode != http.StatusOK || geminiResp.Error != nil {
		return nil, p.classifyAPIError(resp.StatusCode, &geminiResp)
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return nil, apperrors.NewResponseFormatError("Gemini响应中没有候选内容", nil)
	}

	candidate := geminiResp.Candidates[0]
	return &llm.CompletionResponse{
		Text:         candidate.Content.Parts[0].Text,
		FinishReason: candidate.FinishReason,
		TokensUsed:   geminiResp.UsageMetadata.TotalTokenCount,
		PromptTokens: geminiResp.UsageMetadata.PromptTokenCount,
		OutputTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
		ModelName:    model,
		ProviderName: p.GetName(),
	}, nil
}

// classifyAPIError 区分认证失败与其他传输错误，用于密钥淘汰判定
func (p *Provider) classifyAPIError(statusCode int, resp *geminiResponse) error {
	message := "未知API错误"
	status := ""
	if resp.Error != nil {
		message = resp.Error.Message
		status = resp.Error.Status
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return apperrors.NewAuthenticationError(
			fmt.Sprintf("Gemini认证失败: %s", message), nil)
	case statusCode == http.StatusBadRequest &&
		(strings.Contains(message, "API key not valid") ||
			strings.Contains(message, "API_KEY_INVALID") ||
			status == "INVALID_ARGUMENT" && strings.Contains(strings.ToLower(message), "api key")):
		return apperrors.NewAuthenticationError(
			fmt.Sprintf("Gemini API密钥无效: %s", message), nil)
	default:
		return apperrors.NewTransportError(
			fmt.Sprintf("Gemini API错误 (状态码 %d): %s", statusCode, message), nil)
	}
}

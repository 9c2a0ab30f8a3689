// internal/llm/providers/openai/openai.go
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	apperrors "github.com/Corphon/VideoScriptStudio/internal/errors"
	"github.com/Corphon/VideoScriptStudio/internal/llm"
)

func init() {
	llm.Register("openai", func() llm.Provider {
		return &Provider{}
	})
}

// Provider 实现OpenAI API作为备选提供者
type Provider struct {
	apiKey       string
	defaultModel string
	client       *goopenai.Client
}

// Initialize 初始化提供者
func (p *Provider) Initialize(config map[string]string) error {
	apiKey, exists := config["api_key"]
	if !exists || apiKey == "" {
		return apperrors.NewMissingCredentialError("OpenAI API密钥未提供")
	}
	p.apiKey = apiKey

	p.defaultModel = config["default_model"]
	if p.defaultModel == "" {
		p.defaultModel = goopenai.GPT4o
	}

	clientConfig := goopenai.DefaultConfig(apiKey)
	if baseURL := config["base_url"]; baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	p.client = goopenai.NewClientWithConfig(clientConfig)
	return nil
}

// GetName 获取提供者名称
func (p *Provider) GetName() string {
	return "OpenAI"
}

// CompleteText 文本生成
func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	chatReq := goopenai.ChatCompletionRequest{
		Model: model,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role:    goopenai.ChatMessageRoleUser,
				Content: req.Prompt,
			},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	// OpenAI不支持responseSchema，退化为JSON对象模式并依赖提示词描述结构
	if req.ResponseMIMEType == "application/json" {
		chatReq.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, p.classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, apperrors.NewResponseFormatError("OpenAI响应中没有选择项", nil)
	}

	choice := resp.Choices[0]
	return &llm.CompletionResponse{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		TokensUsed:   resp.Usage.TotalTokens,
		PromptTokens: resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		ModelName:    model,
		ProviderName: p.GetName(),
	}, nil
}

// classifyError 区分认证失败与传输错误
func (p *Provider) classifyError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusUnauthorized ||
			apiErr.HTTPStatusCode == http.StatusForbidden {
			return apperrors.NewAuthenticationError(
				fmt.Sprintf("OpenAI认证失败: %s", apiErr.Message), nil)
		}
		return apperrors.NewTransportError(
			fmt.Sprintf("OpenAI API错误 (状态码 %d): %s", apiErr.HTTPStatusCode, apiErr.Message), nil)
	}
	return apperrors.NewTransportError("OpenAI API请求失败", err)
}

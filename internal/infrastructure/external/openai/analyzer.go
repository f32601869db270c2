package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/garyjia/invoice-reimbursement/internal/ai"
	"github.com/garyjia/invoice-reimbursement/internal/application/port"
	"github.com/garyjia/invoice-reimbursement/internal/domain/entity"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Config holds the settings for the OpenAI-compatible chat endpoint
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string // empty means the public OpenAI endpoint
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	PromptsPath string
}

// Analyzer implements port.InvoiceAnalyzer using a chat completion model
type Analyzer struct {
	client  *openai.Client
	cfg     Config
	prompts *PromptConfig
	logger  *zap.Logger
}

// NewAnalyzer creates a new analyzer. A missing API key is not an error here:
// the analyzer is built and every call reports ai.ErrNotConfigured instead.
func NewAnalyzer(cfg Config, logger *zap.Logger) (*Analyzer, error) {
	prompts, err := LoadPrompts(cfg.PromptsPath)
	if err != nil {
		return nil, err
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	if cfg.APIKey == "" {
		logger.Warn("No language model API key configured; invoices will be declined until one is set")
	}

	return &Analyzer{
		client:  openai.NewClientWithConfig(clientCfg),
		cfg:     cfg,
		prompts: prompts,
		logger:  logger,
	}, nil
}

// Analyze asks the model to adjudicate one invoice against the policy
func (a *Analyzer) Analyze(ctx context.Context, policyText, invoiceFilename, invoiceText string) (*entity.InvoiceVerdict, error) {
	if a.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %w", ai.ErrAnalysis, ai.ErrNotConfigured)
	}

	userPrompt, err := renderTemplate(a.prompts.InvoiceAdjudication.UserTemplate, adjudicationInput{
		PolicyText:      policyText,
		InvoiceFilename: invoiceFilename,
		InvoiceText:     invoiceText,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ai.ErrAnalysis, err)
	}

	req := a.buildRequest(userPrompt)

	a.logger.Debug("Requesting invoice adjudication",
		zap.String("invoice", invoiceFilename),
		zap.String("model", req.Model),
		zap.Int("policy_chars", len(policyText)),
		zap.Int("invoice_chars", len(invoiceText)))

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		a.logger.Error("Chat completion call failed",
			zap.String("invoice", invoiceFilename),
			zap.Error(err))
		return nil, fmt.Errorf("%w: failed to analyze invoice %s with LLM: %v", ai.ErrAnalysis, invoiceFilename, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response from model for invoice %s", ai.ErrAnalysis, invoiceFilename)
	}

	content := resp.Choices[0].Message.Content
	verdict, err := ai.ParseVerdict(content, invoiceFilename)
	if err != nil {
		a.logger.Error("Failed to parse model response",
			zap.String("invoice", invoiceFilename),
			zap.String("content", content),
			zap.Error(err))
		return nil, err
	}

	a.logger.Info("Invoice adjudicated",
		zap.String("invoice", invoiceFilename),
		zap.String("status", string(verdict.Status)),
		zap.Int("reimbursable_amount", verdict.ReimbursableAmount))

	return verdict, nil
}

func (a *Analyzer) buildRequest(userPrompt string) openai.ChatCompletionRequest {
	p := a.prompts.InvoiceAdjudication

	temperature := p.Temperature
	if a.cfg.Temperature > 0 {
		temperature = a.cfg.Temperature
	}
	maxTokens := p.MaxTokens
	if a.cfg.MaxTokens > 0 {
		maxTokens = a.cfg.MaxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: p.System},
	}
	if p.Acknowledgement != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: p.Acknowledgement,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userPrompt,
	})

	return openai.ChatCompletionRequest{
		Model:       a.cfg.Model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages:    messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
}

// Verify interface compliance
var _ port.InvoiceAnalyzer = (*Analyzer)(nil)

// Package embedding はプロンプトテキストの埋め込みベクトル生成を提供する。
package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Client は埋め込みAPIのクライアント。
// 固定モデル・固定次元のfloatベクトルを生成する。
type Client struct {
	api        *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// NewClient はClientの新しいインスタンスを生成する。
// modelには埋め込みモデル名（例: "text-embedding-3-small"）、
// dimensionsには期待するベクトル次元数を指定する。
func NewClient(apiKey, model string, dimensions int) *Client {
	return &Client{
		api:        openai.NewClient(apiKey),
		model:      openai.EmbeddingModel(model),
		dimensions: dimensions,
	}
}

// Embed はプロンプトテキストの埋め込みベクトルを生成する。
// APIが期待次元数以外のベクトルを返した場合はエラーとする。
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          c.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding API returned no data")
	}

	vector := resp.Data[0].Embedding
	if len(vector) != c.dimensions {
		return nil, fmt.Errorf("unexpected embedding dimensions: got %d, want %d", len(vector), c.dimensions)
	}

	return vector, nil
}

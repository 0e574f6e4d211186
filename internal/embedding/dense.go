package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devflowinc/trieve-sub001/internal/errs"
)

// DenseClient calls an OpenAI-shaped embeddings endpoint:
// POST {base_url}/embeddings?api-version=2023-05-15 with
// {model, input: string|[string], truncate: true}, returning
// data[].embedding (spec §6).
type DenseClient struct {
	BaseURL    string
	Model      string
	QueryPrefix string
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

func NewDenseClient(baseURL, model, queryPrefix string, logger *logrus.Logger) *DenseClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DenseClient{
		BaseURL:     baseURL,
		Model:       model,
		QueryPrefix: queryPrefix,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		Logger:      logger,
	}
}

type openAIEmbeddingRequest struct {
	Model    string `json:"model"`
	Input    any    `json:"input"`
	Truncate bool   `json:"truncate"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed embeds each DenseInput, prepending the query prefix for RoleQuery,
// truncating to MaxInputChars, batching BatchSize-at-a-time across
// parallel requests, and folding in any distance phrase. Output order
// matches input order (spec §4.A).
func (c *DenseClient) Embed(ctx context.Context, inputs []DenseInput, role Role) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	// Build the flat list of (text) to embed: each input's own text, plus
	// one extra entry per distance phrase, so phrase vectors come from the
	// same batched round-trips as the inputs they shift.
	type job struct {
		inputIdx  int
		isPhrase  bool
		factor    float32
	}
	var texts []string
	var jobs []job
	for i, in := range inputs {
		text := in.Text
		if role == RoleQuery {
			text = c.QueryPrefix + text
		}
		texts = append(texts, truncate(text))
		jobs = append(jobs, job{inputIdx: i})
		if in.Phrase != nil {
			texts = append(texts, truncate(in.Phrase.Text))
			jobs = append(jobs, job{inputIdx: i, isPhrase: true, factor: in.Phrase.Factor})
		}
	}

	raw, err := c.embedBatched(ctx, texts)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(inputs))
	for i, j := range jobs {
		if j.isPhrase {
			addScaled(out[j.inputIdx], raw[i], j.factor)
		} else {
			out[j.inputIdx] = append([]float32(nil), raw[i]...)
		}
	}
	return out, nil
}

func addScaled(dst, phrase []float32, factor float32) {
	for i := range dst {
		if i < len(phrase) {
			dst[i] += factor * phrase[i]
		}
	}
}

// embedBatched issues BatchSize-chunked requests in parallel and reorders
// the combined results to match the input order.
func (c *DenseClient) embedBatched(ctx context.Context, texts []string) ([][]float32, error) {
	batches := chunk(texts, BatchSize)
	results := make([][][]float32, len(batches))

	var wg sync.WaitGroup
	errCh := make(chan error, len(batches))
	for bi, batch := range batches {
		wg.Add(1)
		go func(bi int, batch []string) {
			defer wg.Done()
			vecs, err := c.embedOne(ctx, batch)
			if err != nil {
				errCh <- err
				return
			}
			results[bi] = vecs
		}(bi, batch)
	}
	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (c *DenseClient) embedOne(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := openAIEmbeddingRequest{Model: c.Model, Input: texts, Truncate: true}
	buf, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errs.Internal("embed_marshal", "failed to encode embedding request", err)
	}

	url := c.BaseURL + "/embeddings?api-version=2023-05-15"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, errs.Internal("embed_request", "failed to build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errs.Transient(errs.CodeRemoteTimeout, "dense embedder request failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.Transient(errs.CodeRemoteStatus,
			fmt.Sprintf("dense embedder returned status %d", resp.StatusCode), nil)
	}

	var parsed openAIEmbeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errs.Internal("embed_decode", "failed to decode embedding response", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, errs.Internal("embed_shape", "embedding response size mismatch", nil)
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, errs.Internal("embed_empty", fmt.Sprintf("no embedding returned for input %d", i), nil)
		}
	}
	return out, nil
}

// Encode implements EmbeddingModel by treating texts as document-role
// inputs with no distance phrase.
func (c *DenseClient) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := make([]DenseInput, len(texts))
	for i, t := range texts {
		inputs[i] = DenseInput{Text: t}
	}
	return c.Embed(ctx, inputs, RoleDoc)
}

func (c *DenseClient) EncodeSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Encode(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *DenseClient) Name() string     { return "dense-http" }
func (c *DenseClient) Provider() string { return "openai-shaped" }

// Dimensions is discovered at insertion time from the returned vectors,
// not declared statically, so this reports 0.
func (c *DenseClient) Dimensions() int { return 0 }
func (c *DenseClient) MaxTokens() int  { return 0 }

func (c *DenseClient) Health(ctx context.Context) error {
	_, err := c.embedOne(ctx, []string{"health check"})
	return err
}

func (c *DenseClient) Close() error { return nil }

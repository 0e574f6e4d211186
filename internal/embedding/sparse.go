package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devflowinc/trieve-sub001/internal/errs"
)

// SparseClient calls POST {origin}/embed_sparse with
// {inputs, encode_type, truncate}, returning [][]TokenWeight (spec §6).
type SparseClient struct {
	Origin     string
	EncodeType string
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

func NewSparseClient(origin, encodeType string, logger *logrus.Logger) *SparseClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if encodeType == "" {
		encodeType = "doc"
	}
	return &SparseClient{
		Origin:     origin,
		EncodeType: encodeType,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger,
	}
}

type sparseEmbedRequest struct {
	Inputs     []string `json:"inputs"`
	EncodeType string   `json:"encode_type"`
	Truncate   bool     `json:"truncate"`
}

type sparseTokenWire struct {
	Index uint32  `json:"index"`
	Value float32 `json:"value"`
}

// Embed embeds each SparseInput's text, then embeds every boost phrase
// through the same remote embedder and multiplies every token weight in
// the content vector whose index is also present in its boost phrase's
// own returned vector by the phrase factor (spec §4.A). The boost
// phrase must go through the remote embedder rather than a local hash:
// the indices an external SPLADE-style model returns live in that
// model's own vocabulary space, which a local token hash has no
// relationship to.
func (c *SparseClient) Embed(ctx context.Context, inputs []SparseInput) ([]SparseVector, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	texts := make([]string, len(inputs))
	for i, in := range inputs {
		texts[i] = truncate(in.Text)
	}

	raw, err := c.embedBatched(ctx, texts)
	if err != nil {
		return nil, err
	}

	type pendingBoost struct {
		inputIndex int
		factor     float32
	}
	var boostTexts []string
	var pending []pendingBoost
	for i, in := range inputs {
		for _, boost := range in.Boosts {
			pending = append(pending, pendingBoost{inputIndex: i, factor: boost.Factor})
			boostTexts = append(boostTexts, truncate(boost.Text))
		}
	}

	out := make([]SparseVector, len(inputs))
	copy(out, raw)
	if len(pending) == 0 {
		return out, nil
	}

	boostVecs, err := c.embedBatched(ctx, boostTexts)
	if err != nil {
		return nil, err
	}
	for i, p := range pending {
		applyBoost(out[p.inputIndex], boostVecs[i], p.factor)
	}
	return out, nil
}

// applyBoost multiplies every token weight in vec whose index also
// appears in boostVec by factor.
func applyBoost(vec SparseVector, boostVec SparseVector, factor float32) {
	wanted := make(map[uint32]bool, len(boostVec))
	for _, tok := range boostVec {
		wanted[tok.Index] = true
	}
	for i := range vec {
		if wanted[vec[i].Index] {
			vec[i].Value *= factor
		}
	}
}

func (c *SparseClient) embedBatched(ctx context.Context, texts []string) ([]SparseVector, error) {
	batches := chunk(texts, BatchSize)
	results := make([][]SparseVector, len(batches))

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

	out := make([]SparseVector, 0, len(texts))
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (c *SparseClient) embedOne(ctx context.Context, texts []string) ([]SparseVector, error) {
	reqBody := sparseEmbedRequest{Inputs: texts, EncodeType: c.EncodeType, Truncate: true}
	buf, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errs.Internal("sparse_marshal", "failed to encode sparse request", err)
	}

	url := strings.TrimRight(c.Origin, "/") + "/embed_sparse"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, errs.Internal("sparse_request", "failed to build sparse request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errs.Transient(errs.CodeRemoteTimeout, "sparse embedder request failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.Transient(errs.CodeRemoteStatus,
			fmt.Sprintf("sparse embedder returned status %d", resp.StatusCode), nil)
	}

	var parsed [][]sparseTokenWire
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errs.Internal("sparse_decode", "failed to decode sparse response", err)
	}
	if len(parsed) != len(texts) {
		return nil, errs.Internal("sparse_shape", "sparse response size mismatch", nil)
	}

	out := make([]SparseVector, len(parsed))
	for i, row := range parsed {
		vec := make(SparseVector, len(row))
		for j, tok := range row {
			vec[j] = TokenWeight{Index: tok.Index, Value: tok.Value}
		}
		out[i] = vec
	}
	return out, nil
}

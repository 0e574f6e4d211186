package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devflowinc/trieve-sub001/internal/errs"
)

// RerankClient calls POST {origin}/rerank with {query, texts, truncate},
// returning [{index, score}] (spec §6). Component H (internal/rerank)
// slices candidates into groups of 20 and calls this per slice.
type RerankClient struct {
	Origin     string
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

func NewRerankClient(origin string, logger *logrus.Logger) *RerankClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RerankClient{
		Origin:     origin,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Logger:     logger,
	}
}

type rerankRequest struct {
	Query    string   `json:"query"`
	Texts    []string `json:"texts"`
	Truncate bool     `json:"truncate"`
}

type rerankResponseItem struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

func (c *RerankClient) Rerank(ctx context.Context, query string, docs []string) ([]RerankResult, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	reqBody := rerankRequest{Query: truncate(query), Texts: docs, Truncate: true}
	buf, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errs.Internal("rerank_marshal", "failed to encode rerank request", err)
	}

	url := strings.TrimRight(c.Origin, "/") + "/rerank"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, errs.Internal("rerank_request", "failed to build rerank request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errs.Transient(errs.CodeRemoteTimeout, "reranker request failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.Transient(errs.CodeRemoteStatus,
			fmt.Sprintf("reranker returned status %d", resp.StatusCode), nil)
	}

	var parsed []rerankResponseItem
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errs.Internal("rerank_decode", "failed to decode rerank response", err)
	}

	out := make([]RerankResult, len(parsed))
	for i, item := range parsed {
		out[i] = RerankResult{Index: item.Index, Score: item.Score}
	}
	return out, nil
}

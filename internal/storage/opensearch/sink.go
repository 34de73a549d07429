// Package opensearch implements the OpenSearch bulk sink.
//
// Documents are sent to the _bulk endpoint as NDJSON index actions. Every
// action names its target index; an explicit _id is sent only when the
// document carries one. The response items are inspected so that documents
// rejected individually are reported instead of silently lost.
package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	opensearchgo "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"catalogindex/internal/document"
	"catalogindex/internal/storage"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// Sink writes documents through the OpenSearch bulk API.
type Sink struct {
	client    *opensearchgo.Client
	transport *http.Transport
}

var _ storage.Sink = (*Sink)(nil)
var _ storage.Pinger = (*Sink)(nil)

// New builds a client for cfg.OpenSearch. TLS verification stays on unless
// InsecureSkipVerify is set. Bulk bodies are gzip-compressed unless the sink
// option "compress" is false. Client-side retries are disabled; the loader
// owns the retry policy.
func New(cfg storage.Config) (*Sink, error) {
	oc := cfg.OpenSearch
	if oc.URL == "" {
		return nil, fmt.Errorf("opensearch: URL is required")
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if oc.InsecureSkipVerify {
		log.Printf("opensearch: WARNING tls verification disabled url=%s", oc.URL)
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client, err := opensearchgo.NewClient(opensearchgo.Config{
		Addresses:           []string{oc.URL},
		Username:            oc.Username,
		Password:            oc.Password,
		Transport:           transport,
		CompressRequestBody: cfg.Options.Bool("compress", true),
		DisableRetry:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("opensearch: create client: %w", err)
	}
	return &Sink{client: client, transport: transport}, nil
}

func init() {
	storage.Register("opensearch", func(_ context.Context, cfg storage.Config) (storage.Sink, error) {
		return New(cfg)
	})
}

// Ping calls the cluster info endpoint.
func (s *Sink) Ping(ctx context.Context) error {
	res, err := opensearchapi.InfoRequest{}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("opensearch: info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("opensearch: info: %w", statusError(res))
	}
	var info struct {
		ClusterName string `json:"cluster_name"`
		Version     struct {
			Number string `json:"number"`
		} `json:"version"`
	}
	if err := json.NewDecoder(res.Body).Decode(&info); err == nil {
		log.Printf("opensearch: connected cluster=%s version=%s", info.ClusterName, info.Version.Number)
	}
	return nil
}

// Bulk sends docs in one _bulk request.
func (s *Sink) Bulk(ctx context.Context, docs []document.Document) (storage.BulkResult, error) {
	if len(docs) == 0 {
		return storage.BulkResult{}, nil
	}
	body, err := EncodeBulk(docs)
	if err != nil {
		return storage.BulkResult{}, storage.Permanent(err)
	}
	res, err := opensearchapi.BulkRequest{Body: bytes.NewReader(body)}.Do(ctx, s.client)
	if err != nil {
		return storage.BulkResult{}, fmt.Errorf("opensearch: bulk: %w", &storage.TransportError{Err: err})
	}
	defer res.Body.Close()
	if res.IsError() {
		return storage.BulkResult{}, statusError(res)
	}
	// The engine accepted the batch; re-sending it would index it twice.
	out, err := DecodeBulkResponse(res.Body, docs)
	if err != nil {
		return storage.BulkResult{}, storage.Permanent(err)
	}
	return out, nil
}

// Close releases idle connections.
func (s *Sink) Close() error {
	s.transport.CloseIdleConnections()
	return nil
}

func statusError(res *opensearchapi.Response) error {
	b, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	return &storage.StatusError{Status: res.StatusCode, Body: string(bytes.TrimSpace(b))}
}

type actionMeta struct {
	Index string `json:"_index"`
	ID    string `json:"_id,omitempty"`
}

// EncodeBulk renders docs as an NDJSON bulk body.
func EncodeBulk(docs []document.Document) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(512 * len(docs))
	for i, d := range docs {
		meta, err := json.Marshal(map[string]actionMeta{"index": {Index: d.Index, ID: d.ID}})
		if err != nil {
			return nil, fmt.Errorf("opensearch: encode action %d: %w", i, err)
		}
		src, err := d.Body()
		if err != nil {
			return nil, fmt.Errorf("opensearch: encode document %d: %w", i, err)
		}
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(src)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

type bulkResponse struct {
	Errors bool                     `json:"errors"`
	Items  []map[string]bulkItemRes `json:"items"`
}

type bulkItemRes struct {
	Index  string `json:"_index"`
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// DecodeBulkResponse maps a _bulk response onto the submitted docs.
func DecodeBulkResponse(r io.Reader, docs []document.Document) (storage.BulkResult, error) {
	var br bulkResponse
	if err := json.NewDecoder(r).Decode(&br); err != nil {
		return storage.BulkResult{}, fmt.Errorf("opensearch: decode bulk response: %w", err)
	}
	if !br.Errors {
		return storage.BulkResult{Indexed: len(docs)}, nil
	}
	var out storage.BulkResult
	for i, item := range br.Items {
		for _, res := range item {
			if res.Status < 300 && res.Error == nil {
				out.Indexed++
				continue
			}
			f := storage.ItemFailure{Position: i, Index: res.Index, ID: res.ID, Status: res.Status}
			if res.Error != nil {
				f.Reason = res.Error.Type + ": " + res.Error.Reason
			}
			out.Failures = append(out.Failures, f)
		}
	}
	return out, nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"

	"github.com/jeranaias/educhat/internal/imaging"
	"github.com/jeranaias/educhat/internal/model"
)

// =============================================================================
// EXCHANGE STATE
// =============================================================================

// State is the lifecycle position of one exchange.
type State int

const (
	StateIdle State = iota
	StateSent
	StateStreaming
	StateCompleted
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSent:
		return "sent"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// =============================================================================
// CLIENT
// =============================================================================

const (
	pathKnowledgeStream = "/chat_with_knowledge_stream"
	pathFilesStream     = "/chat_by_files_stream"
)

// Client issues streaming exchanges against the remote model endpoint.
type Client struct {
	baseURL string
	// No client-side timeout: a hung connection is resolved by the
	// transport's own error surfacing.
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a streaming client for the given base URL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// =============================================================================
// REQUEST
// =============================================================================

// Request is one outgoing turn: the bounded history window (already
// including the new user turn, oldest-first), the question text, and
// any attached files.
type Request struct {
	SessionID string
	Question  string
	History   []model.HistoryEntry
	Files     []*imaging.File
}

// knowledgeBody is the JSON body for the text-only endpoint.
type knowledgeBody struct {
	ConversationID string               `json:"conversation_id"`
	Messages       []model.HistoryEntry `json:"messages"`
}

// =============================================================================
// EXCHANGE
// =============================================================================

// Exchange is one question/answer round trip. It is single-use: Run
// may be called once, after which the exchange rests in Completed or
// Failed.
type Exchange struct {
	client *Client

	mu    sync.Mutex
	state State
}

// NewExchange creates an idle exchange.
func (c *Client) NewExchange() *Exchange {
	return &Exchange{client: c, state: StateIdle}
}

// State returns the exchange's current lifecycle position.
func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Exchange) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Run submits the outgoing turn and consumes the streamed response,
// invoking onDelta for each arriving text fragment. It blocks until the
// stream completes or fails; a non-nil return is always a
// *TransportError and terminal for this exchange.
//
// Transport selection is based solely on whether files are attached:
// text-only turns go to the knowledge endpoint as JSON, turns with
// files go to the files endpoint as multipart.
func (e *Exchange) Run(ctx context.Context, req Request, onDelta func(delta string)) error {
	httpReq, extended, err := e.buildRequest(ctx, req)
	if err != nil {
		e.setState(StateFailed)
		return &TransportError{Err: err}
	}

	e.setState(StateSent)

	resp, err := e.client.httpClient.Do(httpReq)
	if err != nil {
		e.setState(StateFailed)
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		e.setState(StateFailed)
		return &TransportError{Status: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	e.setState(StateStreaming)

	// PERFORMANCE: strings.Builder avoids quadratic allocations
	var accumulated strings.Builder
	reader := NewReader(resp.Body)
	err = reader.Process(ctx, func(payload []byte) {
		delta, ok := ExtractDelta(payload, extended)
		if !ok {
			e.client.logger.Debug("skipping unparseable stream line", "bytes", len(payload))
			return
		}
		accumulated.WriteString(delta)
		onDelta(delta)
	})
	if err != nil {
		e.setState(StateFailed)
		return &TransportError{Partial: accumulated.String(), Err: err}
	}

	e.setState(StateCompleted)
	return nil
}

// buildRequest assembles the HTTP request for the selected transport
// mode. The second return reports whether the extended delta field list
// applies (files endpoint).
func (e *Exchange) buildRequest(ctx context.Context, req Request) (*http.Request, bool, error) {
	if len(req.Files) == 0 {
		body, err := json.Marshal(knowledgeBody{
			ConversationID: req.SessionID,
			Messages:       req.History,
		})
		if err != nil {
			return nil, false, err
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			e.client.baseURL+pathKnowledgeStream, bytes.NewReader(body))
		if err != nil {
			return nil, false, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Cache-Control", "no-cache")
		return httpReq, false, nil
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("question", req.Question); err != nil {
		return nil, false, err
	}
	if err := writer.WriteField("conversation_id", req.SessionID); err != nil {
		return nil, false, err
	}
	for _, file := range req.Files {
		part, err := writer.CreatePart(filePartHeader(file))
		if err != nil {
			return nil, false, err
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, false, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, false, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.client.baseURL+pathFilesStream, &buf)
	if err != nil {
		return nil, false, err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	return httpReq, true, nil
}

// filePartHeader builds the multipart header for one binary part,
// preserving the file's MIME type.
func filePartHeader(file *imaging.File) textproto.MIMEHeader {
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="files"; filename=%q`, file.Name))
	contentType := file.Type
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	return h
}

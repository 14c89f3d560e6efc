package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"receiptanchor/internal/anchoring/models"
	"receiptanchor/internal/platform/config"
	domainerrors "receiptanchor/pkg/domain-errors"
)

// Client talks to the consensus log over its REST surface: the node endpoint
// for topic management and publishing, the mirror endpoint for reads. Safe
// for concurrent use; the only mutable state is the lazily resolved topic ID.
type Client struct {
	http      *http.Client
	nodeURL   string
	mirrorURL string
	network   string
	purpose   string
	operator  string
	key       string
	logger    *slog.Logger

	mu      sync.Mutex
	topicID string
}

// NewClient builds a gateway client from configuration. No network calls are
// made until the first operation.
func NewClient(cfg config.Ledger, logger *slog.Logger) *Client {
	return &Client{
		http:      &http.Client{Timeout: cfg.RequestTimeout},
		nodeURL:   cfg.NodeURL,
		mirrorURL: cfg.MirrorURL,
		network:   cfg.Network,
		purpose:   cfg.TopicPurpose,
		operator:  cfg.OperatorID,
		key:       cfg.OperatorKey,
		logger:    logger,
	}
}

type topicResponse struct {
	TopicID string `json:"topicId"`
}

type publishResponse struct {
	SequenceNumber     int64  `json:"sequenceNumber"`
	ConsensusTimestamp string `json:"consensusTimestamp"`
	TransactionRef     string `json:"transactionRef"`
}

type mirrorMessage struct {
	TopicID            string `json:"topicId"`
	SequenceNumber     int64  `json:"sequenceNumber"`
	ConsensusTimestamp string `json:"consensusTimestamp"`
	Message            string `json:"message"`
	RunningHash        string `json:"runningHash"`
}

type mirrorResponse struct {
	Messages []mirrorMessage `json:"messages"`
}

// EnsureTopic resolves the topic for the configured purpose, creating it on
// first use. The log deduplicates by purpose, so repeated calls (and
// restarts) land on the same topic.
func (c *Client) EnsureTopic(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.topicID != "" {
		return c.topicID, nil
	}

	body, _ := json.Marshal(map[string]string{"purpose": c.purpose})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodeURL+"/api/v1/topics", bytes.NewReader(body))
	if err != nil {
		return "", domainerrors.Wrap(domainerrors.CodeLedgerUnavailable, "build topic request", err)
	}
	c.decorate(req)

	var resp topicResponse
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	if resp.TopicID == "" {
		return "", domainerrors.New(domainerrors.CodeLedgerUnavailable, "log returned an empty topic id")
	}

	c.topicID = resp.TopicID
	c.logger.Info("resolved ledger topic", "topic_id", c.topicID, "purpose", c.purpose)
	return c.topicID, nil
}

// Publish submits payload to the topic and blocks until the log acknowledges
// it. Acknowledgement precedes full consensus finality; finality may lag.
func (c *Client) Publish(ctx context.Context, topicID string, payload []byte) (PublishReceipt, error) {
	body, _ := json.Marshal(map[string]string{
		"message": base64.StdEncoding.EncodeToString(payload),
	})
	endpoint := fmt.Sprintf("%s/api/v1/topics/%s/messages", c.nodeURL, url.PathEscape(topicID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return PublishReceipt{}, domainerrors.Wrap(domainerrors.CodeLedgerUnavailable, "build publish request", err)
	}
	c.decorate(req)

	var resp publishResponse
	if err := c.do(req, &resp); err != nil {
		return PublishReceipt{}, err
	}

	consensusAt, err := time.Parse(time.RFC3339Nano, resp.ConsensusTimestamp)
	if err != nil {
		return PublishReceipt{}, domainerrors.Wrap(domainerrors.CodeLedgerUnavailable,
			"log returned an unparseable consensus timestamp", err)
	}
	return PublishReceipt{
		SequenceNumber:     resp.SequenceNumber,
		ConsensusTimestamp: consensusAt,
		TransactionRef:     resp.TransactionRef,
	}, nil
}

// QueryEntries reads the most recent entries of a topic from the mirror.
// Results may lag publishes by the log's propagation delay.
func (c *Client) QueryEntries(ctx context.Context, topicID string, limit int) ([]models.LedgerEntry, error) {
	endpoint := fmt.Sprintf("%s/api/v1/topics/%s/messages?limit=%s&order=desc",
		c.mirrorURL, url.PathEscape(topicID), strconv.Itoa(limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, domainerrors.Wrap(domainerrors.CodeLedgerUnavailable, "build query request", err)
	}

	var resp mirrorResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}

	entries := make([]models.LedgerEntry, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		payload, err := base64.StdEncoding.DecodeString(msg.Message)
		if err != nil {
			c.logger.Warn("skipping undecodable mirror message",
				"topic_id", msg.TopicID, "sequence_number", msg.SequenceNumber)
			continue
		}
		consensusAt, err := time.Parse(time.RFC3339Nano, msg.ConsensusTimestamp)
		if err != nil {
			c.logger.Warn("skipping mirror message with bad timestamp",
				"topic_id", msg.TopicID, "sequence_number", msg.SequenceNumber)
			continue
		}
		entries = append(entries, models.LedgerEntry{
			TopicID:            msg.TopicID,
			SequenceNumber:     msg.SequenceNumber,
			ConsensusTimestamp: consensusAt,
			Payload:            payload,
			RunningHash:        msg.RunningHash,
		})
	}
	return entries, nil
}

// Status probes the mirror and reports connectivity plus the resolved topic.
func (c *Client) Status(ctx context.Context) (models.GatewayStatus, error) {
	c.mu.Lock()
	topicID := c.topicID
	c.mu.Unlock()

	status := models.GatewayStatus{Network: c.network, TopicID: topicID}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.mirrorURL+"/api/v1/status", nil)
	if err != nil {
		return status, nil
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return status, nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	status.Connected = resp.StatusCode == http.StatusOK
	return status, nil
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.operator != "" {
		req.Header.Set("X-Operator-Id", c.operator)
		req.Header.Set("X-Operator-Key", c.key)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return domainerrors.Wrap(domainerrors.CodeLedgerUnavailable, "consensus log unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domainerrors.New(domainerrors.CodeLedgerUnavailable,
			fmt.Sprintf("consensus log responded %d: %s", resp.StatusCode, string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domainerrors.Wrap(domainerrors.CodeLedgerUnavailable, "decode log response", err)
	}
	return nil
}

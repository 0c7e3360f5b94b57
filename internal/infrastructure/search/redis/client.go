package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
)

const (
	defaultIndexName = "loans_idx"
	loanKeyPrefix    = "loan:"
	appIDKeyPrefix   = "loan_appid:"
	seqKeyPrefix     = "loan_seq:"
	chatKeyPrefix    = "chat_history:"
)

type Config struct {
	Addrs     []string
	Username  string
	Password  string
	DB        int
	IndexName string
	// VectorDim enables the embedding field of the index when positive.
	VectorDim int
}

// Client is the shared RediSearch connection. Loan records live in hashes
// under loan:<id>, which the search index covers directly.
type Client struct {
	client    rueidis.Client
	indexName string
	vectorDim int
}

func New(cfg Config) (*Client, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("redis addrs is required")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		// FT.SEARCH replies are parsed as RESP2 arrays.
		AlwaysRESP2: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}
	return newWithClient(client, cfg), nil
}

func newWithClient(client rueidis.Client, cfg Config) *Client {
	name := strings.TrimSpace(cfg.IndexName)
	if name == "" {
		name = defaultIndexName
	}
	return &Client{client: client, indexName: name, vectorDim: cfg.VectorDim}
}

func (c *Client) Ping(ctx context.Context) bool {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error() == nil
}

func (c *Client) Close() {
	c.client.Close()
}

// EnsureIndex creates the loan index when it does not exist yet.
func (c *Client) EnsureIndex(ctx context.Context) error {
	cmd := c.client.B().Arbitrary("FT.CREATE").Args(c.createIndexArgs()...).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return domain.WrapError(domain.ErrBackendUnavailable, "create search index", err)
	}
	return nil
}

func (c *Client) createIndexArgs() []string {
	args := []string{
		c.indexName, "ON", "HASH", "PREFIX", "1", loanKeyPrefix, "SCHEMA",
		domain.FieldStatus, "TAG",
		domain.FieldLoanType, "TAG",
		domain.FieldCustomerID, "TAG",
		domain.FieldApplicationID, "TAG",
		domain.FieldCustomerName, "TEXT", "WEIGHT", "3",
		domain.FieldPurpose, "TEXT",
		domain.FieldAmount, "NUMERIC",
		domain.FieldRiskScore, "NUMERIC",
		fieldCreatedAt, "NUMERIC", "SORTABLE",
	}
	if c.vectorDim > 0 {
		args = append(args,
			fieldEmbedding, "VECTOR", "HNSW", "6",
			"TYPE", "FLOAT32",
			"DIM", fmt.Sprint(c.vectorDim),
			"DISTANCE_METRIC", "COSINE",
		)
	}
	return args
}

func (c *Client) search(ctx context.Context, op string, args []string) ([]rueidis.RedisMessage, error) {
	cmd := c.client.B().Arbitrary("FT.SEARCH").Args(append([]string{c.indexName}, args...)...).Build()
	raw, err := c.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, backendError(op, err)
	}
	return raw, nil
}

// backendError keeps server-side rejections (bad query syntax) apart from
// connectivity failures; both advance retrieval to the next tier.
func backendError(op string, err error) error {
	if _, ok := rueidis.IsRedisErr(err); ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	return domain.WrapError(domain.ErrBackendUnavailable, op, err)
}

func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}

func loanKey(id string) string {
	return loanKeyPrefix + id
}

package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const registryContentType = "application/vnd.schemaregistry.v1+json"

// ErrSubjectNotFound is returned when the registry has no versions for a subject.
var ErrSubjectNotFound = errors.New("schema subject not found")

// SchemaRegistryClient registers the JSON schemas of outbox events with a Confluent
// compatible Schema Registry.
type SchemaRegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSchemaRegistryClient constructs a client with a bounded request timeout.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// EnsureSchema returns the id of the latest schema under subject, registering schema
// when the subject does not exist yet.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	id, err := c.latestID(ctx, subject)
	if err == nil {
		registryLookups.WithLabelValues("latest", "hit").Inc()
		return id, nil
	}
	if !errors.Is(err, ErrSubjectNotFound) {
		registryLookups.WithLabelValues("latest", "error").Inc()
		return 0, err
	}
	registryLookups.WithLabelValues("latest", "miss").Inc()

	id, err = c.register(ctx, subject, schema)
	if err != nil {
		registryLookups.WithLabelValues("register", "error").Inc()
		return 0, err
	}
	registryLookups.WithLabelValues("register", "ok").Inc()
	return id, nil
}

func (c *SchemaRegistryClient) latestID(ctx context.Context, subject string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.subjectURL(subject, "versions", "latest"), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", registryContentType)
	return c.doForID(req, "lookup "+subject)
}

func (c *SchemaRegistryClient) register(ctx context.Context, subject string, schema string) (int, error) {
	body, err := json.Marshal(struct {
		SchemaType string `json:"schemaType"`
		Schema     string `json:"schema"`
	}{SchemaType: "JSON", Schema: schema})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.subjectURL(subject, "versions"), bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", registryContentType)
	return c.doForID(req, "register "+subject)
}

func (c *SchemaRegistryClient) subjectURL(subject string, parts ...string) string {
	return c.baseURL + "/subjects/" + url.PathEscape(subject) + "/" + strings.Join(parts, "/")
}

// doForID executes req and decodes the {"id": N} envelope both registry calls return.
func (c *SchemaRegistryClient) doForID(req *http.Request, op string) (int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("schema registry %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, ErrSubjectNotFound
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return 0, fmt.Errorf("schema registry %s: status %d: %s", op, resp.StatusCode, bytes.TrimSpace(data))
	}

	var payload struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("schema registry %s: decode: %w", op, err)
	}
	return payload.ID, nil
}

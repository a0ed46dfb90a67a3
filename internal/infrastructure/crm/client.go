package crm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/rental-intake/internal/core/domain"
	"github.com/kirillkom/rental-intake/internal/core/ports"
	"github.com/kirillkom/rental-intake/internal/infrastructure/resilience"
)

// Client talks to the CRM accounts API. It implements ports.AccountDirectory.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, apiKey string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

// EnsureAccount looks up the account by email and creates it when absent.
func (c *Client) EnsureAccount(ctx context.Context, req ports.AccountRequest) (string, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		return "", domain.NewValidationError("email", "an email address is required to link an account")
	}

	request := map[string]any{
		"name":  req.Name,
		"email": email,
		"phone": req.Phone,
	}
	var response struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "ensure_account", "/v1/accounts:ensure", request, &response); err != nil {
		return "", err
	}
	if response.ID == "" {
		return "", fmt.Errorf("crm ensure_account: empty account id")
	}
	return response.ID, nil
}

func (c *Client) RecordRelationship(ctx context.Context, primaryAccountID, relatedAccountID string, role domain.Role) error {
	request := map[string]any{
		"related_account_id": relatedAccountID,
		"role":               string(role),
	}
	path := "/v1/accounts/" + url.PathEscape(primaryAccountID) + "/relationships"
	return c.do(ctx, "record_relationship", path, request, nil)
}

func (c *Client) do(ctx context.Context, operation, path string, payload any, out any) error {
	call := func(ctx context.Context) error {
		return c.postJSON(ctx, path, payload, out, operation)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "crm."+operation, call, classifyCRMError)
	} else {
		err = call(ctx)
	}
	return resilience.WrapTemporary("crm "+operation, err, classifyCRMError)
}

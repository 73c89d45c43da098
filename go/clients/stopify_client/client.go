package stopify_client

import (
	"time"

	"github.com/mcdev12/stopify/go/clients"
)

type StopifyClient struct {
	*clients.BaseClient
}

func NewStopifyClient(baseURL string, timeout time.Duration) *StopifyClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := &StopifyClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	client.SetHeader("Accept", "application/json")

	return client
}

// Package docsdk is the HTTP/websocket client for the DocBox backend
// document API. It owns transport concerns (timeouts, auth, device
// identity); retry-across-sync-cycles policy belongs to the sync engine.
package docsdk

import (
	"time"

	"github.com/imroc/req/v3"

	"github.com/docboxhq/docbox/internal/utils"
	"github.com/docboxhq/docbox/internal/version"
)

const defaultRequestTimeout = 30 * time.Second

// SDK is the main client for the DocBox backend API.
type SDK struct {
	client    *req.Client
	baseURL   string
	Documents *DocumentsAPI
	Events    *EventsAPI
}

// New creates an SDK pointed at baseURL. Requests carry a per-call timeout;
// replay retries are deliberately NOT configured here, the sync engine
// re-attempts failed actions on its own schedule.
func New(baseURL string) (*SDK, error) {
	if baseURL == "" {
		return nil, ErrNoServerURL
	}

	client := req.C().
		SetBaseURL(baseURL).
		SetTimeout(defaultRequestTimeout).
		SetUserAgent(DocBoxUserAgent).
		SetCommonHeader(HeaderAppVersion, version.Version).
		SetCommonHeader(HeaderDeviceId, utils.HWID).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	return &SDK{
		client:    client,
		baseURL:   baseURL,
		Documents: newDocumentsAPI(client),
		Events:    newEventsAPI(baseURL),
	}, nil
}

// Login installs the bearer token on the HTTP client and the events socket.
// Returns an error when the token is already expired.
func (s *SDK) Login(token string) error {
	if token == "" {
		return ErrNoAuthToken
	}
	if expired, err := tokenExpired(token); err != nil {
		return err
	} else if expired {
		return ErrTokenExpired
	}

	s.client.SetCommonBearerAuthToken(token)
	s.Events.SetToken(token)
	return nil
}

// Close terminates the events socket and releases the HTTP client.
func (s *SDK) Close() {
	s.Events.Close()
}

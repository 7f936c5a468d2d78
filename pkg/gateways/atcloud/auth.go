package atcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/entities"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultAuthTimeout = 30 * time.Second
	maxAuthBodySize    = 64 << 10
)

// AuthClient exchanges the device credentials for a session token.
type AuthClient struct {
	uri    string
	client *http.Client
	log    *logrus.Entry
}

// NewAuthClient uses http.DefaultTransport with timeout when client is nil.
func NewAuthClient(uri string, timeout time.Duration, client *http.Client, log *logrus.Entry) *AuthClient {
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &AuthClient{uri: uri, client: client, log: log}
}

// Authenticate performs exactly one request. Every failure wraps
// entities.ErrAuth.
func (a *AuthClient) Authenticate(ctx context.Context, identity entities.DeviceIdentity) (string, error) {
	a.log.WithFields(logrus.Fields{
		"sn":     identity.SerialNumber,
		"secret": entities.Redact(identity.SecretKey),
	}).Infof("Authenticating against %s", a.uri)

	body, err := json.Marshal(entities.AuthRequest{
		SerialNumber: identity.SerialNumber,
		SecretKey:    identity.SecretKey,
		SensorIDs:    identity.ChannelIDs,
	})
	if err != nil {
		return "", errors.Wrapf(entities.ErrAuth, "encode request: %v", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, a.uri, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrapf(entities.ErrAuth, "build request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := a.client.Do(request)
	if err != nil {
		return "", errors.Wrapf(entities.ErrAuth, "network: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", errors.Wrapf(entities.ErrAuth, "unexpected status %d", response.StatusCode)
	}

	var authResponse entities.AuthResponse
	if err := json.NewDecoder(io.LimitReader(response.Body, maxAuthBodySize)).Decode(&authResponse); err != nil {
		return "", errors.Wrapf(entities.ErrAuth, "malformed response: %v", err)
	}
	if authResponse.Token == "" {
		return "", errors.Wrap(entities.ErrAuth, "empty token")
	}

	a.log.Info("Authentication succeeded")
	return authResponse.Token, nil
}

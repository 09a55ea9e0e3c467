package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sufyanAbbasi/efflux/internal/codec"
	"github.com/sufyanAbbasi/efflux/internal/models"
)

var ErrLoginRejected = errors.New("login rejected")

const (
	contentType     = "application/octet-stream"
	maxResponseBody = 64 << 10
)

// postLogin exchanges the stored token for the peer's view of the session.
func postLogin(ctx context.Context, client *http.Client, url, token string) (models.LoginResponse, error) {
	body := codec.EncodeLoginRequest(models.LoginRequest{SessionToken: token})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return models.LoginResponse{}, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return models.LoginResponse{}, fmt.Errorf("login %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return models.LoginResponse{}, fmt.Errorf("read login response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return models.LoginResponse{}, fmt.Errorf("login %s: status %d: %w", url, resp.StatusCode, ErrLoginRejected)
	}

	info, err := codec.DecodeLoginResponse(data)
	if err != nil {
		return models.LoginResponse{}, fmt.Errorf("decode login response: %w", err)
	}
	return info, nil
}

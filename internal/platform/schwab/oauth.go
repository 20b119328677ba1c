package schwab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Zijian-Wang/tradesync/internal/domain"
)

// RefreshToken exchanges refreshToken for a new access token. Every failure,
// including a malformed response, is returned as *domain.RefreshError.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (domain.TokenGrant, error) {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return domain.TokenGrant{}, &domain.RefreshError{Err: errors.New("schwab: client credentials not configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.TokenGrant{}, &domain.RefreshError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	body, err := c.do(req, EndpointToken)
	if err != nil {
		var upErr *domain.UpstreamError
		if errors.As(err, &upErr) {
			var te tokenErrorResponse
			if json.Unmarshal([]byte(upErr.Body), &te) == nil && te.Error != "" {
				return domain.TokenGrant{}, &domain.RefreshError{
					Err: fmt.Errorf("schwab: token endpoint HTTP %d: %s", upErr.StatusCode, te.Error),
				}
			}
			return domain.TokenGrant{}, &domain.RefreshError{
				Err: fmt.Errorf("schwab: token endpoint HTTP %d", upErr.StatusCode),
			}
		}
		return domain.TokenGrant{}, &domain.RefreshError{Err: fmt.Errorf("schwab: token endpoint: %w", err)}
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.TokenGrant{}, &domain.RefreshError{Err: fmt.Errorf("schwab: decode token response: %w", err)}
	}
	if resp.AccessToken == "" || resp.ExpiresIn <= 0 {
		return domain.TokenGrant{}, &domain.RefreshError{Err: errors.New("schwab: token response missing access_token or expires_in")}
	}

	return domain.TokenGrant{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    time.Duration(resp.ExpiresIn) * time.Second,
	}, nil
}

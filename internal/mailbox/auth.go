// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mailbox

import (
	"context"
	"fmt"

	"github.com/emersion/go-sasl"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// OAuthConfig holds the refresh-token credentials for OAUTHBEARER login.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string
}

// Enabled reports whether enough is set to mint access tokens.
func (o OAuthConfig) Enabled() bool {
	return o.ClientID != "" && o.RefreshToken != ""
}

// TokenSource returns a refreshing token source. An empty TokenURL uses
// Google's endpoint.
func (o OAuthConfig) TokenSource(ctx context.Context) oauth2.TokenSource {
	endpoint := google.Endpoint
	if o.TokenURL != "" {
		endpoint = oauth2.Endpoint{TokenURL: o.TokenURL}
	}
	cfg := &oauth2.Config{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		Endpoint:     endpoint,
	}
	return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: o.RefreshToken})
}

func oauthBearer(ts oauth2.TokenSource, username, host string, port int) (sasl.Client, error) {
	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("fetch access token: %w", err)
	}
	return sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
		Username: username,
		Token:    tok.AccessToken,
		Host:     host,
		Port:     port,
	}), nil
}

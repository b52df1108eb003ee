package google

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// LoadOAuthConfig builds the OAuth client configuration. The client secret
// JSON file wins when it exists; otherwise clientID and clientSecret are used
// with Google's endpoint and a loopback redirect.
func LoadOAuthConfig(clientSecretFile, clientID, clientSecret string, scopes ...string) (*oauth2.Config, error) {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	if clientSecretFile != "" {
		data, err := os.ReadFile(clientSecretFile)
		switch {
		case err == nil:
			conf, err := google.ConfigFromJSON(data, scopes...)
			if err != nil {
				return nil, fmt.Errorf("parse client secret %s: %w", clientSecretFile, err)
			}
			return conf, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("read client secret %s: %w", clientSecretFile, err)
		}
	}

	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("no OAuth client configured: provide %s or GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET", clientSecretFile)
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  "http://localhost",
		Scopes:       scopes,
	}, nil
}

// newHTTPClient returns a client that authorizes requests from ts.
// It speaks HTTP/1.1 only; long-lived HTTP/2 connections to the Gmail API
// were seen failing with stream errors.
func newHTTPClient(ts oauth2.TokenSource) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ForceAttemptHTTP2 = false
	return &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: base},
	}
}

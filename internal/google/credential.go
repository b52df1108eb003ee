package google

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	tokenFilePrefix = "token_gmail_v1_"
	tokenFileSuffix = ".json"
)

var mailboxPattern = regexp.MustCompile(`^[A-Za-z0-9._%+@-]+$`)

// Credential is the persisted form of a mailbox token.
type Credential struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// NewCredential converts an oauth2 token for persistence.
func NewCredential(tok *oauth2.Token, scopes []string) *Credential {
	return &Credential{
		Token:        tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		Scopes:       scopes,
	}
}

// OAuth2Token converts the credential back into an oauth2 token.
func (c *Credential) OAuth2Token() *oauth2.Token {
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  c.Token,
		RefreshToken: c.RefreshToken,
		TokenType:    tokenType,
		Expiry:       c.Expiry,
	}
}

// Usable reports whether the credential can produce an access token without
// user interaction.
func (c *Credential) Usable() bool {
	return c.OAuth2Token().Valid() || c.RefreshToken != ""
}

// ValidateMailbox checks that a mailbox identifier is safe to embed in a file name.
func ValidateMailbox(mailbox string) error {
	if mailbox == "" || len(mailbox) > 254 || strings.Contains(mailbox, "..") || !mailboxPattern.MatchString(mailbox) {
		return fmt.Errorf("%w: %q", ErrInvalidMailbox, mailbox)
	}
	return nil
}

// TokenFileName returns the credential file name for a mailbox.
func TokenFileName(mailbox string) string {
	return tokenFilePrefix + mailbox + tokenFileSuffix
}

func readCredential(path string) (*Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &c, nil
}

// writeCredential replaces path atomically so a crash never leaves a
// truncated credential behind.
func writeCredential(path string, c *Credential) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".token-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// listMailboxes returns the mailboxes with a credential file in dir, sorted.
func listMailboxes(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, tokenFilePrefix) || !strings.HasSuffix(name, tokenFileSuffix) {
			continue
		}
		mailbox := strings.TrimSuffix(strings.TrimPrefix(name, tokenFilePrefix), tokenFileSuffix)
		if ValidateMailbox(mailbox) == nil {
			out = append(out, mailbox)
		}
	}
	sort.Strings(out)
	return out, nil
}

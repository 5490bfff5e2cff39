// Package putio resolves putio://<file id> sources into signed download URLs.
package putio

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/italolelis/cedric/internal/logctx"
	"github.com/putdotio/go-putio"
	"golang.org/x/oauth2"
)

const Scheme = "putio"

type Resolver struct {
	client *putio.Client
}

// NewResolver authenticates with a static OAuth token. A nil base client uses
// http.DefaultTransport underneath the token source.
func NewResolver(token string, base *http.Client) *Resolver {
	ctx := context.Background()
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}

	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})

	return &Resolver{client: putio.NewClient(oauth2.NewClient(ctx, tokenSource))}
}

func (r *Resolver) Scheme() string {
	return Scheme
}

// Resolve asks put.io for a direct link to the file named by the source host.
func (r *Resolver) Resolve(ctx context.Context, source *url.URL) (*url.URL, error) {
	id, err := FileID(source)
	if err != nil {
		return nil, err
	}

	link, err := r.client.Files.URL(ctx, id, false)
	if err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to get file download url", "file_id", id, "err", err)

		return nil, fmt.Errorf("failed to get file download url: %w", err)
	}

	return url.Parse(link)
}

// Authenticate verifies the token by fetching the account info.
func (r *Resolver) Authenticate(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	user, err := r.client.Account.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get account info: %w", err)
	}

	logger.InfoContext(ctx, "authenticated with Put.io", "user", user.Username)

	return nil
}

// FileID extracts the numeric file id from putio://<id> or putio:<id>.
func FileID(source *url.URL) (int64, error) {
	if source == nil || source.Scheme != Scheme {
		return 0, fmt.Errorf("not a %s url: %v", Scheme, source)
	}

	raw := source.Host
	if raw == "" {
		raw = strings.TrimPrefix(source.Opaque, "//")
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid put.io file id %q", raw)
	}

	return id, nil
}

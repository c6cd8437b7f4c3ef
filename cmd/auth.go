package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/crossfade/internal/catalog/spotify"
	"github.com/desertthunder/crossfade/internal/server"
	"github.com/desertthunder/crossfade/internal/shared"
)

// callbackTimeout bounds how long a command waits for the user to complete
// a browser authorization flow before giving up.
const callbackTimeout = 2 * time.Minute

// AuthSpotify runs the Spotify authorization-code flow: it starts a local
// callback server, opens the authorization URL in the system browser, and
// persists the resulting refresh token to config.toml.
func (r *Runner) AuthSpotify(ctx context.Context, cmd *cli.Command) error {
	creds := r.config.Credentials.Spotify
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return fmt.Errorf("%w: credentials.spotify.client_id and client_secret must be set in config.toml", shared.ErrMissingCredentials)
	}

	cat := spotify.New(creds.ClientID, creds.ClientSecret, creds.RedirectURI)
	state := uuid.NewString()
	handler := server.NewOAuthHandler(cat.OAuth2Config(), state)

	router := server.NewBasicRouter()
	router.Handler(handler)

	addr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: router}

	listenErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			listenErr <- err
		}
	}()
	defer httpServer.Shutdown(context.Background())

	authURL := cat.AuthURL(state)
	r.logger.Info("waiting for spotify authorization", "url", authURL)
	if err := shared.OpenBrowser(authURL); err != nil {
		r.writePlainln("Open this URL in your browser to authorize crossfade:")
		r.writePlain("%s\n", authURL)
	}

	select {
	case err := <-listenErr:
		return fmt.Errorf("callback server: %w", err)
	case result := <-handler.Result():
		if result.Error() != nil {
			return fmt.Errorf("%w: %v", shared.ErrAuthFailed, result.Error())
		}
		if err := cat.Authenticate(ctx, "", result.Token.RefreshToken); err != nil {
			return fmt.Errorf("adopt exchanged token: %w", err)
		}

		r.config.Credentials.Spotify.AccessToken = result.Token.AccessToken
		r.config.Credentials.Spotify.RefreshToken = result.Token.RefreshToken
		if err := shared.SaveConfig("config.toml", r.config); err != nil {
			r.logger.Warn("failed to persist spotify tokens to config.toml", "error", err)
		}

		return r.writePlain("✓ Spotify authentication successful\n")
	case <-time.After(callbackTimeout):
		return fmt.Errorf("%w: no spotify callback received", shared.ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AuthTidal persists a Tidal bearer access token and user id obtained out of
// band (Tidal's API does not expose a public authorization-code flow). The
// token and user id can be passed directly as flags, or extracted from a
// cURL command copied out of the browser's network inspector via --curl.
func (r *Runner) AuthTidal(ctx context.Context, cmd *cli.Command) error {
	token := cmd.String("access-token")
	userID := cmd.String("user-id")

	if curlPath := cmd.String("curl"); curlPath != "" {
		parsed, err := shared.ParseCurlFile(curlPath)
		if err != nil {
			return fmt.Errorf("parse curl command: %w", err)
		}
		if auth, ok := parsed.Get("Authorization"); ok && token == "" {
			token = strings.TrimPrefix(strings.TrimSpace(auth), "Bearer ")
		}
		if uid, ok := parsed.Get("X-Tidal-UserId"); ok && userID == "" {
			userID = uid
		}
	}

	if token == "" || userID == "" {
		return fmt.Errorf("%w: --access-token and --user-id are required (or pass --curl with both an Authorization and an X-Tidal-UserId header)", shared.ErrMissingArgument)
	}

	r.config.Credentials.Tidal.AccessToken = token
	r.config.Credentials.Tidal.UserID = userID
	if err := shared.SaveConfig("config.toml", r.config); err != nil {
		return fmt.Errorf("failed to persist tidal credentials: %w", err)
	}

	return r.writePlain("✓ Tidal credentials saved\n")
}

// AuthStatus reports whether Spotify and Tidal credentials are configured.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if r.config.Credentials.Spotify.RefreshToken != "" {
		r.writePlainln("Spotify: ✓ authenticated")
	} else {
		r.writePlainln("Spotify: ✗ not authenticated (run 'crossfade auth login spotify')")
	}

	if r.config.Credentials.Tidal.AccessToken != "" {
		r.writePlainln("Tidal: ✓ configured")
	} else {
		r.writePlainln("Tidal: ✗ not configured (run 'crossfade auth login tidal')")
	}

	return nil
}

// authCommand handles authentication for both the source and target
// catalogs.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Spotify and Tidal authentication",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Log in to a catalog",
				Commands: []*cli.Command{
					{
						Name:   "spotify",
						Usage:  "Authenticate with Spotify using OAuth2",
						Action: r.AuthSpotify,
					},
					{
						Name:  "tidal",
						Usage: "Store Tidal bearer credentials",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "access-token",
								Usage: "Tidal API bearer token",
							},
							&cli.StringFlag{
								Name:  "user-id",
								Usage: "Tidal user id to mutate playlists for",
							},
							&cli.StringFlag{
								Name:  "curl",
								Usage: "Path to a file holding a cURL command copied from the browser, to extract the bearer token and user id from",
							},
						},
						Action: r.AuthTidal,
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show current authentication state",
				Action: r.AuthStatus,
			},
		},
	}
}

package authcheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/backoffice-kit/auth-service/internal/tools/common"
	"github.com/backoffice-kit/auth-service/internal/tools/ui"
)

type options struct {
	baseURL   string
	email     string
	password  string
	digitCode string
	envFile   string
	ci        bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "authcheck",
		Short: "Smoke-test a running auth service end to end",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := common.LoadEnvFile(opts.envFile); err != nil {
				return err
			}
			if opts.email == "" {
				opts.email = os.Getenv("AUTHCHECK_EMAIL")
			}
			if opts.password == "" {
				opts.password = os.Getenv("AUTHCHECK_PASSWORD")
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "optional env file with AUTHCHECK_* credentials")
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.PersistentFlags().StringVar(&opts.email, "email", "", "account email to authenticate")
	cmd.PersistentFlags().StringVar(&opts.password, "password", "", "account password")
	cmd.PersistentFlags().StringVar(&opts.digitCode, "digit-code", "", "second factor code when the account requires one")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newRunCommand(opts))
	return cmd
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Exercise health, login, second factor and refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := run(opts, "authcheck run", func(ctx context.Context) ([]string, error) {
				return checkAuthFlow(ctx, *opts)
			})
			if opts.ci {
				common.PrintCIResult(err == nil, "authcheck run", details, err)
			}
			if err != nil {
				os.Exit(4)
			}
			return nil
		},
	}
}

func run(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type loginResult struct {
	Tokens        *tokenPair `json:"tokens"`
	PendingFactor string     `json:"pending_factor"`
}

func checkAuthFlow(ctx context.Context, opts options) ([]string, error) {
	var details []string

	if err := checkHealth(ctx, opts); err != nil {
		return details, err
	}
	details = append(details, "health/live: ok")

	if opts.email == "" || opts.password == "" {
		details = append(details, "no credentials given, skipping login flow")
		return details, nil
	}

	var login loginResult
	if err := postJSON(ctx, opts, "/api/v1/auth/login", map[string]string{
		"email":    opts.email,
		"password": opts.password,
	}, &login); err != nil {
		return details, err
	}
	details = append(details, "login: ok pending_factor="+orNone(login.PendingFactor))

	pair := login.Tokens
	if login.PendingFactor != "" {
		if opts.digitCode == "" {
			return details, fmt.Errorf("account requires factor %q, pass --digit-code", login.PendingFactor)
		}
		var verified tokenPair
		if err := postJSON(ctx, opts, "/api/v1/auth/verify", map[string]string{
			"email":      opts.email,
			"digit_code": opts.digitCode,
		}, &verified); err != nil {
			return details, err
		}
		pair = &verified
		details = append(details, "verify: ok")
	}
	if pair == nil || pair.RefreshToken == "" {
		return details, fmt.Errorf("login produced no refresh token")
	}

	var refreshed tokenPair
	if err := postJSON(ctx, opts, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": pair.RefreshToken,
	}, &refreshed); err != nil {
		return details, err
	}
	if refreshed.AccessToken == pair.AccessToken {
		return details, fmt.Errorf("refresh returned the same access token")
	}
	details = append(details, "refresh: ok tokens rotated")
	return details, nil
}

func checkHealth(ctx context.Context, opts options) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.baseURL+"/health/live", nil)
	if err != nil {
		return err
	}
	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %s", resp.Status)
	}
	return nil
}

func postJSON(ctx context.Context, opts options, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := (&http.Client{Timeout: 20 * time.Second}).Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s: unexpected response: %s", path, resp.Status)
	}
	if !env.Success {
		if env.Error != nil {
			return fmt.Errorf("%s: %s (%s)", path, env.Error.Message, env.Error.Code)
		}
		return fmt.Errorf("%s: request failed: %s", path, resp.Status)
	}
	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

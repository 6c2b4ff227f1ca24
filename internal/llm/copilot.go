package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	coorderrors "routa/internal/shared/errors"
	"routa/internal/shared/logging"
)

const (
	copilotTokenURL  = "https://api.github.com/copilot_internal/v2/token"
	copilotAPIBase   = "https://api.githubcopilot.com/"
	copilotModelsURL = "https://api.githubcopilot.com/models"

	// copilotTokenRefreshSkew re-exchanges the short-lived API token when its
	// remaining lifetime drops below this window.
	copilotTokenRefreshSkew = 5 * time.Minute
	copilotModelsCacheTTL   = time.Hour

	copilotEditorVersion = "Zed/Unknown"
	copilotIntegrationID = "vscode-chat"
)

// copilotAPIToken is the short-lived token returned by the exchange endpoint.
type copilotAPIToken struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"` // unix seconds
}

func (t copilotAPIToken) remaining(now time.Time) time.Duration {
	return time.Unix(t.ExpiresAt, 0).Sub(now)
}

// CopilotProvider exchanges the locally stored GitHub Copilot OAuth token for
// short-lived API tokens and serves the Copilot model catalog. Register it
// with RegisterProvider(ProviderCopilot, NewCopilotProvider()).
type CopilotProvider struct {
	httpClient *http.Client
	envLookup  func(string) (string, bool)
	readFile   func(string) ([]byte, error)
	homeDir    func() (string, error)
	now        func() time.Time
	logger     logging.Logger

	// tokenMu guards the API token cache; modelsMu independently guards the
	// model-list cache so a slow catalog fetch never blocks token refresh.
	tokenMu    sync.Mutex
	tokenCache *copilotAPIToken

	modelsMu        sync.Mutex
	modelsCache     []ModelInfo
	modelsFetchedAt time.Time

	executors *lru.Cache[string, Executor]
}

// CopilotOption customizes provider construction, mainly for tests.
type CopilotOption func(*CopilotProvider)

// WithCopilotHTTPClient overrides the HTTP client used for token exchange and
// catalog fetch.
func WithCopilotHTTPClient(client *http.Client) CopilotOption {
	return func(p *CopilotProvider) { p.httpClient = client }
}

// WithCopilotEnvLookup overrides environment lookup.
func WithCopilotEnvLookup(lookup func(string) (string, bool)) CopilotOption {
	return func(p *CopilotProvider) { p.envLookup = lookup }
}

// WithCopilotFileReader overrides config file reading.
func WithCopilotFileReader(readFile func(string) ([]byte, error)) CopilotOption {
	return func(p *CopilotProvider) { p.readFile = readFile }
}

// WithCopilotHomeDir overrides home directory resolution.
func WithCopilotHomeDir(homeDir func() (string, error)) CopilotOption {
	return func(p *CopilotProvider) { p.homeDir = homeDir }
}

// WithCopilotClock overrides the time source.
func WithCopilotClock(now func() time.Time) CopilotOption {
	return func(p *CopilotProvider) { p.now = now }
}

// NewCopilotProvider constructs the provider with production defaults.
func NewCopilotProvider(opts ...CopilotOption) *CopilotProvider {
	p := &CopilotProvider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		envLookup:  os.LookupEnv,
		readFile:   os.ReadFile,
		homeDir:    os.UserHomeDir,
		now:        time.Now,
		logger:     logging.NewLLMLogger("copilot"),
	}
	for _, opt := range opts {
		opt(p)
	}
	cache, err := lru.New[string, Executor](8)
	if err == nil {
		p.executors = cache
	}
	return p
}

// appsConfigPath resolves the Copilot client config file written by an
// external Copilot installation. Never written by this provider.
func (p *CopilotProvider) appsConfigPath() string {
	if runtime.GOOS == "windows" {
		if appData, ok := p.envLookup("APPDATA"); ok && appData != "" {
			return filepath.Join(appData, "github-copilot", "apps.json")
		}
		if local, ok := p.envLookup("LOCALAPPDATA"); ok && local != "" {
			return filepath.Join(local, "github-copilot", "apps.json")
		}
	}
	home := ""
	if h, ok := p.envLookup("HOME"); ok && h != "" {
		home = h
	} else if h, err := p.homeDir(); err == nil {
		home = h
	} else if h, ok := p.envLookup("USERPROFILE"); ok && h != "" {
		home = h
	}
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "github-copilot", "apps.json")
}

// oauthToken recursively searches apps.json for any oauth_token value.
func (p *CopilotProvider) oauthToken() (string, error) {
	path := p.appsConfigPath()
	if path == "" {
		return "", coorderrors.New(coorderrors.KindProviderUnavailable, "cannot locate the Copilot config directory")
	}
	data, err := p.readFile(path)
	if err != nil {
		return "", coorderrors.Wrap(coorderrors.KindProviderUnavailable, err,
			"GitHub Copilot is not set up locally; sign in with a Copilot-enabled editor first")
	}

	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", coorderrors.Wrap(coorderrors.KindProviderUnavailable, err, "Copilot apps.json is not valid JSON")
	}

	if token := findOAuthToken(payload); token != "" {
		return token, nil
	}
	return "", coorderrors.New(coorderrors.KindProviderUnavailable, "no oauth_token found in Copilot apps.json")
}

func findOAuthToken(node any) string {
	switch v := node.(type) {
	case map[string]any:
		if token, ok := v["oauth_token"].(string); ok && token != "" {
			return token
		}
		for _, child := range v {
			if token := findOAuthToken(child); token != "" {
				return token
			}
		}
	case []any:
		for _, child := range v {
			if token := findOAuthToken(child); token != "" {
				return token
			}
		}
	}
	return ""
}

// apiToken returns a valid short-lived API token, re-exchanging the OAuth
// token when the cached one has less than the refresh skew remaining.
func (p *CopilotProvider) apiToken(ctx context.Context) (string, error) {
	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()

	if p.tokenCache != nil && p.tokenCache.remaining(p.now()) >= copilotTokenRefreshSkew {
		return p.tokenCache.Token, nil
	}

	oauth, err := p.oauthToken()
	if err != nil {
		return "", err
	}

	token, err := p.exchangeToken(ctx, oauth)
	if err != nil {
		return "", err
	}
	p.tokenCache = token
	p.logger.Debug("Exchanged Copilot API token, expires_at=%d", token.ExpiresAt)
	return token.Token, nil
}

func (p *CopilotProvider) exchangeToken(ctx context.Context, oauth string) (*copilotAPIToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, copilotTokenURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+oauth)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Editor-Version", copilotEditorVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, coorderrors.Upstream(err, "Copilot token exchange failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, coorderrors.Upstream(
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			fmt.Sprintf("Copilot token exchange returned HTTP %d", resp.StatusCode),
		)
	}

	var token copilotAPIToken
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if token.Token == "" {
		return nil, coorderrors.Upstream(errors.New("empty token in exchange response"), "Copilot token exchange returned no token")
	}
	return &token, nil
}

// IsAvailable reports whether a local Copilot OAuth token is discoverable.
func (p *CopilotProvider) IsAvailable() bool {
	_, err := p.oauthToken()
	return err == nil
}

// DefaultBaseURL returns the Copilot API endpoint.
func (p *CopilotProvider) DefaultBaseURL() string {
	return copilotAPIBase
}

// CreateExecutor exchanges a token and builds an OpenAI-compatible executor
// carrying the Copilot request headers.
func (p *CopilotProvider) CreateExecutor(cfg NamedModelConfig) (Executor, error) {
	if p.executors != nil {
		if executor, ok := p.executors.Get(cfg.Model); ok {
			return executor, nil
		}
	}

	token, err := p.apiToken(context.Background())
	if err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if strings.TrimSpace(baseURL) == "" {
		baseURL = copilotAPIBase
	}
	executor, err := NewOpenAIExecutor(cfg.Model, ClientConfig{
		APIKey:  token,
		BaseURL: NormalizeBaseURL(baseURL),
		Headers: map[string]string{
			"Editor-Version":         copilotEditorVersion,
			"Copilot-Integration-Id": copilotIntegrationID,
		},
	})
	if err != nil {
		return nil, err
	}
	if p.executors != nil {
		p.executors.Add(cfg.Model, executor)
	}
	return executor, nil
}

// AvailableModels returns the cached catalog without refreshing it.
func (p *CopilotProvider) AvailableModels() []ModelInfo {
	p.modelsMu.Lock()
	defer p.modelsMu.Unlock()
	return append([]ModelInfo(nil), p.modelsCache...)
}

// FetchAvailableModels returns the catalog, refreshing it when the one-hour
// cache has expired.
func (p *CopilotProvider) FetchAvailableModels(ctx context.Context) ([]ModelInfo, error) {
	p.modelsMu.Lock()
	defer p.modelsMu.Unlock()

	if p.modelsCache != nil && p.now().Sub(p.modelsFetchedAt) < copilotModelsCacheTTL {
		return append([]ModelInfo(nil), p.modelsCache...), nil
	}

	token, err := p.apiToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, copilotModelsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Editor-Version", copilotEditorVersion)
	req.Header.Set("Copilot-Integration-Id", copilotIntegrationID)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, coorderrors.Upstream(err, "Copilot model catalog fetch failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read models response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, coorderrors.Upstream(
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			fmt.Sprintf("Copilot model catalog returned HTTP %d", resp.StatusCode),
		)
	}

	var catalog struct {
		Data []struct {
			ID                 string `json:"id"`
			ModelPickerEnabled bool   `json:"model_picker_enabled"`
			Capabilities       struct {
				Type   string `json:"type"`
				Limits struct {
					MaxContextWindowTokens int `json:"max_context_window_tokens"`
					MaxOutputTokens        int `json:"max_output_tokens"`
				} `json:"limits"`
			} `json:"capabilities"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &catalog); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}

	models := make([]ModelInfo, 0, len(catalog.Data))
	for _, entry := range catalog.Data {
		if !entry.ModelPickerEnabled || entry.Capabilities.Type == "embeddings" {
			continue
		}
		info := CreateModel(ProviderCopilot, entry.ID)
		if entry.Capabilities.Limits.MaxContextWindowTokens > 0 {
			info.ContextLength = entry.Capabilities.Limits.MaxContextWindowTokens
		}
		if entry.Capabilities.Limits.MaxOutputTokens > 0 {
			info.MaxOutputTokens = entry.Capabilities.Limits.MaxOutputTokens
		}
		models = append(models, info)
	}

	p.modelsCache = models
	p.modelsFetchedAt = p.now()
	return append([]ModelInfo(nil), models...), nil
}

var _ ProviderHandler = (*CopilotProvider)(nil)

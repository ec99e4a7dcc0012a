package cohere

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bitop-dev/cohere/internal/chat"
	"github.com/bitop-dev/cohere/internal/cohereapi"
	"github.com/bitop-dev/cohere/internal/conversation"
	"github.com/bitop-dev/cohere/internal/httpx"
	"github.com/bitop-dev/cohere/internal/tools"
)

const (
	DefaultBaseURL = "https://api.cohere.com"
	DefaultModel   = "command-r7b-12-2024"

	// APIKeyEnv is read when Config.APIKey is empty.
	APIKeyEnv = "COHERE_API_KEY"
)

type Config struct {
	APIKey     string
	BaseURL    string
	Headers    map[string]string
	HTTPClient *http.Client

	// MaxRetries defaults to 2 when zero; a negative value disables retries.
	MaxRetries int
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// Timeout bounds a whole Chat or Stream call, tool round trips included.
	// Zero means no limit beyond the caller's context.
	Timeout time.Duration

	// Defaults are merged under every call's options.
	Defaults Options

	// Policy overrides the tool execution decision. Nil runs tools whenever a
	// turn finishes with TOOL_CALL and Options.InternalToolExecution allows it.
	Policy ExecutionPolicy

	OnStepFinish func(Step)
	Logger       *slog.Logger

	// transport replaces the HTTP transport in tests.
	transport chat.Transport
}

type Client struct {
	cfg  Config
	loop *conversation.Loop

	mu    sync.RWMutex
	tools map[string]Tool
}

func NewClient(cfg Config) *Client {
	cfg = normalizeConfig(cfg)
	transport := cfg.transport
	if transport == nil {
		transport = cohereapi.New(cohereapi.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Headers:    cfg.Headers,
			HTTPClient: cfg.HTTPClient,
			Retry: httpx.RetryPolicy{
				MaxRetries: cfg.MaxRetries,
				MinBackoff: cfg.MinBackoff,
				MaxBackoff: cfg.MaxBackoff,
			},
			Logger: cfg.Logger,
		})
	}
	return &Client{
		cfg: cfg,
		loop: &conversation.Loop{
			Transport:    transport,
			Decode:       cohereapi.DecodeChunk,
			Policy:       cfg.Policy,
			Executor:     &tools.Executor{Logger: cfg.Logger},
			Logger:       cfg.Logger,
			OnStepFinish: cfg.OnStepFinish,
		},
		tools: map[string]Tool{},
	}
}

var defaultClient atomic.Pointer[Client]

func init() {
	defaultClient.Store(NewClient(Config{}))
}

// Configure replaces the client used by the package-level functions.
func Configure(cfg Config) {
	defaultClient.Store(NewClient(cfg))
}

func Default() *Client { return defaultClient.Load() }

func (c *Client) Config() Config { return c.cfg }

// RegisterTools adds tools that options can select through ToolNames.
func (c *Client) RegisterTools(ts ...Tool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range ts {
		if t.Name == "" {
			return chat.Invalid("tools", "tool name is required")
		}
		if t.Handler == nil {
			return chat.Invalid("tools", "tool %q has no handler", t.Name)
		}
	}
	for _, t := range ts {
		c.tools[t.Name] = t
	}
	return nil
}

// ChatResult is the outcome of a completed conversation.
type ChatResult struct {
	// Response is the final turn; Usage covers every turn of the call.
	Response Response
	// History is the full conversation including the input messages, ready
	// to be extended and sent again.
	History []Message
	Steps   []Step
}

func (r *ChatResult) Text() string { return r.Response.Message().Text() }

func (r *ChatResult) Usage() Usage { return r.Response.Usage }

// Chat sends messages and runs requested tools until the model answers.
func (c *Client) Chat(ctx context.Context, messages []Message, opts Options) (*ChatResult, error) {
	merged, err := c.resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	res, err := c.loop.Generate(ctx, messages, merged)
	if err != nil {
		return nil, err
	}
	return &ChatResult{Response: res.Response, History: res.History, Steps: res.Steps}, nil
}

// Stream is the streaming form of Chat.
func (c *Client) Stream(ctx context.Context, messages []Message, opts Options) (*ChatStream, error) {
	merged, err := c.resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.callContext(ctx)
	return &ChatStream{s: c.loop.Stream(ctx, messages, merged), cancel: cancel}, nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

func Chat(ctx context.Context, messages []Message, opts Options) (*ChatResult, error) {
	return Default().Chat(ctx, messages, opts)
}

func Stream(ctx context.Context, messages []Message, opts Options) (*ChatStream, error) {
	return Default().Stream(ctx, messages, opts)
}

// resolveOptions merges opts over the client defaults and resolves ToolNames
// against the registry.
func (c *Client) resolveOptions(opts Options) (Options, error) {
	merged := chat.MergeOptions(c.cfg.Defaults, opts)

	seen := make(map[string]bool, len(merged.Tools))
	for _, t := range merged.Tools {
		if t.Name == "" {
			return Options{}, chat.Invalid("tools", "tool name is required")
		}
		if seen[t.Name] {
			return Options{}, chat.Invalid("tools", "duplicate tool %q", t.Name)
		}
		seen[t.Name] = true
	}

	if len(merged.ToolNames) > 0 {
		c.mu.RLock()
		defer c.mu.RUnlock()
		for _, name := range merged.ToolNames {
			if seen[name] {
				continue
			}
			t, ok := c.tools[name]
			if !ok {
				return Options{}, chat.Invalid("tool_names", "no registered tool %q", name)
			}
			merged.Tools = append(merged.Tools, t)
			seen[name] = true
		}
	}
	return merged, nil
}

func normalizeConfig(cfg Config) Config {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.MinBackoff == 0 {
		cfg.MinBackoff = 250 * time.Millisecond
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Defaults.Model == "" {
		cfg.Defaults.Model = DefaultModel
	}
	if cfg.Defaults.Temperature == nil {
		cfg.Defaults.Temperature = Ptr(0.3)
	}
	if cfg.Defaults.TopP == nil {
		cfg.Defaults.TopP = Ptr(1.0)
	}
	if cfg.Defaults.MaxToolRoundTrips == 0 {
		cfg.Defaults.MaxToolRoundTrips = conversation.DefaultMaxToolRoundTrips
	}
	return cfg
}

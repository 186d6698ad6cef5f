// Package spbatch batches SharePoint REST and Microsoft Graph requests.
//
// Example usage:
//
//	cfg := spbatch.DefaultConfig()
//	cfg.SiteURL = "https://contoso.sharepoint.com/sites/dev"
//	cfg.TenantID = "..."
//	cfg.ClientID = "..."
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := spbatch.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	web, _ := svc.Entity("Web", nil)
//	svc.Enqueue(nil, web.Select("Title"), spbatch.OpGet)
//	if err := svc.ExecuteCurrent(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	title, _ := web.Value("Title")
package spbatch

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	httpadapter "github.com/bft-labs/spbatch/internal/adapters/http"
	"github.com/bft-labs/spbatch/internal/app"
	"github.com/bft-labs/spbatch/internal/cliconfig"
	"github.com/bft-labs/spbatch/internal/domain"
	"github.com/bft-labs/spbatch/internal/metadata"
	"github.com/bft-labs/spbatch/internal/model"
	"github.com/bft-labs/spbatch/internal/ports"
	"github.com/bft-labs/spbatch/pkg/log"
)

// Config holds the client configuration.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = cliconfig.Config

// Re-exported types for callers that do not import internal packages.
type (
	Client        = app.Client
	Batch         = domain.Batch
	Record        = domain.Record
	Outcome       = domain.Outcome
	Call          = domain.Call
	Response      = domain.Response
	Owner         = domain.Owner
	Protocol      = domain.Protocol
	OperationKind = domain.OperationKind
	RecordState   = domain.RecordState

	Model      = ports.Model
	Transport  = ports.Transport
	Result     = ports.Result
	Logger     = log.Logger
	HTTPClient = ports.HTTPClient

	Entity   = model.Entity
	Metadata = metadata.Registry

	TransportError = domain.TransportError
	RequestError   = domain.RequestError
)

const (
	ProtocolREST  = domain.ProtocolREST
	ProtocolGraph = domain.ProtocolGraph

	OpGet    = domain.OpGet
	OpCreate = domain.OpCreate
	OpUpdate = domain.OpUpdate
	OpDelete = domain.OpDelete
)

var (
	ErrAlreadyExecuted      = domain.ErrAlreadyExecuted
	ErrBatchExecuted        = domain.ErrBatchExecuted
	ErrUnsplittable         = domain.ErrUnsplittable
	ErrTransportUnavailable = domain.ErrTransportUnavailable
	ErrResultMismatch       = domain.ErrResultMismatch
	ErrInvalidCall          = domain.ErrInvalidCall
)

// NewCall builds a call descriptor.
func NewCall(protocol Protocol, verb, endpoint string, body []byte) Call {
	return domain.NewCall(protocol, verb, endpoint, body)
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return cliconfig.DefaultConfig()
}

// DefaultMetadata returns a registry preloaded with the built-in entity tables.
func DefaultMetadata() (*Metadata, error) {
	return metadata.Default()
}

// Option configures optional behavior of New.
type Option func(*options)

type options struct {
	httpClient ports.HTTPClient
	logger     ports.Logger
	transport  ports.Transport
	tokens     map[domain.Protocol]oauth2.TokenSource
	registry   *metadata.Registry
}

// WithHTTPClient sets the HTTP client used by the HTTP transport.
// If not provided, a client with the configured timeout is used.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) { o.httpClient = client }
}

// WithLogger sets a custom logger. If not provided, nothing is logged.
func WithLogger(logger Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTransport replaces the HTTP transport entirely.
func WithTransport(t Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithTokenSource authenticates one protocol with ts instead of the
// client credentials configured in Config.
func WithTokenSource(p Protocol, ts oauth2.TokenSource) Option {
	return func(o *options) {
		if o.tokens == nil {
			o.tokens = make(map[domain.Protocol]oauth2.TokenSource)
		}
		o.tokens[p] = ts
	}
}

// WithRegistry sets the metadata registry entities resolve against.
// Config.MetadataFile is still loaded into it.
func WithRegistry(r *Metadata) Option {
	return func(o *options) { o.registry = r }
}

// Service is a batch client bound to the metadata registry its entities use.
type Service struct {
	*app.Client

	metadata    *metadata.Registry
	preferGraph bool
}

// New wires a metadata registry, a transport and a logger into a Service.
// cfg must have been validated.
func New(cfg Config, opts ...Option) (*Service, error) {
	o := options{logger: log.NewNoopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	reg := o.registry
	if reg == nil {
		var err error
		if reg, err = metadata.Default(); err != nil {
			return nil, fmt.Errorf("load metadata: %w", err)
		}
	}
	if cfg.MetadataFile != "" {
		if err := reg.LoadFile(cfg.MetadataFile); err != nil {
			return nil, fmt.Errorf("load metadata file: %w", err)
		}
	}

	transport := o.transport
	if transport == nil {
		t, err := newHTTPTransport(cfg, o)
		if err != nil {
			return nil, err
		}
		transport = t
	}

	client := app.NewClient(transport,
		app.WithLogger(o.logger),
		app.WithPreferredProtocol(cfg.Preferred()),
		app.WithDisabledProtocols(cfg.DisabledProtocols()...),
		app.WithMaxConcurrency(cfg.MaxConcurrency),
	)
	return &Service{Client: client, metadata: reg, preferGraph: cfg.PreferGraph}, nil
}

func newHTTPTransport(cfg Config, o options) (*httpadapter.Transport, error) {
	client := o.httpClient
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	sources := make(map[domain.Protocol]oauth2.TokenSource)
	if cfg.ClientID != "" {
		ctx := context.Background()
		if hc, ok := client.(*http.Client); ok {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
		}
		creds := httpadapter.Credentials{
			TenantID:     cfg.TenantID,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			AuthorityURL: cfg.AuthorityURL,
		}
		found, err := httpadapter.TokenSources(ctx, creds, cfg.SiteURL, cfg.GraphURL)
		if err != nil {
			return nil, fmt.Errorf("token sources: %w", err)
		}
		sources = found
	}
	for p, ts := range o.tokens {
		sources[p] = ts
	}

	return httpadapter.NewTransport(httpadapter.Config{
		SiteURL:      cfg.SiteURL,
		GraphURL:     cfg.GraphURL,
		MaxRetries:   cfg.MaxRetries,
		RetryInitial: cfg.RetryInitial,
		RetryMax:     cfg.RetryMax,
	}, client, o.logger, httpadapter.WithTokenSources(sources)), nil
}

// Metadata returns the registry entities created by this service resolve against.
func (s *Service) Metadata() *Metadata { return s.metadata }

// Entity creates an entity of typeName addressed by vars.
func (s *Service) Entity(typeName string, vars map[string]string) (*Entity, error) {
	return model.New(s.metadata, typeName, vars, model.PreferGraph(s.preferGraph))
}

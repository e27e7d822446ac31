package resolver

import (
	"net/url"

	"github.com/angeloszaimis/api-proxy/internal/registry"
)

const (
	ParamURL      = "u"
	ParamToken    = "t"
	ParamName     = "n"
	ParamMode     = "e"
	ModeFctWorker = "fct"
	ReasonNoParam = "missing query parameter"
)

// Target is the upstream a single inbound request resolves to.
type Target struct {
	URL   string
	Token string
	// Connection is the registry name that produced the target; empty when
	// the caller supplied the URL directly.
	Connection string
}

// ResolutionError reports why no target could be resolved. Reason is shown
// to the caller verbatim.
type ResolutionError struct {
	Reason string
}

func (e *ResolutionError) Error() string {
	return "unable to resolve target: " + e.Reason
}

type Resolver struct {
	registry *registry.Registry
}

func New(reg *registry.Registry) *Resolver {
	return &Resolver{registry: reg}
}

// Resolve picks the upstream for a request. pathSuffix is the part of the
// inbound path after the mount prefix, without a leading slash. Empty
// parameter values count as absent. The method does not influence the
// outcome today.
func (r *Resolver) Resolve(_ string, pathSuffix string, query url.Values) (Target, error) {
	if base := query.Get(ParamURL); base != "" {
		return Target{
			URL:   base + "/" + pathSuffix,
			Token: query.Get(ParamToken),
		}, nil
	}

	name := query.Get(ParamName)
	if name == "" {
		return Target{}, &ResolutionError{Reason: ReasonNoParam}
	}

	conn, ok := r.registry.Lookup(name)
	if !ok {
		return Target{}, &ResolutionError{Reason: `no connection named "` + name + `"`}
	}

	base := conn.URL
	if query.Get(ParamMode) == ModeFctWorker {
		base = conn.FctWorkerURL
	}

	return Target{
		URL:        base + "/" + pathSuffix,
		Token:      conn.BearerToken(),
		Connection: conn.Name,
	}, nil
}

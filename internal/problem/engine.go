package problem

import (
	"os"

	"github.com/pkg/errors"

	"github.com/gnolang/zeroelim/internal/domain"
	"github.com/gnolang/zeroelim/internal/expr"
	"github.com/gnolang/zeroelim/internal/optimize"
)

// Mode selects what an Engine does with a problem.
type Mode int

const (
	_ Mode = iota
	// ModeDomain simplifies the domains of a problem.
	ModeDomain
	// ModeOptimize runs the top level optimizer over the computed tensors.
	ModeOptimize
)

func (m Mode) String() string {
	switch m {
	case ModeDomain:
		return "domain"
	case ModeOptimize:
		return "optimize"
	}
	return "unknown"
}

// Report is the outcome for one domain or tensor of a problem file.
type Report struct {
	File   string `json:"file,omitempty"`
	Name   string `json:"name"`
	Input  string `json:"input"`
	Output string `json:"output"`
	// Helpers are the tensors the optimizer extracted from the output.
	Helpers []string `json:"helpers,omitempty"`
}

// Runner processes problem files and sources.
type Runner interface {
	Run(path string) ([]Report, error)
	RunSource(src []byte) ([]Report, error)
}

// Engine runs one pass over problems.
type Engine struct {
	mode  Mode
	opts  domain.Options
	cache *Cache
}

// NewEngine creates an engine running mode with opts.
func NewEngine(mode Mode, opts domain.Options) (*Engine, error) {
	if mode != ModeDomain && mode != ModeOptimize {
		return nil, errors.Errorf("unknown mode %d", mode)
	}
	return &Engine{mode: mode, opts: opts}, nil
}

// WithCache makes Run reuse the reports of sources it has seen before.
func (e *Engine) WithCache(c *Cache) *Engine {
	e.cache = c
	return e
}

// Run processes the problem file at path.
func (e *Engine) Run(path string) ([]Report, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var key string
	if e.cache != nil {
		key = CacheKey(e.mode, e.opts, src)
		if reports, ok := e.cache.Get(key); ok {
			return withFile(reports, path), nil
		}
	}

	reports, err := e.RunSource(src)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	if e.cache != nil {
		if err := e.cache.Set(key, reports); err != nil {
			return nil, err
		}
	}
	return withFile(reports, path), nil
}

func withFile(reports []Report, path string) []Report {
	for i := range reports {
		reports[i].File = path
	}
	return reports
}

// RunSource processes a problem given as YAML source.
func (e *Engine) RunSource(src []byte) ([]Report, error) {
	p, err := Parse(src)
	if err != nil {
		return nil, err
	}
	if e.mode == ModeDomain {
		return e.simplifyDomains(p)
	}
	return e.optimizeTensors(p)
}

func (e *Engine) simplifyDomains(p *Problem) ([]Report, error) {
	reports := make([]Report, 0, len(p.Domains))
	for _, nd := range p.Domains {
		tf, err := domain.SimplifyDomain(nd.Domain, e.opts)
		if err != nil {
			return nil, errors.Wrapf(err, "domain %s", nd.Name)
		}
		reports = append(reports, Report{
			Name:   nd.Name,
			Input:  nd.Domain.String(),
			Output: tf.String(),
		})
	}
	return reports, nil
}

func (e *Engine) optimizeTensors(p *Problem) ([]Report, error) {
	known := make(map[*expr.Tensor]bool, len(p.Inputs)+len(p.Tensors))
	for _, t := range p.Inputs {
		known[t] = true
	}
	for _, t := range p.Tensors {
		known[t] = true
	}

	reports := make([]Report, 0, len(p.Tensors))
	for _, t := range p.Tensors {
		out, err := optimize.OptimizeAndLiftNonzeronessConditions(t, p.Ranges, e.opts)
		if err != nil {
			return nil, errors.Wrapf(err, "tensor %s", t.Name)
		}
		var helpers []string
		for _, h := range extractedTensors(out, known) {
			helpers = append(helpers, h.String())
		}
		reports = append(reports, Report{
			Name:    t.Name,
			Input:   t.String(),
			Output:  out.String(),
			Helpers: helpers,
		})
	}
	return reports, nil
}

// extractedTensors lists the computed tensors read by the bodies of t,
// directly or through other such tensors, that are not in known.
func extractedTensors(t *expr.Tensor, known map[*expr.Tensor]bool) []*expr.Tensor {
	var res []*expr.Tensor
	seen := make(map[*expr.Tensor]bool)
	queue := []*expr.Tensor{t}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, b := range cur.Body {
			for _, r := range expr.CollectTensors(b) {
				if seen[r] || known[r] || r.IsPlaceholder() {
					continue
				}
				seen[r] = true
				res = append(res, r)
				queue = append(queue, r)
			}
		}
	}
	return res
}

package problem

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/zeroelim/internal/domain"
	"github.com/gnolang/zeroelim/internal/expr"
)

const maskedSum = `
name: masked-sum
vars:
  - {name: n}
  - {name: k, min: "0", extent: "n"}
  - {name: i, extent: "n", reduce: true}
placeholders:
  - {name: a, shape: ["n"]}
domains:
  - name: multiples
    vars: [{name: v, extent: "10"}]
    conditions: ["v % 3 == 0"]
  - name: contradiction
    vars: [{name: x, extent: "100"}]
    conditions: ["x == 1 && x == 2"]
tensors:
  - name: out
    axis: [{name: j, extent: "3"}]
    body: "sum(select(i < k, a[i], 0), i)"
`

func TestParse(t *testing.T) {
	t.Parallel()
	p, err := Parse([]byte(maskedSum))
	require.NoError(t, err)

	assert.Equal(t, "masked-sum", p.Name)
	require.Len(t, p.Ranges, 1, "only k has an outer range")
	for v, r := range p.Ranges {
		assert.Equal(t, "k", v.Name)
		assert.Equal(t, "[0, 0 + n)", r.String())
	}
	require.Len(t, p.Inputs, 1)
	assert.True(t, p.Inputs[0].IsPlaceholder())

	require.Len(t, p.Domains, 2)
	d := p.Domains[0].Domain
	require.Len(t, d.Variables, 1)
	assert.Equal(t, "v", d.Variables[0].Name)
	require.Len(t, d.Conditions, 1)

	require.Len(t, p.Tensors, 1)
	red, ok := p.Tensors[0].Body[0].(expr.Reduce)
	require.True(t, ok)
	assert.Equal(t, "i", red.Axis[0].Var.Name)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		src  string
	}{
		{"yaml", "vars: [name: x"},
		{"unknown type", "vars: [{name: x, type: complex}]"},
		{"unknown variable", "vars: [{name: x, extent: y}]"},
		{"reduction without extent", "vars: [{name: x, reduce: true}]"},
		{"condition not boolean", "domains: [{name: d, vars: [{name: x, extent: '4'}], conditions: ['x + 1']}]"},
		{"tensor without body", "tensors: [{name: t}]"},
		{"axis without extent", "tensors: [{name: t, axis: [{name: j}], body: 'j'}]"},
		{"placeholder with body", "placeholders: [{name: a, shape: ['4'], body: '1'}]"},
		{"axis leaks", "tensors: [{name: t, axis: [{name: j, extent: '2'}], body: 'j'}, {name: u, body: 'j'}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestEngineDomains(t *testing.T) {
	t.Parallel()
	engine, err := NewEngine(ModeDomain, domain.DefaultOptions())
	require.NoError(t, err)

	reports, err := engine.RunSource([]byte(maskedSum))
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, "multiples", reports[0].Name)
	assert.Contains(t, reports[0].Input, "box_volume=10")
	assert.True(t, strings.HasPrefix(reports[0].Output, "Transformation(new_domain=Domain(box_volume=4,"), reports[0].Output)

	assert.Equal(t, "contradiction", reports[1].Name)
	assert.Contains(t, reports[1].Output, "conditions=[false]")
}

func TestEngineOptimize(t *testing.T) {
	t.Parallel()
	engine, err := NewEngine(ModeOptimize, domain.DefaultOptions())
	require.NoError(t, err)

	reports, err := engine.RunSource([]byte(maskedSum))
	require.NoError(t, err)
	require.Len(t, reports, 1)

	r := reports[0]
	assert.Equal(t, "out", r.Name)
	assert.NotContains(t, r.Output, "reduce(")
	require.Len(t, r.Helpers, 1)
	assert.True(t, strings.HasPrefix(r.Helpers[0], "extracted_reduction"), r.Helpers[0])
	assert.NotContains(t, r.Helpers[0], "select")
}

func TestEngineRun(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "masked.yaml")
	require.NoError(t, os.WriteFile(path, []byte(maskedSum), 0o644))

	engine, err := NewEngine(ModeDomain, domain.DefaultOptions())
	require.NoError(t, err)
	reports, err := engine.Run(path)
	require.NoError(t, err)
	for _, r := range reports {
		assert.Equal(t, path, r.File)
	}

	_, err = engine.Run(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = NewEngine(Mode(0), domain.DefaultOptions())
	assert.Error(t, err)
}

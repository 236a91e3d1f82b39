package steps

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/systemstart/many-deploy/pkg/resource"
)

// renderer executes argument templates. The handle and address functions
// only see the handles in scope, so a reference to an undeclared step fails
// before anything is sent to the backend.
type renderer struct {
	step       string
	handles    map[string]resource.Handle
	data       map[string]any
	unresolved string
}

func newRenderer(step string, sctx StepContext) *renderer {
	return &renderer{step: step, handles: sctx.Handles, data: sctx.TemplateData}
}

func (r *renderer) lookup(name string) (resource.Handle, error) {
	h, ok := r.handles[name]
	if !ok {
		if r.unresolved == "" {
			r.unresolved = name
		}
		return resource.Handle{}, resource.Unresolvedf("%q is not a declared dependency", name)
	}
	return h, nil
}

func (r *renderer) funcs() template.FuncMap {
	fm := sprig.TxtFuncMap()
	fm["handle"] = r.lookup
	fm["address"] = func(name string) (string, error) {
		h, err := r.lookup(name)
		return h.Address, err
	}
	return fm
}

func (r *renderer) render(field, text string) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New(r.step + "/" + field).Option("missingkey=error").Funcs(r.funcs()).Parse(text)
	if err != nil {
		return "", resource.Invalidf("parsing %s template: %v", field, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, r.data); err != nil {
		if r.unresolved != "" {
			return "", resource.Unresolvedf("%s references %q which is not a declared dependency", field, r.unresolved)
		}
		return "", resource.Invalidf("executing %s template: %v", field, err)
	}

	return strings.TrimSpace(buf.String()), nil
}

func (r *renderer) renderAll(field string, texts []string) ([]string, error) {
	out := make([]string, len(texts))
	for i, t := range texts {
		v, err := r.render(fmt.Sprintf("%s[%d]", field, i), t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

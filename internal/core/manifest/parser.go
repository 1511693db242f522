package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/artpar/chainhost/internal/core/deployment"
	"github.com/artpar/chainhost/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Parser Functions
// =============================================================================

// Parse parses manifest YAML into a validated Manifest.
// This is a pure function - no I/O, no side effects.
//
// A manifest has either a layout block, expanded with
// deployment.BuildAuthorizedStorage, or an explicit steps list.
func Parse(data []byte) (*Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, NewParseError("", "no content", ErrEmptyInput)
	}

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, NewParseError("", "no content", ErrEmptyInput)
		}
		return nil, NewParseError("", err.Error(), ErrInvalidYAML)
	}

	switch {
	case doc.Layout != nil && len(doc.Steps) > 0:
		return nil, NewParseError("", "use either layout or steps", ErrLayoutAndSteps)
	case doc.Layout != nil:
		return parseLayout(doc)
	case len(doc.Steps) > 0:
		return parseSteps(doc)
	default:
		return nil, NewParseError("", "nothing to deploy", ErrNoSteps)
	}
}

// Default returns the manifest for deployment.DefaultLayout.
func Default() *Manifest {
	l := deployment.DefaultLayout()
	p, err := deployment.BuildAuthorizedStorage(l)
	if err != nil {
		panic(fmt.Sprintf("default layout is invalid: %v", err))
	}
	return &Manifest{Name: l.Name, Layout: &l, Plan: p}
}

func parseLayout(doc document) (*Manifest, error) {
	b := doc.Layout
	l := deployment.Layout{
		Name:            doc.Name,
		Library:         strings.TrimSpace(b.Library),
		LinkInto:        b.LinkInto,
		Storage:         strings.TrimSpace(b.Storage),
		Apps:            b.Apps,
		AuthorizeMethod: strings.TrimSpace(b.AuthorizeMethod),
	}
	if l.Storage == "" {
		return nil, NewParseError("layout.storage", "storage unit is required", ErrMissingField)
	}
	if len(l.Apps) == 0 {
		return nil, NewParseError("layout.apps", "at least one app is required", ErrMissingField)
	}

	p, err := deployment.BuildAuthorizedStorage(l)
	if err != nil {
		return nil, NewParseError("layout", err.Error(), err)
	}
	return &Manifest{Name: doc.Name, Layout: &l, Plan: p}, nil
}

func parseSteps(doc document) (*Manifest, error) {
	p := deployment.Plan{Name: doc.Name, Steps: make([]deployment.Step, 0, len(doc.Steps))}
	for i, b := range doc.Steps {
		s, err := convertStep(fmt.Sprintf("steps[%d]", i), b)
		if err != nil {
			return nil, err
		}
		p.Steps = append(p.Steps, s)
	}

	if err := deployment.Validate(p); err != nil {
		return nil, NewParseError("steps", err.Error(), err)
	}
	return &Manifest{Name: doc.Name, Plan: p}, nil
}

// convertStep converts one YAML step to its deployment.Step.
func convertStep(field string, b stepBlock) (deployment.Step, error) {
	actions := 0
	for _, set := range []bool{b.Publish != "", b.Link != nil, b.Authorize != nil, b.Call != nil} {
		if set {
			actions++
		}
	}
	if actions != 1 {
		return deployment.Step{}, NewParseError(field,
			fmt.Sprintf("found %d of publish, link, authorize, call", actions), ErrAmbiguousStep)
	}
	if b.Publish == "" && (b.Kind != "" || len(b.Args) > 0) {
		return deployment.Step{}, NewParseError(field, "kind and args only apply to publish", ErrUnsupportedField)
	}

	switch {
	case b.Publish != "":
		kind, err := domain.ParseUnitKind(b.Kind)
		if err != nil {
			return deployment.Step{}, NewParseError(field+".kind", err.Error(), err)
		}
		if kind == domain.KindLibrary {
			if len(b.Args) > 0 {
				return deployment.Step{}, NewParseError(field+".args", "libraries take no constructor arguments", ErrUnsupportedField)
			}
			return deployment.PublishLibrary(b.Publish), nil
		}
		return deployment.Publish(b.Publish, parseArgs(b.Args)...), nil

	case b.Link != nil:
		if b.Link.Library == "" {
			return deployment.Step{}, NewParseError(field+".link.library", "library is required", ErrMissingField)
		}
		if b.Link.Into == "" {
			return deployment.Step{}, NewParseError(field+".link.into", "into is required", ErrMissingField)
		}
		return deployment.Link(b.Link.Library, b.Link.Into), nil

	case b.Authorize != nil:
		a := b.Authorize
		if a.Storage == "" {
			return deployment.Step{}, NewParseError(field+".authorize.storage", "storage is required", ErrMissingField)
		}
		if a.Grantee == "" {
			return deployment.Step{}, NewParseError(field+".authorize.grantee", "grantee is required", ErrMissingField)
		}
		method := a.Method
		if method == "" {
			method = deployment.DefaultAuthorizeMethod
		}
		return deployment.Authorize(a.Storage, method, a.Grantee), nil

	default:
		c := b.Call
		if c.Target == "" {
			return deployment.Step{}, NewParseError(field+".call.target", "target is required", ErrMissingField)
		}
		if c.Method == "" {
			return deployment.Step{}, NewParseError(field+".call.method", "method is required", ErrMissingField)
		}
		return deployment.Call(c.Target, c.Method, parseArgs(c.Args)...), nil
	}
}

func parseArgs(raw []string) []deployment.Arg {
	if len(raw) == 0 {
		return nil
	}
	args := make([]deployment.Arg, len(raw))
	for i, s := range raw {
		args[i] = deployment.ParseArg(s)
	}
	return args
}

// =============================================================================
// Encoding
// =============================================================================

// Marshal renders a plan in the explicit steps form accepted by Parse.
func Marshal(p deployment.Plan) ([]byte, error) {
	doc := document{Name: p.Name, Steps: make([]stepBlock, 0, len(p.Steps))}
	for _, s := range p.Steps {
		var b stepBlock
		switch s.Kind {
		case deployment.StepPublish:
			b.Publish = s.Unit
			if s.UnitKind == domain.KindLibrary {
				b.Kind = string(domain.KindLibrary)
			}
			b.Args = formatArgs(s.Args)
		case deployment.StepLink:
			b.Link = &linkBlock{Library: s.Unit, Into: s.Into}
		case deployment.StepAuthorize:
			b.Authorize = &authorizeBlock{Storage: s.Unit, Grantee: s.Grantee, Method: s.Method}
		case deployment.StepCall:
			b.Call = &callBlock{Target: s.Unit, Method: s.Method, Args: formatArgs(s.Args)}
		default:
			return nil, fmt.Errorf("marshal manifest: unknown step kind %q", s.Kind)
		}
		doc.Steps = append(doc.Steps, b)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return buf.Bytes(), nil
}

func formatArgs(args []deployment.Arg) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = a.String()
	}
	return out
}

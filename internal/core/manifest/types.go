package manifest

import (
	"github.com/artpar/chainhost/internal/core/deployment"
)

// =============================================================================
// Manifest - Main Output Type
// =============================================================================

// Manifest is a parsed and validated migration description.
// Layout is set when the manifest used the layout form; Plan is always set.
type Manifest struct {
	Name   string
	Layout *deployment.Layout
	Plan   deployment.Plan
}

// =============================================================================
// YAML Document Types
// =============================================================================

type document struct {
	Name   string       `yaml:"name"`
	Layout *layoutBlock `yaml:"layout,omitempty"`
	Steps  []stepBlock  `yaml:"steps,omitempty"`
}

type layoutBlock struct {
	Library         string   `yaml:"library,omitempty"`
	LinkInto        []string `yaml:"link_into,omitempty"`
	Storage         string   `yaml:"storage"`
	Apps            []string `yaml:"apps"`
	AuthorizeMethod string   `yaml:"authorize_method,omitempty"`
}

// stepBlock holds one step. Exactly one of Publish, Link, Authorize or
// Call is set; Kind and Args belong to Publish.
type stepBlock struct {
	Publish   string          `yaml:"publish,omitempty"`
	Kind      string          `yaml:"kind,omitempty"`
	Args      []string        `yaml:"args,omitempty"`
	Link      *linkBlock      `yaml:"link,omitempty"`
	Authorize *authorizeBlock `yaml:"authorize,omitempty"`
	Call      *callBlock      `yaml:"call,omitempty"`
}

type linkBlock struct {
	Library string `yaml:"library"`
	Into    string `yaml:"into"`
}

type authorizeBlock struct {
	Storage string `yaml:"storage"`
	Grantee string `yaml:"grantee"`
	Method  string `yaml:"method,omitempty"`
}

type callBlock struct {
	Target string   `yaml:"target"`
	Method string   `yaml:"method"`
	Args   []string `yaml:"args,omitempty"`
}

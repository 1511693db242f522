package artifact

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// =============================================================================
// Artifact Types
// =============================================================================

// Artifact is the compiled form of a deployable unit.
type Artifact struct {
	Name string
	ABI  abi.ABI

	// Bytecode is the creation code as hex without the 0x prefix.
	// It may still contain 40-character library placeholders.
	Bytecode string

	// Libraries lists fully qualified library names ("path/File.sol:Lib")
	// taken from the compiler's link references, when present.
	Libraries []string
}

// Code decodes the creation bytecode. It fails while placeholders remain.
func (a *Artifact) Code() ([]byte, error) {
	if ph := Placeholders(a.Bytecode); len(ph) > 0 {
		return nil, NewArtifactError(a.Name, "bytecode", "unresolved: "+strings.Join(PlaceholderNames(ph), ", "), ErrUnlinkedBytecode)
	}
	code, err := hexutil.Decode("0x" + a.Bytecode)
	if err != nil {
		return nil, NewArtifactError(a.Name, "bytecode", err.Error(), ErrInvalidBytecode)
	}
	return code, nil
}

// WithBytecode returns a copy of the artifact carrying different bytecode.
func (a *Artifact) WithBytecode(code string) *Artifact {
	cp := *a
	cp.Bytecode = code
	return &cp
}

// Set holds artifacts by unit name.
type Set map[string]*Artifact

// Get returns the artifact for a unit.
func (s Set) Get(name string) (*Artifact, error) {
	a, ok := s[name]
	if !ok {
		return nil, NewArtifactError(name, "", "no artifact for unit", ErrArtifactNotFound)
	}
	return a, nil
}

// Names returns the artifact names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// Parsing
// =============================================================================

type linkReferences map[string]map[string]json.RawMessage

// rawArtifact covers Truffle, Hardhat and Foundry output. Foundry nests the
// bytecode and its link references under an object.
type rawArtifact struct {
	ContractName   string          `json:"contractName"`
	ABI            json.RawMessage `json:"abi"`
	Bytecode       json.RawMessage `json:"bytecode"`
	LinkReferences linkReferences  `json:"linkReferences"`
}

type rawBytecodeObject struct {
	Object         string         `json:"object"`
	LinkReferences linkReferences `json:"linkReferences"`
}

// Parse parses a compiled artifact. fallbackName is used when the JSON does
// not carry a contractName (Foundry output is named after its file).
func Parse(fallbackName string, data []byte) (*Artifact, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, NewArtifactError(fallbackName, "", "no content", ErrEmptyInput)
	}

	var raw rawArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, NewArtifactError(fallbackName, "", err.Error(), ErrInvalidJSON)
	}

	name := raw.ContractName
	if name == "" {
		name = fallbackName
	}

	if len(raw.ABI) == 0 {
		return nil, NewArtifactError(name, "abi", "missing", ErrInvalidABI)
	}
	parsedABI, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, NewArtifactError(name, "abi", err.Error(), ErrInvalidABI)
	}

	code, refs, err := parseBytecode(raw)
	if err != nil {
		return nil, NewArtifactError(name, "bytecode", err.Error(), ErrInvalidJSON)
	}
	code = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(code), "0x"), "0X")
	if code == "" {
		return nil, NewArtifactError(name, "bytecode", "empty", ErrNoBytecode)
	}

	return &Artifact{
		Name:      name,
		ABI:       parsedABI,
		Bytecode:  code,
		Libraries: libraryNames(refs),
	}, nil
}

func parseBytecode(raw rawArtifact) (string, linkReferences, error) {
	trimmed := bytes.TrimSpace(raw.Bytecode)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", raw.LinkReferences, nil
	}
	if trimmed[0] == '"' {
		var code string
		if err := json.Unmarshal(trimmed, &code); err != nil {
			return "", nil, err
		}
		return code, raw.LinkReferences, nil
	}

	var obj rawBytecodeObject
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return "", nil, err
	}
	refs := obj.LinkReferences
	if len(refs) == 0 {
		refs = raw.LinkReferences
	}
	return obj.Object, refs, nil
}

func libraryNames(refs linkReferences) []string {
	var names []string
	for file, libs := range refs {
		for lib := range libs {
			names = append(names, file+":"+lib)
		}
	}
	sort.Strings(names)
	return names
}

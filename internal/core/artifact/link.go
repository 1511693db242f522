package artifact

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// =============================================================================
// Library Linking
// =============================================================================

// placeholderLen is the width of a library placeholder, equal to the hex
// width of the address that replaces it.
const placeholderLen = 40

// LegacyPlaceholder returns the pre-0.5 solc / Truffle placeholder for a
// library: "__" + name, cut to 36 characters and padded with underscores.
func LegacyPlaceholder(name string) string {
	if len(name) > 36 {
		name = name[:36]
	}
	return "__" + name + strings.Repeat("_", 38-len(name))
}

// HashedPlaceholder returns the solc >= 0.5 placeholder for a fully
// qualified library name: "__$" + 34 hex chars of keccak256(name) + "$__".
func HashedPlaceholder(fqName string) string {
	h := crypto.Keccak256Hash([]byte(fqName)).Hex()
	return "__$" + h[2:36] + "$__"
}

// Link replaces every placeholder for library in code with addr.
// fqNames are the fully qualified names from the artifact's link references;
// entries whose final segment is library are linked too.
// It returns the linked code and the number of placeholders replaced.
func Link(code, library string, fqNames []string, addr common.Address) (string, int) {
	addrHex := strings.ToLower(strings.TrimPrefix(addr.Hex(), "0x"))

	candidates := []string{LegacyPlaceholder(library), HashedPlaceholder(library)}
	for _, fq := range fqNames {
		if libraryOf(fq) == library && fq != library {
			candidates = append(candidates, LegacyPlaceholder(fq), HashedPlaceholder(fq))
		}
	}

	replaced := 0
	for _, ph := range candidates {
		if n := strings.Count(code, ph); n > 0 {
			replaced += n
			code = strings.ReplaceAll(code, ph, addrHex)
		}
	}
	return code, replaced
}

// Placeholders returns the distinct placeholders left in code, in order of
// first appearance. Hex never contains '_', so every "__" starts one.
func Placeholders(code string) []string {
	var out []string
	seen := make(map[string]bool)

	i := strings.Index(code, "__")
	for i >= 0 {
		end := i + placeholderLen
		if end > len(code) {
			end = len(code)
		}
		ph := code[i:end]
		if !seen[ph] {
			seen[ph] = true
			out = append(out, ph)
		}
		next := strings.Index(code[end:], "__")
		if next < 0 {
			break
		}
		i = end + next
	}
	return out
}

// PlaceholderNames renders placeholders for error messages: legacy
// placeholders show the library name, hashed ones stay as they are.
func PlaceholderNames(placeholders []string) []string {
	names := make([]string, len(placeholders))
	for i, ph := range placeholders {
		if strings.HasPrefix(ph, "__$") {
			names[i] = ph
			continue
		}
		names[i] = strings.Trim(ph, "_")
	}
	return names
}

func libraryOf(fqName string) string {
	if i := strings.LastIndex(fqName, ":"); i >= 0 {
		return fqName[i+1:]
	}
	return fqName
}

package artifacts

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NeededLibraries returns the fully qualified names ("source:Library") of the
// libraries referenced by the artifact's bytecode, sorted.
func (a *Artifact) NeededLibraries() []string {
	var out []string
	for source, libs := range a.LinkReferences {
		for lib := range libs {
			out = append(out, source+":"+lib)
		}
	}
	slices.Sort(out)
	return out
}

// LinkBytecode replaces the library placeholders in the artifact's bytecode.
// Keys of libraries may be bare ("Math") or fully qualified
// ("contracts/Math.sol:Math"). Every needed library must be provided exactly
// once and no unknown library may be given.
func LinkBytecode(a *Artifact, libraries map[string]common.Address) ([]byte, error) {
	code, err := hex.DecodeString(strings.TrimPrefix(a.Bytecode, "0x"))
	if err != nil {
		if len(a.LinkReferences) == 0 {
			return nil, fmt.Errorf("decode bytecode of %s: %w", a.ContractName, err)
		}
		// Unlinked bytecode carries __$...$__ placeholders that are not hex.
		code, err = decodeWithPlaceholders(strings.TrimPrefix(a.Bytecode, "0x"))
		if err != nil {
			return nil, fmt.Errorf("decode bytecode of %s: %w", a.ContractName, err)
		}
	}

	used := make(map[string]bool, len(libraries))
	for _, fq := range a.NeededLibraries() {
		source, lib, _ := strings.Cut(fq, ":")
		addr, key, err := lookupLibrary(libraries, fq, lib)
		if err != nil {
			return nil, fmt.Errorf("link %s: %w", a.ContractName, err)
		}
		used[key] = true
		for _, ref := range a.LinkReferences[source][lib] {
			if ref.Length != common.AddressLength || ref.Start+ref.Length > len(code) {
				return nil, fmt.Errorf("link %s: invalid link reference for %s", a.ContractName, fq)
			}
			copy(code[ref.Start:ref.Start+ref.Length], addr.Bytes())
		}
	}

	for name := range libraries {
		if !used[name] {
			return nil, fmt.Errorf("link %s: library %s is not needed", a.ContractName, name)
		}
	}
	return code, nil
}

func lookupLibrary(libraries map[string]common.Address, fq, bare string) (common.Address, string, error) {
	if addr, ok := libraries[fq]; ok {
		if _, dup := libraries[bare]; dup {
			return common.Address{}, "", fmt.Errorf("library %s given both as %s and %s", bare, fq, bare)
		}
		return addr, fq, nil
	}
	if addr, ok := libraries[bare]; ok {
		return addr, bare, nil
	}
	return common.Address{}, "", fmt.Errorf("missing library %s", fq)
}

// decodeWithPlaceholders decodes hex where 40-character library placeholders
// ("__$<hash>$__" or "__Name_____") are zero-filled.
func decodeWithPlaceholders(s string) ([]byte, error) {
	var b strings.Builder
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], "__") && i+40 <= len(s) {
			b.WriteString(strings.Repeat("0", 40))
			i += 40
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return hex.DecodeString(b.String())
}

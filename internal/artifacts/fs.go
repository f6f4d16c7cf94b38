package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FSResolver finds artifacts under a Hardhat-style artifacts directory:
// <root>/**/<Name>.json with a sibling <Name>.dbg.json pointing at the build
// info file.
type FSResolver struct {
	root string
}

// NewFSResolver returns a resolver rooted at dir.
func NewFSResolver(dir string) *FSResolver {
	return &FSResolver{root: dir}
}

// LoadArtifact implements Resolver.
func (r *FSResolver) LoadArtifact(_ context.Context, contractName string) (*Artifact, error) {
	path, err := r.find(contractName)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", contractName, err)
	}
	return Parse(data)
}

// GetBuildInfo implements Resolver.
func (r *FSResolver) GetBuildInfo(_ context.Context, contractName string) (*BuildInfo, error) {
	path, err := r.find(contractName)
	if err != nil {
		return nil, err
	}
	dbgPath := strings.TrimSuffix(path, ".json") + ".dbg.json"
	data, err := os.ReadFile(dbgPath)
	if err != nil {
		return nil, fmt.Errorf("read debug file for %s: %w", contractName, err)
	}
	var dbg struct {
		BuildInfo string `json:"buildInfo"`
	}
	if err := json.Unmarshal(data, &dbg); err != nil {
		return nil, fmt.Errorf("decode debug file for %s: %w", contractName, err)
	}
	biPath := filepath.Join(filepath.Dir(dbgPath), filepath.FromSlash(dbg.BuildInfo))
	data, err = os.ReadFile(biPath)
	if err != nil {
		return nil, fmt.Errorf("read build info for %s: %w", contractName, err)
	}
	var bi BuildInfo
	if err := json.Unmarshal(data, &bi); err != nil {
		return nil, fmt.Errorf("decode build info for %s: %w", contractName, err)
	}
	if bi.ID == "" {
		bi.ID = strings.TrimSuffix(filepath.Base(biPath), ".json")
	}
	return &bi, nil
}

// find locates <Name>.json. A fully qualified "path/File.sol:Name" selects
// the artifact under that source directory.
func (r *FSResolver) find(contractName string) (string, error) {
	source, name, qualified := strings.Cut(contractName, ":")
	if !qualified {
		name = contractName
	}
	var matches []string
	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != name+".json" {
			return nil
		}
		if qualified && filepath.Base(filepath.Dir(path)) != filepath.Base(source) {
			return nil
		}
		matches = append(matches, path)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("search artifacts for %s: %w", contractName, err)
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("artifact for contract %s not found in %s", contractName, r.root)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("multiple artifacts for contract %s, use a fully qualified name", contractName)
	}
}

package ethereum

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/systemstart/many-deploy/pkg/resource"
)

// Artifact is a compiled contract: its ABI and creation bytecode.
type Artifact struct {
	Name     string
	Path     string
	ABI      abi.ABI
	Bytecode []byte
}

// artifactFile is the subset of a hardhat/foundry artifact that is read.
type artifactFile struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     json.RawMessage `json:"bytecode"`
}

// Artifacts locates compiled contracts by name under a directory tree.
type Artifacts struct {
	dir string

	mu    sync.Mutex
	cache map[string]*Artifact
}

// NewArtifacts returns a lookup rooted at dir.
func NewArtifacts(dir string) *Artifacts {
	return &Artifacts{dir: dir, cache: make(map[string]*Artifact)}
}

// Load returns the artifact named <name>.json anywhere under the directory.
// A missing or ambiguous artifact is resource.ErrInvalidStepParameters.
func (a *Artifacts) Load(name string) (*Artifact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if art, ok := a.cache[name]; ok {
		return art, nil
	}

	if name == "" || strings.ContainsAny(name, `*?[]{}\/`) {
		return nil, resource.Invalidf("invalid contract name %q", name)
	}

	matches, err := doublestar.Glob(os.DirFS(a.dir), "**/"+name+".json")
	if err != nil {
		return nil, fmt.Errorf("searching artifacts for %s: %w", name, err)
	}
	slices.Sort(matches)

	switch len(matches) {
	case 0:
		return nil, resource.Invalidf("no artifact for contract %q under %s", name, a.dir)
	case 1:
	default:
		return nil, resource.Invalidf("contract %q is ambiguous: %v", name, matches)
	}

	art, err := readArtifact(filepath.Join(a.dir, filepath.FromSlash(matches[0])))
	if err != nil {
		return nil, err
	}
	if art.Name == "" {
		art.Name = name
	}
	a.cache[name] = art
	return art, nil
}

func readArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	var f artifactFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, resource.Invalidf("parsing artifact %s: %v", path, err)
	}
	if len(f.ABI) == 0 {
		return nil, resource.Invalidf("artifact %s has no abi", path)
	}

	parsed, err := abi.JSON(bytes.NewReader(f.ABI))
	if err != nil {
		return nil, resource.Invalidf("parsing abi in %s: %v", path, err)
	}

	code, err := decodeBytecode(f.Bytecode)
	if err != nil {
		return nil, resource.Invalidf("decoding bytecode in %s: %v", path, err)
	}

	return &Artifact{Name: f.ContractName, Path: path, ABI: parsed, Bytecode: code}, nil
}

// decodeBytecode accepts both a plain hex string and the {"object": "..."}
// form foundry writes.
func decodeBytecode(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var obj struct {
			Object string `json:"object"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		s = obj.Object
	}
	if s == "" || s == "0x" {
		return nil, nil
	}
	if len(s) < 2 || s[:2] != "0x" {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

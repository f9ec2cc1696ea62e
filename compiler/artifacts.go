package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Artifact is the compiled form of one contract.
type Artifact struct {
	ABI      json.RawMessage `json:"abi"`
	Bytecode string          `json:"bytecode"`
}

// Artifacts maps contract names to their compiled form.
type Artifacts map[string]Artifact

// UnmarshalJSON accepts "byteCode" as an alias of "bytecode".
func (a *Artifact) UnmarshalJSON(data []byte) error {
	var raw struct {
		ABI      json.RawMessage `json:"abi"`
		Bytecode *string         `json:"bytecode"`
		ByteCode *string         `json:"byteCode"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.ABI = raw.ABI
	switch {
	case raw.Bytecode != nil:
		a.Bytecode = *raw.Bytecode
	case raw.ByteCode != nil:
		a.Bytecode = *raw.ByteCode
	default:
		a.Bytecode = ""
	}
	return nil
}

// Parse decodes the ABI and the bytecode. Bytecode may be given with or without 0x prefix.
func (a Artifact) Parse() (*abi.ABI, []byte, error) {
	if len(a.ABI) == 0 {
		return nil, nil, fmt.Errorf("artifact has no abi")
	}
	parsed, err := abi.JSON(bytes.NewReader(a.ABI))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse abi: %w", err)
	}
	code := a.Bytecode
	if !has0xPrefix(code) {
		code = "0x" + code
	}
	if code == "0x" {
		return &parsed, []byte{}, nil
	}
	bytecode, err := hexutil.Decode(code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode bytecode: %w", err)
	}
	return &parsed, bytecode, nil
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// Names returns the contract names, sorted.
func (as Artifacts) Names() []string {
	names := make([]string, 0, len(as))
	for name := range as {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (as Artifacts) Get(name string) (Artifact, error) {
	a, ok := as[name]
	if !ok {
		return Artifact{}, fmt.Errorf("no artifact for contract %q", name)
	}
	return a, nil
}

// WriteArtifacts stores artifacts as indented JSON, creating the parent directory.
func WriteArtifacts(fs afero.Fs, path string, as Artifacts) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	data, err := json.MarshalIndent(as, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode artifacts: %w", err)
	}
	if err := afero.WriteFile(fs, path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func ReadArtifacts(fs afero.Fs, path string) (Artifacts, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var as Artifacts
	if err := json.Unmarshal(data, &as); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return as, nil
}

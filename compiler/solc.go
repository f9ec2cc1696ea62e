package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/ethereum/go-ethereum/log"
)

const (
	DefaultSolcPath = "solc"
	// DefaultSolcConstraint admits every release supporting --combined-json abi,bin.
	DefaultSolcConstraint = ">= 0.4.11"
)

var (
	solcVersion = regexp.MustCompile(`Version: ([0-9]+\.[0-9]+\.[0-9]+)`)
	blankLines  = regexp.MustCompile(`\n\s*\n`)
)

// Solc runs a local solc binary, feeding the source on stdin.
type Solc struct {
	Path       string
	Constraint string
	Log        log.Logger

	mu      sync.Mutex
	checked *semver.Version
}

var _ Compiler = (*Solc)(nil)

func NewSolc(path string, constraint string, logger log.Logger) *Solc {
	if path == "" {
		path = DefaultSolcPath
	}
	if constraint == "" {
		constraint = DefaultSolcConstraint
	}
	if logger == nil {
		logger = log.Root()
	}
	return &Solc{Path: path, Constraint: constraint, Log: logger}
}

// Version runs solc --version.
func (s *Solc) Version(ctx context.Context) (*semver.Version, error) {
	out, err := exec.CommandContext(ctx, s.Path, "--version").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run %s --version: %w", s.Path, err)
	}
	m := solcVersion.FindSubmatch(out)
	if m == nil {
		return nil, fmt.Errorf("unrecognized %s version output: %q", s.Path, strings.TrimSpace(string(out)))
	}
	return semver.NewVersion(string(m[1]))
}

// checkVersion verifies the binary against the constraint once.
func (s *Solc) checkVersion(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checked != nil {
		return nil
	}
	constraint, err := semver.NewConstraint(s.Constraint)
	if err != nil {
		return fmt.Errorf("invalid solc version constraint %q: %w", s.Constraint, err)
	}
	v, err := s.Version(ctx)
	if err != nil {
		return err
	}
	if !constraint.Check(v) {
		return fmt.Errorf("solc %s does not satisfy %s", v, s.Constraint)
	}
	s.Log.Debug("Using solc", "path", s.Path, "version", v)
	s.checked = v
	return nil
}

func (s *Solc) Compile(ctx context.Context, source string) (Artifacts, error) {
	if err := s.checkVersion(ctx); err != nil {
		return nil, err
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.Path, "--combined-json", "abi,bin", "-")
	cmd.Stdin = strings.NewReader(source)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			return nil, &CompileError{Errors: splitMessages(stderr.String())}
		}
		return nil, fmt.Errorf("failed to run %s: %w", s.Path, err)
	}
	if msgs := splitMessages(stderr.String()); len(msgs) > 0 {
		s.Log.Warn("Compiler reported warnings", "count", len(msgs))
	}
	return parseCombinedJSON(stdout.Bytes())
}

// splitMessages splits compiler output into messages separated by blank lines.
func splitMessages(out string) []string {
	var msgs []string
	for _, block := range blankLines.Split(out, -1) {
		if block = strings.TrimSpace(block); block != "" {
			msgs = append(msgs, block)
		}
	}
	return msgs
}

func parseCombinedJSON(data []byte) (Artifacts, error) {
	var out struct {
		Contracts map[string]struct {
			ABI json.RawMessage `json:"abi"`
			Bin string          `json:"bin"`
		} `json:"contracts"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode compiler output: %w", err)
	}
	as := make(Artifacts, len(out.Contracts))
	for key, c := range out.Contracts {
		name := key[strings.LastIndex(key, ":")+1:]
		abiJSON := c.ABI
		// releases before 0.8.10 encode the abi as a JSON string
		if len(abiJSON) > 0 && abiJSON[0] == '"' {
			var s string
			if err := json.Unmarshal(abiJSON, &s); err != nil {
				return nil, fmt.Errorf("failed to decode abi of %s: %w", name, err)
			}
			abiJSON = json.RawMessage(s)
		}
		as[name] = Artifact{ABI: abiJSON, Bytecode: "0x" + c.Bin}
	}
	return as, nil
}

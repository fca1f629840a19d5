package wallet

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	walletsDir = "wallet-json"
	pvFile     = "pv.txt"
)

// ErrNotFound is returned by Get when index is outside the discovered
// source range.
var ErrNotFound = errors.New("wallet: index not found")

// ErrInvalidKeyFormat is returned by Get when a source's key material
// cannot be parsed as hex-encoded SECP256K1 scalar.
var ErrInvalidKeyFormat = errors.New("wallet: invalid key format")

type sourceKind int

const (
	sourceJSON sourceKind = iota
	sourceRaw
)

type source struct {
	kind sourceKind
	path string // sourceJSON: path to the json file
	key  string // sourceRaw: the raw hex private key
}

// Store discovers wallet sources once at construction and lazily decrypts
// and caches Wallet values by index, matching the original WalletManager's
// discover-once/decrypt-on-demand behavior.
type Store struct {
	sources []source
	roots   []string

	mu    sync.Mutex
	cache map[int]*Wallet
}

// NewStore scans the given candidate roots (in order) for a wallet-json/
// directory of *.json files, sorted by name; if none is found in any root
// it falls back to a pv.txt file of raw hex keys, one per non-empty,
// non-comment line, in the first root that has one.
func NewStore(roots ...string) (*Store, error) {
	if len(roots) == 0 {
		roots = []string{".", filepath.Join("..", "..")}
	}

	s := &Store{cache: make(map[int]*Wallet)}

	for _, root := range roots {
		dir := filepath.Join(root, walletsDir)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", dir, err)
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".json") {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, n := range names {
			s.sources = append(s.sources, source{kind: sourceJSON, path: filepath.Join(dir, n)})
		}
		if len(s.sources) > 0 {
			break
		}
	}

	if len(s.sources) == 0 {
		for _, root := range roots {
			path := filepath.Join(root, pvFile)
			f, err := os.Open(path)
			if err != nil {
				continue
			}
			scanner := bufio.NewScanner(f)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				s.sources = append(s.sources, source{kind: sourceRaw, key: line})
			}
			f.Close()
			if len(s.sources) > 0 {
				break
			}
		}
	}

	return s, nil
}

// Count returns the number of discovered wallet sources.
func (s *Store) Count() int {
	return len(s.sources)
}

// ListIdentifiers returns a stable, per-index display name for every
// discovered source (the basename of its JSON file, or "wallet-N" for a
// raw-key source), in index order.
func (s *Store) ListIdentifiers() []string {
	ids := make([]string, len(s.sources))
	for i, src := range s.sources {
		switch src.kind {
		case sourceJSON:
			ids[i] = filepath.Base(src.path)
		default:
			ids[i] = fmt.Sprintf("wallet-%d", i)
		}
	}
	return ids
}

// Get returns the decrypted wallet at index, decrypting and caching it on
// first access. password is ignored for raw-key sources.
func (s *Store) Get(index int, password string) (*Wallet, error) {
	s.mu.Lock()
	if w, ok := s.cache[index]; ok {
		s.mu.Unlock()
		return w, nil
	}
	s.mu.Unlock()

	if index < 0 || index >= len(s.sources) {
		return nil, fmt.Errorf("wallet index %d out of bounds (total %d): %w", index, len(s.sources), ErrNotFound)
	}
	src := s.sources[index]

	var hexKey string
	switch src.kind {
	case sourceRaw:
		hexKey = src.key
	case sourceJSON:
		raw, err := os.ReadFile(src.path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", src.path, err)
		}
		payload, err := decryptJSONWallet(raw, password)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", src.path, err)
		}
		hexKey = payload.EVMPrivateKey
	}

	w, err := newWallet(index, hexKey)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if cached, ok := s.cache[index]; ok {
		// Another caller decrypted the same index while we were working;
		// keep the cached wallet so every caller shares one value.
		s.mu.Unlock()
		w.Destroy()
		return cached, nil
	}
	s.cache[index] = w
	s.mu.Unlock()
	return w, nil
}

// Close destroys every cached wallet's private key material.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.cache {
		w.Destroy()
	}
	s.cache = make(map[int]*Wallet)
}

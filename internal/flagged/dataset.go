// Package flagged holds the flagged-address dataset: family trees of risky
// addresses (grandparent -> parents -> children). It yields the flagged set fed
// to the resolver and answers per-address checks offline.
package flagged

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/iDeFi-AI/api-v2/internal/risk"
)

var ErrUnknownFormat = errors.New("unknown dataset format")

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Entry is one family tree. Children is keyed by parent address.
type Entry struct {
	Grandparent string              `json:"grandparent,omitempty" yaml:"grandparent,omitempty"`
	Parents     []string            `json:"parents,omitempty" yaml:"parents,omitempty"`
	Children    map[string][]string `json:"children,omitempty" yaml:"children,omitempty"`
}

// Dataset is read-only after construction and safe for concurrent use.
type Dataset struct {
	entries []Entry
	set     risk.FlaggedSet
}

// New builds a Dataset from entries. Addresses are lower-cased on the way in.
func New(entries []Entry) *Dataset {
	d := &Dataset{entries: make([]Entry, 0, len(entries))}
	var all []string
	for _, e := range entries {
		n := Entry{Grandparent: strings.ToLower(strings.TrimSpace(e.Grandparent))}
		if n.Grandparent != "" {
			all = append(all, n.Grandparent)
		}
		for _, p := range e.Parents {
			p = strings.ToLower(strings.TrimSpace(p))
			if p == "" {
				continue
			}
			n.Parents = append(n.Parents, p)
			all = append(all, p)
		}
		if len(e.Children) > 0 {
			n.Children = make(map[string][]string, len(e.Children))
			for parent, kids := range e.Children {
				parent = strings.ToLower(strings.TrimSpace(parent))
				all = append(all, parent)
				lk := make([]string, 0, len(kids))
				for _, c := range kids {
					c = strings.ToLower(strings.TrimSpace(c))
					if c == "" {
						continue
					}
					lk = append(lk, c)
					all = append(all, c)
				}
				n.Children[parent] = append(n.Children[parent], lk...)
			}
		}
		d.entries = append(d.entries, n)
	}
	d.set = risk.NewFlaggedSet(all...)
	return d
}

// Parse decodes a dataset document: a list of entries in JSON or YAML.
func Parse(data []byte, format Format) (*Dataset, error) {
	var entries []Entry
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&entries); err != nil {
			return nil, fmt.Errorf("parse json dataset: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("parse yaml dataset: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return New(entries), nil
}

// Load reads a dataset file, picking the format from its extension.
func Load(path string) (*Dataset, error) {
	var format Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		format = FormatJSON
	case ".yaml", ".yml":
		format = FormatYAML
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	return Parse(b, format)
}

func (d *Dataset) Len() int { return len(d.entries) }

// Addresses returns every grandparent, parent, children key and child.
func (d *Dataset) Addresses() risk.FlaggedSet { return d.set }

// Check classifies addr against the dataset. The first entry that mentions it
// decides: grandparent is FAIL, parent or child is WARNING, otherwise PASS.
func (d *Dataset) Check(addr string) risk.AddressRecord {
	a := strings.ToLower(strings.TrimSpace(addr))
	for _, e := range d.entries {
		if e.Grandparent != "" && e.Grandparent == a {
			return risk.AddressRecord{
				Address:     addr,
				Status:      risk.StatusFail,
				Description: fmt.Sprintf("Address %s is a grandparent flagged for direct involvement in illicit activity.", addr),
				Grandparent: e.Grandparent,
				Parents:     append([]string(nil), e.Parents...),
				Children:    copyChildren(e.Children),
			}
		}
		for _, p := range e.Parents {
			if p != a {
				continue
			}
			rec := risk.AddressRecord{
				Address:     addr,
				Status:      risk.StatusWarning,
				Description: fmt.Sprintf("Address %s is a parent flagged for indirect involvement.", addr),
				Grandparent: e.Grandparent,
				Parents:     append([]string(nil), e.Parents...),
			}
			if kids, ok := e.Children[a]; ok {
				rec.Children = risk.Children{a: append([]string(nil), kids...)}
			}
			return rec
		}
		for _, parent := range sortedKeys(e.Children) {
			kids := e.Children[parent]
			for _, c := range kids {
				if c != a {
					continue
				}
				return risk.AddressRecord{
					Address:     addr,
					Status:      risk.StatusWarning,
					Description: fmt.Sprintf("Address %s is a child flagged for indirect involvement through parent %s.", addr, parent),
					Grandparent: e.Grandparent,
					Parents:     []string{parent},
					Children:    risk.Children{parent: append([]string(nil), kids...)},
				}
			}
		}
	}
	return risk.AddressRecord{
		Address:     addr,
		Status:      risk.StatusPass,
		Description: fmt.Sprintf("Address %s is not involved in flagged activity.", addr),
	}
}

// CheckAddresses runs Check for each address. It matches the backend client's
// signature so the dataset can stand in for it offline; chain is ignored.
func (d *Dataset) CheckAddresses(ctx context.Context, _ string, addrs []string) ([]risk.AddressRecord, error) {
	out := make([]risk.AddressRecord, 0, len(addrs))
	for _, a := range addrs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, d.Check(a))
	}
	return out, nil
}

func (d *Dataset) FlaggedAddresses(ctx context.Context) (risk.FlaggedSet, error) {
	if err := ctx.Err(); err != nil {
		return risk.FlaggedSet{}, err
	}
	return d.set, nil
}

func copyChildren(in map[string][]string) risk.Children {
	if in == nil {
		return nil
	}
	out := make(risk.Children, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

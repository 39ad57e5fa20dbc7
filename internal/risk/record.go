package risk

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// AddressRecord is one address together with its provisional status and the
// relations used to escalate it. Only Address is required.
type AddressRecord struct {
	Address     string   `json:"address"`
	Status      Status   `json:"status"`
	Description string   `json:"description,omitempty"`
	Grandparent string   `json:"grandparent,omitempty"`
	Parents     []string `json:"parents,omitempty"`
	Children    Children `json:"children,omitempty"`
}

// Children maps a parent address to its descendant addresses.
type Children map[string][]string

// clone returns a deep copy so resolved records never alias caller memory.
func (r AddressRecord) clone() AddressRecord {
	out := r
	if r.Parents != nil {
		out.Parents = append([]string(nil), r.Parents...)
	}
	if r.Children != nil {
		out.Children = make(Children, len(r.Children))
		for k, v := range r.Children {
			out.Children[k] = append([]string(nil), v...)
		}
	}
	return out
}

// validate reports the first structural problem with r, if any. Blank
// relation entries (including JSON nulls) are rejected.
func (r AddressRecord) validate(index int) *Error {
	if strings.TrimSpace(r.Address) == "" {
		return invalidInput(index, "address", "address is required", nil)
	}
	for i, p := range r.Parents {
		if strings.TrimSpace(p) == "" {
			return invalidInput(index, "parents", fmt.Sprintf("parent %d is empty", i), nil)
		}
	}
	for k, kids := range r.Children {
		for i, c := range kids {
			if strings.TrimSpace(c) == "" {
				return invalidInput(index, "children", fmt.Sprintf("child %d of %q is empty", i, k), nil)
			}
		}
	}
	return nil
}

// recordWire is the accepted wire form of a record. Relations may come flat
// or nested under related_addresses; flat fields win when both are set.
type recordWire struct {
	AddressRecord
	Related *relatedWire `json:"related_addresses,omitempty"`
}

type relatedWire struct {
	Grandparent string          `json:"grandparent"`
	Parents     []string        `json:"parents"`
	Children    json.RawMessage `json:"children"`
}

// merge fills the relations of r that are still empty from rel. A flat
// children list belongs to the record itself when it is one of the parents,
// otherwise to its single parent.
func (rel *relatedWire) merge(r *AddressRecord) error {
	if r.Grandparent == "" {
		r.Grandparent = rel.Grandparent
	}
	if len(r.Parents) == 0 {
		r.Parents = rel.Parents
	}
	raw := bytes.TrimSpace(rel.Children)
	if len(r.Children) > 0 || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] != '[' {
		var m Children
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		r.Children = m
		return nil
	}
	var kids []string
	if err := json.Unmarshal(raw, &kids); err != nil {
		return err
	}
	if len(kids) == 0 {
		return nil
	}
	key := r.Address
	if len(r.Parents) == 1 && !strings.EqualFold(r.Parents[0], r.Address) {
		key = r.Parents[0]
	}
	r.Children = Children{strings.ToLower(strings.TrimSpace(key)): kids}
	return nil
}

// DecodeRecords decodes a JSON array of records. Relations are read from the
// top-level fields or from a nested related_addresses object. Each element is decoded on its
// own so one malformed element does not hide the rest: elements that fail are
// reported in a *BatchError and the valid ones are returned in input order.
// A body that is not a JSON array fails as a whole.
func DecodeRecords(data []byte) ([]AddressRecord, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	out := make([]AddressRecord, 0, len(raw))
	batch := &BatchError{}
	for i, elem := range raw {
		rec, err := decodeRecord(i, elem)
		if err != nil {
			batch.Errs = append(batch.Errs, err)
			continue
		}
		out = append(out, rec)
	}
	return out, batch.orNil()
}

func decodeRecord(index int, elem json.RawMessage) (AddressRecord, *Error) {
	trimmed := bytes.TrimSpace(elem)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return AddressRecord{}, invalidInput(index, "", "record is not an object", nil)
	}
	var w recordWire
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return AddressRecord{}, invalidInput(index, fieldOf(err), "malformed record", err)
	}
	rec := w.AddressRecord
	if w.Related != nil {
		if err := w.Related.merge(&rec); err != nil {
			return AddressRecord{}, invalidInput(index, "related_addresses", "malformed record", err)
		}
	}
	if verr := rec.validate(index); verr != nil {
		return AddressRecord{}, verr
	}
	return rec, nil
}

// fieldOf names the top-level field a decode error points at.
func fieldOf(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		field, _, _ := strings.Cut(typeErr.Field, ".")
		return field
	}
	// Status.UnmarshalJSON errors carry no field path.
	if errors.Is(err, ErrInvalidStatus) {
		return "status"
	}
	return ""
}

package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrMalformedOrder is returned when a stored ordering does not satisfy the
// decode contract.
var ErrMalformedOrder = errors.New("malformed id order")

// IDOrder is a frozen, ordered list of distinct ids (question ordering of an
// attempt). It is persisted as a JSON array of canonical UUID strings.
type IDOrder []uuid.UUID

// Encode serializes the order to its persisted JSON form.
func (o IDOrder) Encode() ([]byte, error) {
	ids := o
	if ids == nil {
		ids = IDOrder{}
	}
	return json.Marshal([]uuid.UUID(ids))
}

// DecodeIDOrder parses a persisted order. It accepts only a JSON array of
// valid, non-nil, distinct UUID strings.
func DecodeIDOrder(raw []byte) (IDOrder, error) {
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOrder, err)
	}

	order := make(IDOrder, 0, len(items))
	seen := make(map[uuid.UUID]struct{}, len(items))
	for i, s := range items {
		id, err := uuid.Parse(s)
		if err != nil || id == uuid.Nil {
			return nil, fmt.Errorf("%w: entry %d is not a valid id", ErrMalformedOrder, i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrMalformedOrder, id)
		}
		seen[id] = struct{}{}
		order = append(order, id)
	}
	return order, nil
}

// Index returns the position of id, or -1.
func (o IDOrder) Index(id uuid.UUID) int {
	for i, v := range o {
		if v == id {
			return i
		}
	}
	return -1
}

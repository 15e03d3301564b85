package dex

import (
	"context"
	"fmt"

	"poolScope/internal/model"
)

// Decoder turns one chain family's raw payload into a normalized
// snapshot. Decoders hold no mutable state and perform no fetches of
// their own; the EVM decoder resolves token metadata through an injected
// source, which is why Decode carries a context.
type Decoder interface {
	Family() model.ChainFamily
	Decode(ctx context.Context, raw model.RawQueryResult) (*model.PoolSnapshot, error)
}

// Registry routes raw payloads to the decoder for their chain family.
type Registry struct {
	decoders map[model.ChainFamily]Decoder
}

// NewRegistry builds a registry from the given decoders. A duplicate
// family is a wiring bug and panics at startup.
func NewRegistry(decoders ...Decoder) *Registry {
	reg := &Registry{decoders: make(map[model.ChainFamily]Decoder, len(decoders))}
	for _, d := range decoders {
		if _, dup := reg.decoders[d.Family()]; dup {
			panic(fmt.Sprintf("duplicate decoder for chain family %s", d.Family()))
		}
		reg.decoders[d.Family()] = d
	}
	return reg
}

// Decoder returns the decoder registered for a family.
func (r *Registry) Decoder(family model.ChainFamily) (Decoder, bool) {
	d, ok := r.decoders[family]
	return d, ok
}

// Decode routes raw to its family's decoder.
func (r *Registry) Decode(ctx context.Context, raw model.RawQueryResult) (*model.PoolSnapshot, error) {
	d, ok := r.decoders[raw.Identifier.Chain]
	if !ok {
		return nil, fmt.Errorf("%w: no decoder for chain family %s", model.ErrDecode, raw.Identifier.Chain)
	}
	return d.Decode(ctx, raw)
}

package contract

// Transferable moves freely between owners and cannot be recalled.
type Transferable struct {
	engine
}

// Recallable moves freely between owners; the issuer may recall it at any
// time without the owner's consent.
type Recallable struct {
	engine
}

// Identity can only leave the issuer's hands: a transfer is allowed when
// the owner is the issuer or the owner sends to itself. The issuer may
// recall it at any time.
type Identity struct {
	engine
}

var (
	_ Transitionable = (*Transferable)(nil)
	_ Transitionable = (*Recallable)(nil)
	_ Transitionable = (*Identity)(nil)
)

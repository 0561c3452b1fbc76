package models

import "time"

// FailureKind classifies an unsuccessful resolution.
type FailureKind int

const (
	// NotMapped means the DID has no mapping. It is an expected outcome.
	NotMapped FailureKind = iota + 1
	// SigningFailed means the mapping exists but no token could be minted.
	SigningFailed
)

func (k FailureKind) String() string {
	switch k {
	case NotMapped:
		return "not_mapped"
	case SigningFailed:
		return "signing_failed"
	default:
		return "unknown"
	}
}

// MsgNotMapped is the failure message for an unknown DID.
const MsgNotMapped = "DID not mapped"

// Resolution is the outcome of resolving a DID: either *Resolved or
// *Unresolved. The interface is sealed, so a type switch over the two is
// exhaustive.
type Resolution interface {
	OK() bool
	resolution()
}

// Resolved carries the signed assertion for a mapped DID.
type Resolved struct {
	DID       string
	Persona   string
	CNAM      string
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (*Resolved) OK() bool    { return true }
func (*Resolved) resolution() {}

// Unresolved explains why no assertion was issued.
type Unresolved struct {
	Kind    FailureKind
	Message string
}

func (*Unresolved) OK() bool    { return false }
func (*Unresolved) resolution() {}

// NewNotMapped builds the unknown-DID outcome.
func NewNotMapped() *Unresolved {
	return &Unresolved{Kind: NotMapped, Message: MsgNotMapped}
}

// NewSigningFailed builds the signing failure outcome with the signer's detail.
func NewSigningFailed(err error) *Unresolved {
	return &Unresolved{Kind: SigningFailed, Message: "Token generation failed: " + err.Error()}
}

package models

// Column limits of executive_did_map.
const (
	MaxDIDLength     = 20
	MaxPersonaLength = 64
	MaxCNAMLength    = 64
)

// Mapping ties a DID to the persona and caller-ID name presented for it.
//
// Invariants:
//   - DID is unique across the table and never changes for a given row
//   - ID is assigned by the store on first insert
//
// Mappings are plain values: stores build them from rows and callers receive
// copies, so nothing outside a store can change a persisted mapping.
type Mapping struct {
	ID      int64  `json:"id"`
	DID     string `json:"did"`
	Persona string `json:"persona"`
	CNAM    string `json:"cnam"`
}

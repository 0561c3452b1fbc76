package mapping

import "sovren/internal/telephony/models"

// FounderSeed mirrors the rows inserted by migration 0003 so memory-backed
// runs answer the same DIDs as a freshly migrated database.
func FounderSeed() []models.Mapping {
	return []models.Mapping{
		{DID: "15306885012", Persona: "CFO", CNAM: "COVREN CFO"},
		{DID: "15306885015", Persona: "COO", CNAM: "COVREN COO"},
		{DID: "15306885017", Persona: "CTO", CNAM: "COVREN CTO"},
		{DID: "15306885023", Persona: "CMO", CNAM: "COVREN CMO"},
		{DID: "15306885024", Persona: "CLO", CNAM: "COVREN CLO"},
		{DID: "15306885025", Persona: "CRO", CNAM: "COVREN CRO"},
		{DID: "15306885034", Persona: "CHRO", CNAM: "COVREN CHRO"},
		{DID: "15306885066", Persona: "COS", CNAM: "COVREN COS"},
	}
}

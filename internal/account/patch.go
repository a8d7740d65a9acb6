package account

// StructuralPatch is the grade-gated profile update payload. Nil fields
// were absent from the request and leave the stored value untouched.
// Sequence fields replace wholesale when present; they are never
// merged element-wise.
type StructuralPatch struct {
	Sector        *string  `json:"sector"`
	Service       *string  `json:"service"`
	Poles         []string `json:"poles"`
	Habilitations []string `json:"habilitations"`
	FJF           *bool    `json:"fjf"`
}

// Apply mutates the in-memory account; the caller persists the whole
// record afterwards, so the patch lands atomically or not at all.
func (p StructuralPatch) Apply(acc *Account) {
	if p.Sector != nil {
		acc.Sector = p.Sector
	}
	if p.Service != nil {
		acc.Service = p.Service
	}
	if p.Poles != nil {
		acc.Poles = p.Poles
	}
	if p.Habilitations != nil {
		acc.Habilitations = p.Habilitations
	}
	if p.FJF != nil {
		acc.FJF = *p.FJF
	}
}

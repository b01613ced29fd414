package registry

import (
	"strings"
)

const (
	maxAssetIDLength   = 256
	maxNameLength      = 128
	maxDescriptionSize = 2048
	maxImageLength     = 512
)

// Approval grants Spender the right to transfer a token until ExpiresAt
// (unix seconds). Zero never expires.
type Approval struct {
	Spender   [20]byte
	ExpiresAt uint64
}

// Token is the registry record of one non-fungible asset.
type Token struct {
	ID          string
	Owner       [20]byte
	Name        string
	Description string
	Image       string
	Approvals   []Approval
	Locked      bool
	MintedAt    uint64
}

// Clone returns a deep copy of the token.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	clone := *t
	if len(t.Approvals) > 0 {
		clone.Approvals = append([]Approval(nil), t.Approvals...)
	} else {
		clone.Approvals = nil
	}
	return &clone
}

func (t *Token) approval(spender [20]byte) (Approval, bool) {
	for _, a := range t.Approvals {
		if a.Spender == spender {
			return a, true
		}
	}
	return Approval{}, false
}

func (t *Token) setApproval(spender [20]byte, expiresAt uint64) {
	for i := range t.Approvals {
		if t.Approvals[i].Spender == spender {
			t.Approvals[i].ExpiresAt = expiresAt
			return
		}
	}
	t.Approvals = append(t.Approvals, Approval{Spender: spender, ExpiresAt: expiresAt})
}

func (t *Token) removeApproval(spender [20]byte) bool {
	for i := range t.Approvals {
		if t.Approvals[i].Spender == spender {
			t.Approvals = append(t.Approvals[:i], t.Approvals[i+1:]...)
			return true
		}
	}
	return false
}

// SanitizeToken trims the textual fields and validates their bounds.
func SanitizeToken(t *Token) (*Token, error) {
	if t == nil {
		return nil, newError(CodeInvalid, "", "token required")
	}
	clone := t.Clone()
	clone.ID = strings.TrimSpace(clone.ID)
	clone.Name = strings.TrimSpace(clone.Name)
	clone.Description = strings.TrimSpace(clone.Description)
	clone.Image = strings.TrimSpace(clone.Image)
	switch {
	case clone.ID == "":
		return nil, newError(CodeInvalid, "", "asset id required")
	case len(clone.ID) > maxAssetIDLength:
		return nil, newError(CodeInvalid, "", "asset id exceeds %d bytes", maxAssetIDLength)
	case len(clone.Name) > maxNameLength:
		return nil, newError(CodeInvalid, clone.ID, "name exceeds %d bytes", maxNameLength)
	case len(clone.Description) > maxDescriptionSize:
		return nil, newError(CodeInvalid, clone.ID, "description exceeds %d bytes", maxDescriptionSize)
	case len(clone.Image) > maxImageLength:
		return nil, newError(CodeInvalid, clone.ID, "image exceeds %d bytes", maxImageLength)
	}
	return clone, nil
}

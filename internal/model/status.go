package model

import "sort"

// StatusValue is an EPP status on a domain.
type StatusValue string

const (
	StatusOK                       StatusValue = "ok"
	StatusInactive                 StatusValue = "inactive"
	StatusPendingTransfer          StatusValue = "pendingTransfer"
	StatusPendingDelete            StatusValue = "pendingDelete"
	StatusClientHold               StatusValue = "clientHold"
	StatusServerHold               StatusValue = "serverHold"
	StatusClientDeleteProhibited   StatusValue = "clientDeleteProhibited"
	StatusServerDeleteProhibited   StatusValue = "serverDeleteProhibited"
	StatusClientRenewProhibited    StatusValue = "clientRenewProhibited"
	StatusServerRenewProhibited    StatusValue = "serverRenewProhibited"
	StatusClientTransferProhibited StatusValue = "clientTransferProhibited"
	StatusServerTransferProhibited StatusValue = "serverTransferProhibited"
	StatusClientUpdateProhibited   StatusValue = "clientUpdateProhibited"
	StatusServerUpdateProhibited   StatusValue = "serverUpdateProhibited"
)

var clientSettable = map[StatusValue]bool{
	StatusClientHold:               true,
	StatusClientDeleteProhibited:   true,
	StatusClientRenewProhibited:    true,
	StatusClientTransferProhibited: true,
	StatusClientUpdateProhibited:   true,
}

var charged = map[StatusValue]bool{
	StatusServerDeleteProhibited:   true,
	StatusServerRenewProhibited:    true,
	StatusServerTransferProhibited: true,
	StatusServerUpdateProhibited:   true,
}

// ClientSettable reports whether a registrar may add or remove the status itself.
func (s StatusValue) ClientSettable() bool { return clientSettable[s] }

// Charged reports whether changing the status on a registrar's request is billed.
func (s StatusValue) Charged() bool { return charged[s] }

// Known reports whether s is a recognised status value.
func (s StatusValue) Known() bool {
	switch s {
	case StatusOK, StatusInactive, StatusPendingTransfer, StatusPendingDelete, StatusServerHold:
		return true
	}
	return clientSettable[s] || charged[s]
}

// StatusSet is a sorted, duplicate-free set of statuses. Methods never modify the receiver.
type StatusSet []StatusValue

// NewStatusSet builds a set from values.
func NewStatusSet(vs ...StatusValue) StatusSet {
	return StatusSet(nil).With(vs...)
}

// Has reports membership.
func (s StatusSet) Has(v StatusValue) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// HasAny reports whether any of vs is present.
func (s StatusSet) HasAny(vs ...StatusValue) bool {
	for _, v := range vs {
		if s.Has(v) {
			return true
		}
	}
	return false
}

// With returns a new set that also contains vs.
func (s StatusSet) With(vs ...StatusValue) StatusSet {
	out := make(StatusSet, 0, len(s)+len(vs))
	out = append(out, s...)
	for _, v := range vs {
		if !out.Has(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Without returns a new set lacking vs.
func (s StatusSet) Without(vs ...StatusValue) StatusSet {
	out := make(StatusSet, 0, len(s))
	for _, x := range s {
		drop := false
		for _, v := range vs {
			if x == v {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, x)
		}
	}
	return out
}

// SymmetricDifference returns statuses present in exactly one of s and o.
func (s StatusSet) SymmetricDifference(o StatusSet) StatusSet {
	var out StatusSet
	for _, x := range s {
		if !o.Has(x) {
			out = append(out, x)
		}
	}
	for _, x := range o {
		if !s.Has(x) {
			out = append(out, x)
		}
	}
	return NewStatusSet(out...)
}

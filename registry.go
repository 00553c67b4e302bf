// SPDX-License-Identifier: Apache-2.0

package sasl

import (
	"sort"
	"sync"

	"github.com/golang-auth/go-sasl/internal/mechlist"
)

// Registry holds mechanism descriptors and implements the negotiation
// policy of §4.4: suggestion, offer/select, and membership queries.
// Registration is expected to happen once at start-up; after that, a
// Registry is safe for concurrent read-only use by many sessions.
type Registry struct {
	mu    sync.Mutex
	order []Mechname
	mechs map[string]Descriptor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{mechs: make(map[string]Descriptor)}
}

// Register adds d to the registry. Registering the same name twice replaces
// the previous descriptor but keeps its original position for the
// tie-break order used by Suggest.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := d.Name.String()
	if _, exists := r.mechs[key]; !exists {
		r.order = append(r.order, d.Name)
	}
	r.mechs[key] = d
}

// Supports reports whether name is registered.
func (r *Registry) Supports(name Mechname) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.mechs[name.String()]
	return ok
}

// Lookup returns the descriptor registered for name.
func (r *Registry) Lookup(name Mechname) (Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.mechs[name.String()]
	return d, ok
}

// ClientMechList returns descriptors with a client factory, highest
// priority first, in deterministic tie-break (registration) order.
func (r *Registry) ClientMechList() []Descriptor {
	return r.filteredSortedList(func(d Descriptor) bool { return d.NewClient != nil })
}

// ServerMechList returns descriptors with a server factory, highest
// priority first.
func (r *Registry) ServerMechList() []Descriptor {
	return r.filteredSortedList(func(d Descriptor) bool { return d.NewServer != nil })
}

func (r *Registry) filteredSortedList(keep func(Descriptor) bool) []Descriptor {
	r.mu.Lock()
	ordered := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		d := r.mechs[name.String()]
		if keep(d) {
			ordered = append(ordered, d)
		}
	}
	r.mu.Unlock()

	// Stable sort by descending priority; equal priority keeps
	// registration order because sort.SliceStable preserves it.
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })
	return ordered
}

// OfferPredicate decides, for the server side, whether a mechanism should
// be included in an advertisement (e.g. a protocol's CAPABILITY response).
type OfferPredicate func(Descriptor) bool

// Offer filters ServerMechList through pred, in priority order.
func (r *Registry) Offer(pred OfferPredicate) []Descriptor {
	list := r.ServerMechList()
	out := list[:0:0]
	for _, d := range list {
		if pred(d) {
			out = append(out, d)
		}
	}
	return out
}

// SelectMatcher decides, for the client side, whether a mechanism the
// server offered is acceptable to us.
type SelectMatcher func(Descriptor) bool

// Select returns the descriptor for name if it is client-capable and
// matches, per the client-side preference predicate.
func (r *Registry) Select(name Mechname, matches SelectMatcher) (Descriptor, bool) {
	d, ok := r.Lookup(name)
	if !ok || d.NewClient == nil {
		return Descriptor{}, false
	}
	if matches != nil && !matches(d) {
		return Descriptor{}, false
	}
	return d, true
}

// SuggestClient intersects offered (mechanism names the peer advertised)
// with the registry's client-capable mechanisms and returns the
// highest-priority match. channelBindingAvailable gates *-PLUS mechanisms:
// they are never suggested unless channel-binding material is on hand.
func (r *Registry) SuggestClient(offered []string, channelBindingAvailable bool) (Mechname, bool) {
	offeredSet := make(map[string]struct{}, len(offered))
	for _, o := range offered {
		offeredSet[o] = struct{}{}
	}

	var best Descriptor
	found := false
	for _, d := range r.ClientMechList() {
		if _, ok := offeredSet[d.Name.String()]; !ok {
			continue
		}
		if d.RequiresChannelBinding && !channelBindingAvailable {
			continue
		}
		if !found || d.Priority > best.Priority {
			best = d
			found = true
		}
	}
	if !found {
		return Mechname{}, false
	}
	return best.Name, true
}

// SuggestClientFromList is SuggestClient for callers holding the peer's
// advertisement as a raw mechanism-list string (IMAP CAPABILITY, SMTP EHLO
// AUTH) rather than a pre-split slice.
func (r *Registry) SuggestClientFromList(offeredList string, channelBindingAvailable bool) (Mechname, bool) {
	return r.SuggestClient(ParseMechanismList(offeredList), channelBindingAvailable)
}

// OfferList is Offer rendered directly as the space-separated mechanism-list
// string a protocol adapter places on the wire.
func (r *Registry) OfferList(pred OfferPredicate) string {
	list := r.Offer(pred)
	names := make([]string, len(list))
	for i, d := range list {
		names[i] = d.Name.String()
	}
	return JoinMechanismList(names)
}

// ParseMechanismList splits a space-separated mechanism-name list, the wire
// format used by protocol adapters such as IMAP CAPABILITY and SMTP AUTH.
func ParseMechanismList(s string) []string { return mechlist.Parse(s) }

// JoinMechanismList renders names as the space-separated list format
// protocol adapters advertise.
func JoinMechanismList(names []string) string { return mechlist.Join(names) }

// MechanismStripped reports whether any name present in trusted (the
// mechanism list the caller knows the server supports, learned out of
// band or from a prior authenticated session) is missing from observed
// (the list actually received on the wire this time). This is the
// mechanism-list downgrade check of RFC 5802 §9: an active attacker who can
// tamper with the unauthenticated advertisement may strip strong
// mechanisms to coerce negotiation down to a weaker one.
func MechanismStripped(trusted, observed []string) bool {
	observedList := JoinMechanismList(observed)
	for _, m := range trusted {
		if !mechlist.Contains(observedList, m) {
			return true
		}
	}
	return false
}

// DefaultRegistry is populated by every built-in mechanism package's
// init() function via [Register].
var DefaultRegistry = NewRegistry()

// Register adds d to [DefaultRegistry]. Mechanism packages call this from
// their own init() function, mirroring how the teacher's GSSAPI providers
// self-register with RegisterProvider.
func Register(d Descriptor) { DefaultRegistry.Register(d) }

// SPDX-License-Identifier: Apache-2.0

package sasl

// Context is the per-session property store a mechanism reads from and
// writes to while it runs. It is handed to the [Callback] on every demand so
// the callback can inspect what has already been established (e.g. which
// user name a password is being requested for).
type Context struct {
	session *Session
	values  map[Property]any
}

func newContext(s *Session) *Context {
	return &Context{session: s, values: make(map[Property]any)}
}

// Session returns the session this context belongs to, so a callback can
// reach session-wide facilities such as the channel binding or user data
// slot.
func (c *Context) Session() *Session { return c.session }

// Set installs a value for key, overwriting nothing if called twice with a
// different value is a programmer error mechanisms must avoid: once set, a
// property is never mutated, per the framework's invariants.
func Set[T any](c *Context, key Key[T], v T) {
	c.values[key.tag] = v
}

// GetRef performs a non-blocking read: it returns the stored value and
// whether one was present, without ever invoking the callback.
func GetRef[T any](c *Context, key Key[T]) (T, bool) {
	v, ok := c.values[key.tag]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// Need returns the value stored for key, asking the callback to supply it
// if it is not already present. The returned value is cached on the
// context, so a later Need/GetRef for the same key never re-invokes the
// callback. Fails with KindNoProperty if nothing satisfies the request.
func Need[T any](c *Context, key Key[T]) (T, error) {
	if v, ok := GetRef(c, key); ok {
		return v, nil
	}
	var zero T
	if c.session.callback == nil {
		return zero, errNoCallback(key.tag)
	}
	req := &Request{tag: key.tag}
	if err := c.session.callback.Callback(c, req); err != nil {
		return zero, err
	}
	if !req.satisfied {
		return zero, errNoProperty(key.tag)
	}
	v, ok := req.value.(T)
	if !ok {
		return zero, errNoProperty(key.tag)
	}
	Set(c, key, v)
	return v, nil
}

// MaybeNeed is like [Need] but treats an unsatisfied request as a legal,
// non-error empty result instead of KindNoProperty.
func MaybeNeed[T any](c *Context, key Key[T]) (T, bool, error) {
	v, err := Need(c, key)
	if err != nil {
		var se *Error
		if asError(err, &se) && se.Kind == KindNoProperty {
			var zero T
			return zero, false, nil
		}
		return v, false, err
	}
	return v, true, nil
}

func asError(err error, target **Error) bool {
	se, ok := err.(*Error)
	if ok {
		*target = se
	}
	return ok
}

// Validate runs the session's callback against a freshly built validation
// request for tag, after the mechanism has attached whatever parsed
// identity data it wants the callback to see via [AttachValidationData].
// It fails with KindNoValidate if no callback is installed.
func (c *Context) Validate(tag Validation, attach func(*ValidationRequest)) error {
	if c.session.callback == nil {
		return errNoValidate(tag)
	}
	req := newValidationRequest(tag)
	if attach != nil {
		attach(req)
	}
	if err := c.session.callback.Validate(c, req); err != nil {
		return err
	}
	return req.outcome()
}

// AttachValidationData stashes a mechanism-parsed value on req, for the
// callback to read back with [GetValidationData].
func AttachValidationData[T any](r *ValidationRequest, key Key[T], v T) {
	setValidationData(r, key, v)
}

// Request is handed to [Callback.Callback] to ask for a single property's
// value. A callback satisfies it by calling [Satisfy] with a matching typed
// [Key]; calling Satisfy with the wrong key is a no-op.
type Request struct {
	tag       Property
	satisfied bool
	value     any
}

// Property returns the property tag being requested.
func (r *Request) Property() Property { return r.tag }

// Is reports whether this request is asking for key's property.
func (r *Request) Is(key Property) bool { return r.tag == key }

// Satisfy supplies v as the answer to the request, if the request is indeed
// asking for key. It is safe to call Satisfy speculatively for every
// property your callback knows how to provide, in sequence.
func Satisfy[T any](r *Request, key Key[T], v T) {
	if r.tag != key.tag {
		return
	}
	r.value = v
	r.satisfied = true
}

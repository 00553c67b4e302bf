// SPDX-License-Identifier: Apache-2.0

package sasl

// Callback is the embedder's plug-in point. It is invoked synchronously
// from within [Session.Step]; implementations must not retain ctx or req
// beyond the call.
type Callback interface {
	// Callback satisfies a single property demand raised by the running
	// mechanism. Implementations inspect req.Is(property) and call
	// [Satisfy] on a match; req is left unsatisfied otherwise, which the
	// caller of [Need] turns into a KindNoProperty error.
	Callback(ctx *Context, req *Request) error

	// Validate performs the terminal identity check for a server-side
	// exchange. Implementations call req.Deny(reason) to reject; a nil
	// return (without Deny) accepts.
	Validate(ctx *Context, req *ValidationRequest) error
}

// CallbackFuncs adapts two plain functions to the [Callback] interface,
// for embedders who don't need a dedicated type.
type CallbackFuncs struct {
	CallbackFunc func(ctx *Context, req *Request) error
	ValidateFunc func(ctx *Context, req *ValidationRequest) error
}

func (c CallbackFuncs) Callback(ctx *Context, req *Request) error {
	if c.CallbackFunc == nil {
		return nil
	}
	return c.CallbackFunc(ctx, req)
}

func (c CallbackFuncs) Validate(ctx *Context, req *ValidationRequest) error {
	if c.ValidateFunc == nil {
		return errNoValidate(req.Validation())
	}
	return c.ValidateFunc(ctx, req)
}

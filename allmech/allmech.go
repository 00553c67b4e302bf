// SPDX-License-Identifier: Apache-2.0

// Package allmech registers every built-in mechanism with
// [sasl.DefaultRegistry] as a side effect of being imported. Programs that
// want the full built-in mechanism set without naming each one
// individually should blank-import this package.
package allmech

import (
	_ "github.com/golang-auth/go-sasl/internal/mech/anonymous"
	_ "github.com/golang-auth/go-sasl/internal/mech/crammd5"
	_ "github.com/golang-auth/go-sasl/internal/mech/digestmd5"
	_ "github.com/golang-auth/go-sasl/internal/mech/external"
	_ "github.com/golang-auth/go-sasl/internal/mech/gssapi"
	_ "github.com/golang-auth/go-sasl/internal/mech/login"
	_ "github.com/golang-auth/go-sasl/internal/mech/oauthbearer"
	_ "github.com/golang-auth/go-sasl/internal/mech/openid20"
	_ "github.com/golang-auth/go-sasl/internal/mech/plain"
	_ "github.com/golang-auth/go-sasl/internal/mech/saml20"
	_ "github.com/golang-auth/go-sasl/internal/mech/scram"
	_ "github.com/golang-auth/go-sasl/internal/mech/xoauth2"
)

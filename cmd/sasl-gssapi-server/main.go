// SPDX-License-Identifier: Apache-2.0

// Command sasl-gssapi-server accepts a single GSSAPI SASL exchange over a
// raw TCP connection, the server-side counterpart to
// cmd/sasl-gssapi-client.
package main

import (
	"bytes"
	"encoding/binary"
	"flag"
	"fmt"
	"net"
	"os"

	gapi "github.com/golang-auth/go-gssapi/v3"
	_ "github.com/golang-auth/go-gssapi/v3/c"

	sasl "github.com/golang-auth/go-sasl"
	gssapimech "github.com/golang-auth/go-sasl/internal/mech/gssapi"
)

func main() {
	port := flag.Int("port", 4752, "port to listen on")
	flag.Parse()

	provider, err := gapi.NewProvider("GSSAPI-C")
	if err != nil {
		fatal(err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		fatal(err)
	}
	defer ln.Close()

	fmt.Fprintf(os.Stderr, "listening on %s\n", ln.Addr())
	conn, err := ln.Accept()
	if err != nil {
		fatal(err)
	}
	defer conn.Close()

	cb := sasl.CallbackFuncs{
		ValidateFunc: func(ctx *sasl.Context, req *sasl.ValidationRequest) error {
			name, _ := sasl.GetValidationData(req, sasl.GSSAPIDisplayName)
			fmt.Fprintf(os.Stderr, "authenticated as %q\n", name)
			return nil
		},
	}

	session, err := sasl.ServerStart(sasl.DefaultRegistry, sasl.MustMechname("GSSAPI"),
		sasl.WithCallback(cb), gssapimech.WithProvider(provider))
	if err != nil {
		fatal(err)
	}

	for {
		in, err := recvToken(conn)
		if err != nil {
			fatal(err)
		}
		out, state, err := session.Step(in)
		if err != nil {
			fatal(err)
		}
		if err := sendToken(conn, out); err != nil {
			fatal(err)
		}
		if state != sasl.StateRunning {
			break
		}
	}
}

func sendToken(conn net.Conn, token []byte) error {
	szBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(szBuf, uint32(len(token)))
	if _, err := conn.Write(szBuf); err != nil {
		return err
	}
	_, err := conn.Write(token)
	return err
}

func recvToken(conn net.Conn) ([]byte, error) {
	szBuf := make([]byte, 4)
	if _, err := conn.Read(szBuf); err != nil {
		return nil, err
	}
	var size uint32
	if err := binary.Read(bytes.NewReader(szBuf), binary.BigEndian, &size); err != nil {
		return nil, err
	}
	token := make([]byte, size)
	if _, err := conn.Read(token); err != nil {
		return nil, err
	}
	return token, nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

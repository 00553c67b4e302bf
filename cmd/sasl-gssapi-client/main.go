// SPDX-License-Identifier: Apache-2.0

// Command sasl-gssapi-client drives a GSSAPI SASL exchange over a raw TCP
// connection, using length-prefixed tokens in the style of the gss-client
// sample this repo's mechanism package was grounded on.
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
	host := flag.String("host", "localhost", "server host")
	port := flag.Int("port", 4752, "server port")
	service := flag.String("service", "host", "service principal name")
	flag.Parse()

	provider, err := gapi.NewProvider("GSSAPI-C")
	if err != nil {
		fatal(err)
	}

	addr := fmt.Sprintf("%s:%d", *host, *port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		fatal(err)
	}
	defer conn.Close()

	cb := sasl.CallbackFuncs{
		CallbackFunc: func(ctx *sasl.Context, req *sasl.Request) error {
			switch req.Property() {
			case sasl.Service.Property():
				sasl.Satisfy(req, sasl.Service, *service)
			case sasl.Hostname.Property():
				sasl.Satisfy(req, sasl.Hostname, *host)
			}
			return nil
		},
	}

	session, err := sasl.ClientStart(sasl.DefaultRegistry, sasl.MustMechname("GSSAPI"),
		sasl.WithCallback(cb), gssapimech.WithProvider(provider))
	if err != nil {
		fatal(err)
	}

	var in []byte
	for {
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
		in, err = recvToken(conn)
		if err != nil {
			fatal(err)
		}
	}

	fmt.Fprintln(os.Stderr, "authenticated")
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

// Package cert manages the TLS identity of a WebChannel server.
//
// An identity is an ECDSA P-256 key with a certificate for the host names
// and addresses clients dial. Servers without a CA-issued certificate use
// a self-signed one, created on first start and kept in a directory as
// server.pem and server.key. It is recreated when it expires within
// RenewalWindow or no longer covers the configured hosts.
package cert

package kgo

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/fluvio-go/fluvio/pkg/ferr"
)

// PlainMechanism is the minimal SASL PLAIN exchange: a single
// authzid\0user\0pass response with no challenge.
type PlainMechanism struct {
	User, Pass string
}

func (PlainMechanism) Name() string { return "PLAIN" }

func (m PlainMechanism) Authenticate(challenge []byte) ([]byte, bool, error) {
	if challenge != nil {
		return nil, false, ferr.New(ferr.CodeInvalidCredentials, "PLAIN does not expect a server challenge")
	}
	return []byte(fmt.Sprintf("\x00%s\x00%s", m.User, m.Pass)), true, nil
}

// ScramSHA256Mechanism implements the client side of SCRAM-SHA-256 (RFC
// 5802), a second concrete SASLMechanism exercising the salted-challenge
// exchange pattern the broker's SASL layer supports.
type ScramSHA256Mechanism struct {
	User, Pass string

	nonce       string
	clientFirst string
	serverFirst string
	saltedPass  []byte
}

func (ScramSHA256Mechanism) Name() string { return "SCRAM-SHA-256" }

func (m *ScramSHA256Mechanism) Authenticate(challenge []byte) ([]byte, bool, error) {
	if challenge == nil {
		return m.clientFirstMessage()
	}
	return m.clientFinalMessage(challenge)
}

func (m *ScramSHA256Mechanism) clientFirstMessage() ([]byte, bool, error) {
	nonceBytes := make([]byte, 18)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, false, err
	}
	m.nonce = base64.StdEncoding.EncodeToString(nonceBytes)
	m.clientFirst = fmt.Sprintf("n=%s,r=%s", scramEscape(m.User), m.nonce)
	return []byte("n,," + m.clientFirst), false, nil
}

// clientFinalMessage computes the client's final message from the
// server-first message (salt, iteration count, combined nonce), per
// RFC 5802 §3's SaltedPassword/ClientKey/ClientSignature derivation.
func (m *ScramSHA256Mechanism) clientFinalMessage(serverFirst []byte) ([]byte, bool, error) {
	m.serverFirst = string(serverFirst)
	fields := parseScramFields(m.serverFirst)
	serverNonce := fields["r"]
	saltB64 := fields["s"]
	iterStr := fields["i"]
	if serverNonce == "" || saltB64 == "" || iterStr == "" {
		return nil, false, ferr.New(ferr.CodeInvalidCredentials, "malformed SCRAM server-first message")
	}
	if !strings.HasPrefix(serverNonce, m.nonce) {
		return nil, false, ferr.New(ferr.CodeInvalidCredentials, "SCRAM server nonce does not extend client nonce")
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, false, ferr.Errorf(ferr.CodeInvalidCredentials, "SCRAM salt: %v", err)
	}
	var iterations int
	if _, err := fmt.Sscanf(iterStr, "%d", &iterations); err != nil || iterations <= 0 {
		return nil, false, ferr.New(ferr.CodeInvalidCredentials, "malformed SCRAM iteration count")
	}

	m.saltedPass = pbkdf2.Key([]byte(m.Pass), salt, iterations, sha256.Size, sha256.New)
	clientKey := hmacSHA256(m.saltedPass, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)

	channelBinding := base64.StdEncoding.EncodeToString([]byte("n,,"))
	clientFinalNoProof := fmt.Sprintf("c=%s,r=%s", channelBinding, serverNonce)
	authMessage := m.clientFirst + "," + m.serverFirst + "," + clientFinalNoProof

	clientSignature := hmacSHA256(storedKey[:], []byte(authMessage))
	clientProof := xorBytes(clientKey, clientSignature)

	final := fmt.Sprintf("%s,p=%s", clientFinalNoProof, base64.StdEncoding.EncodeToString(clientProof))
	return []byte(final), true, nil
}

func hmacSHA256(key, msg []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(msg)
	return h.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func scramEscape(s string) string {
	s = strings.ReplaceAll(s, "=", "=3D")
	s = strings.ReplaceAll(s, ",", "=2C")
	return s
}

func parseScramFields(s string) map[string]string {
	fields := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			fields[kv[0]] = kv[1]
		}
	}
	return fields
}

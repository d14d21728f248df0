package dbus

import (
	"crypto/sha1"
	"encoding/hex"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// scriptedCookieServer plays the server side of a SASL exchange that
// rejects EXTERNAL and accepts DBUS_COOKIE_SHA1, per spec.md §8 Testable
// Property 10. It verifies the client's computed SHA-1 response against
// the same cookie value read.
func scriptedCookieServer(t *testing.T, conn net.Conn, cookie, context, cookieID, serverChallenge string) {
	t.Helper()

	line, err := readLine(conn)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "AUTH EXTERNAL "))
	require.NoError(t, writeLine(conn, "REJECTED DBUS_COOKIE_SHA1 ANONYMOUS"))

	line, err = readLine(conn)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "AUTH DBUS_COOKIE_SHA1 "))

	challenge := context + " " + cookieID + " " + serverChallenge
	require.NoError(t, writeLine(conn, "DATA "+hex.EncodeToString([]byte(challenge))))

	line, err = readLine(conn)
	require.NoError(t, err)
	line = strings.TrimRight(line, "\r\n")
	require.True(t, strings.HasPrefix(line, "DATA "))
	payload, err := hex.DecodeString(strings.TrimPrefix(line, "DATA "))
	require.NoError(t, err)
	parts := strings.SplitN(string(payload), " ", 2)
	require.Len(t, parts, 2)
	clientChallengeHex, gotSha := parts[0], parts[1]

	h := sha1.New()
	h.Write([]byte(serverChallenge + ":" + clientChallengeHex + ":" + cookie))
	wantSha := hex.EncodeToString(h.Sum(nil))
	require.Equal(t, wantSha, gotSha)

	require.NoError(t, writeLine(conn, "OK deadbeefdeadbeefdeadbeefdeadbeef"))

	line, err = readLine(conn)
	require.NoError(t, err)
	require.Equal(t, "BEGIN\r\n", line)
}

func TestAuthenticateFallsBackToCookieSha1(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	keyringDir := filepath.Join(home, ".dbus-keyrings")
	require.NoError(t, os.MkdirAll(keyringDir, 0700))

	const (
		context         = "org_example_test"
		cookieID        = "1"
		cookie          = "c0ffee00c0ffee00c0ffee00c0ffee00"
		serverChallenge = "deadbeefcafebabe"
	)
	keyringFile := filepath.Join(keyringDir, context)
	require.NoError(t, os.WriteFile(keyringFile, []byte(cookieID+" 1234567890 "+cookie+"\n"), 0600))

	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		scriptedCookieServer(t, server, cookie, context, cookieID, serverChallenge)
	}()

	err := authenticate(client)
	require.NoError(t, err)
	<-done
}

func TestAuthExternalRejectedReturnsError(t *testing.T) {
	client, server := net.Pipe()
	go func() {
		line, _ := readLine(server)
		if strings.HasPrefix(line, "AUTH EXTERNAL ") {
			writeLine(server, "REJECTED DBUS_COOKIE_SHA1 ANONYMOUS")
		}
	}()
	err := authExternal(client)
	require.Error(t, err)
}

func TestAuthAnonymousAccepted(t *testing.T) {
	client, server := net.Pipe()
	go func() {
		line, _ := readLine(server)
		if strings.HasPrefix(line, "AUTH ANONYMOUS ") {
			writeLine(server, "OK deadbeefdeadbeefdeadbeefdeadbeef")
		}
	}()
	err := authAnonymous(client)
	require.NoError(t, err)
}

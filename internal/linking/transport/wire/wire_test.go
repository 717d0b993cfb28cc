package wire

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"linkhub/internal/linking/models"
	"linkhub/internal/linking/transport"
	"linkhub/internal/linking/transport/wire/wiretest"
	id "linkhub/pkg/domain"
)

func dialTestGateway(t *testing.T, gw *wiretest.Gateway, rotation, window time.Duration, cred *models.Credential) transport.Handle {
	t.Helper()

	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	d := NewDialer(url, rotation, window, slog.Default())

	h, err := d.Dial(t.Context(), id.TenantID("t1"), cred)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func nextEvent(t *testing.T, h transport.Handle) transport.Event {
	t.Helper()
	select {
	case ev, ok := <-h.Events():
		require.True(t, ok, "events channel closed unexpectedly")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for transport event")
		return nil
	}
}

func TestDial_PairingIssuesMonotonicChallenges(t *testing.T) {
	gw := wiretest.NewGateway()
	h := dialTestGateway(t, gw, 50*time.Millisecond, time.Second, nil)

	first, ok := nextEvent(t, h).(transport.QRIssued)
	require.True(t, ok)
	require.Equal(t, 1, first.Challenge.Seq)
	require.NotEmpty(t, first.Challenge.QRPayload)

	second, ok := nextEvent(t, h).(transport.QRIssued)
	require.True(t, ok)
	require.Equal(t, 2, second.Challenge.Seq)
	require.True(t, second.Challenge.Supersedes(first.Challenge))
	require.NotEqual(t, first.Challenge.QRPayload, second.Challenge.QRPayload)
}

func TestDial_ScanCompletesPairing(t *testing.T) {
	gw := wiretest.NewGateway()
	gw.LinkAfterChallenges = 1
	h := dialTestGateway(t, gw, 50*time.Millisecond, time.Second, nil)

	_, ok := nextEvent(t, h).(transport.QRIssued)
	require.True(t, ok)

	authed, ok := nextEvent(t, h).(transport.Authenticated)
	require.True(t, ok)
	require.Equal(t, id.TenantID("t1"), authed.Cred.TenantID)
	require.NotEmpty(t, authed.Cred.KeyMaterial)
	require.NotZero(t, authed.Cred.RegistrationID)
}

func TestDial_StaleScanIsRejected(t *testing.T) {
	gw := wiretest.NewGateway()
	gw.LinkWithStaleSeq = true
	h := dialTestGateway(t, gw, 50*time.Millisecond, time.Second, nil)

	// Challenge 1, then challenge 2 superseding it, then the gateway delivers
	// a scan of challenge 1 followed by a scan of challenge 2.
	require.IsType(t, transport.QRIssued{}, nextEvent(t, h))
	require.IsType(t, transport.QRIssued{}, nextEvent(t, h))

	// The stale scan must not authenticate; the next observable event is the
	// authentication from the current challenge.
	authed, ok := nextEvent(t, h).(transport.Authenticated)
	require.True(t, ok)
	require.NotEmpty(t, authed.Cred.KeyMaterial)
}

func TestDial_PairingTimesOutAfterBoundedRotations(t *testing.T) {
	gw := wiretest.NewGateway()
	rotation := 40 * time.Millisecond
	h := dialTestGateway(t, gw, rotation, 3*rotation, nil)

	seen := 0
	for {
		ev := nextEvent(t, h)
		if qr, ok := ev.(transport.QRIssued); ok {
			seen++
			require.Equal(t, seen, qr.Challenge.Seq)
			continue
		}
		closed, ok := ev.(transport.Closed)
		require.True(t, ok, "unexpected event %T", ev)
		require.Equal(t, transport.ClosePairingTimeout, closed.Reason)
		require.ErrorContains(t, closed.Err, "no device scanned")
		break
	}
	// A 3x rotation window yields exactly 3 challenges before timeout.
	require.Equal(t, 3, seen)
}

func TestDial_ResumeNeverIssuesQR(t *testing.T) {
	gw := wiretest.NewGateway()
	cred := &models.Credential{
		TenantID:       "t1",
		KeyMaterial:    []byte("stored key material"),
		RegistrationID: 99,
	}
	h := dialTestGateway(t, gw, 50*time.Millisecond, time.Second, cred)

	authed, ok := nextEvent(t, h).(transport.Authenticated)
	require.True(t, ok, "resume must authenticate without a QR event")
	require.Equal(t, []byte("stored key material"), authed.Cred.KeyMaterial)
	require.Equal(t, uint32(99), authed.Cred.RegistrationID)
}

func TestDial_ResumeRejectsPairingChallenge(t *testing.T) {
	gw := wiretest.NewGateway()
	gw.ChallengeOnResume = true
	cred := &models.Credential{TenantID: "t1", KeyMaterial: []byte("stored")}
	h := dialTestGateway(t, gw, 50*time.Millisecond, time.Second, cred)

	// A gateway that answers a resume with a challenge must not get its QR
	// surfaced; the connection closes instead.
	closed, ok := nextEvent(t, h).(transport.Closed)
	require.True(t, ok, "expected the connection to close, not a QR event")
	require.Equal(t, transport.CloseProtocolError, closed.Reason)
	require.ErrorContains(t, closed.Err, "challenge during resumption")
}

func TestDial_ResumeWithRevokedCredential(t *testing.T) {
	gw := wiretest.NewGateway()
	gw.RejectResume = true
	cred := &models.Credential{TenantID: "t1", KeyMaterial: []byte("revoked")}
	h := dialTestGateway(t, gw, 50*time.Millisecond, time.Second, cred)

	closed, ok := nextEvent(t, h).(transport.Closed)
	require.True(t, ok)
	require.Equal(t, transport.CloseAuthRejected, closed.Reason)
}

func TestHandle_SendWaitsForAck(t *testing.T) {
	gw := wiretest.NewGateway()
	h := dialTestGateway(t, gw, 50*time.Millisecond, time.Second,
		&models.Credential{TenantID: "t1", KeyMaterial: []byte("k")})

	require.IsType(t, transport.Authenticated{}, nextEvent(t, h))

	err := h.Send(t.Context(), transport.Frame{
		ID:          "m1",
		ContentType: "text/plain",
		Payload:     []byte("hello"),
		Timestamp:   time.Now(),
	})
	require.NoError(t, err)

	gw.FailAcks("quota exceeded")
	err = h.Send(t.Context(), transport.Frame{ID: "m2", ContentType: "text/plain", Payload: []byte("x")})
	require.ErrorContains(t, err, "quota exceeded")
}

func TestHandle_InboundMessages(t *testing.T) {
	gw := wiretest.NewGateway()
	h := dialTestGateway(t, gw, 50*time.Millisecond, time.Second,
		&models.Credential{TenantID: "t1", KeyMaterial: []byte("k")})

	require.IsType(t, transport.Authenticated{}, nextEvent(t, h))

	gw.PushMessage("ext-1", "text/plain", []byte("ping from device"))

	msg, ok := nextEvent(t, h).(transport.MessageReceived)
	require.True(t, ok)
	require.Equal(t, "ext-1", msg.Frame.ID)
	require.Equal(t, []byte("ping from device"), msg.Frame.Payload)
}

func TestDial_GatewayUnreachable(t *testing.T) {
	d := NewDialer("ws://127.0.0.1:1/link", 50*time.Millisecond, time.Second, slog.Default())
	_, err := d.Dial(t.Context(), id.TenantID("t1"), nil)
	require.Error(t, err)
}

// Sanity check that the test gateway exercises the same websocket handshake
// the production gateway would.
func TestGatewayUpgradeRejection(t *testing.T) {
	gw := wiretest.NewGateway()
	srv := httptest.NewServer(gw)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

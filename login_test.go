package xgraph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

type stubSolver struct {
	token string
	err   error
	calls int
}

func (s *stubSolver) Solve(_ context.Context, _, _ string) (string, error) {
	s.calls++
	return s.token, s.err
}

func (s *stubSolver) Balance(context.Context) (float64, error) { return 10, nil }

func TestSubtaskInputCredentials(t *testing.T) {
	tr := &SessionTransport{}
	acc := &Account{Username: "alice", Password: "hunter2"}

	input, err := tr.subtaskInput(context.Background(), acc, "LoginEnterPassword")
	require.NoError(t, err)
	require.Equal(t, "LoginEnterPassword", input["subtask_id"])
	require.Equal(t, "hunter2", input["enter_password"].(map[string]any)["password"])

	input, err = tr.subtaskInput(context.Background(), acc, "LoginEnterAlternateIdentifierSubtask")
	require.NoError(t, err)
	require.Equal(t, "alice", input["enter_text"].(map[string]any)["text"])

	input, err = tr.subtaskInput(context.Background(), acc, "SomethingNew")
	require.NoError(t, err)
	require.Equal(t, "next_link", input["action_list"].(map[string]any)["link"])
}

func TestSubtaskInputTOTP(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	tr := &SessionTransport{}

	input, err := tr.subtaskInput(context.Background(), &Account{Username: "alice", TOTPSecret: secret}, "LoginTwoFactorAuthChallenge")
	require.NoError(t, err)
	code, ok := input["enter_text"].(map[string]any)["text"].(string)
	require.True(t, ok)
	require.Len(t, code, 6)
	require.True(t, totp.Validate(code, secret))

	_, err = tr.subtaskInput(context.Background(), &Account{Username: "bob"}, "LoginTwoFactorAuthChallenge")
	require.ErrorContains(t, err, "no TOTP secret")
}

func TestSubtaskInputCaptcha(t *testing.T) {
	acc := &Account{Username: "alice"}

	_, err := (&SessionTransport{}).subtaskInput(context.Background(), acc, "LoginArkoseChallenge")
	require.ErrorContains(t, err, "no solver configured")

	solver := &stubSolver{token: "tok123"}
	tr := &SessionTransport{cfg: ClientConfig{CaptchaSolver: solver}}
	input, err := tr.subtaskInput(context.Background(), acc, "LoginArkoseChallenge")
	require.NoError(t, err)
	require.Equal(t, 1, solver.calls)
	require.Equal(t,
		"twitter://onboarding/web_modal/next_link?access_token=tok123",
		input["web_modal"].(map[string]any)["completion_deeplink"])

	solver.err = errors.New("unsolvable")
	_, err = tr.subtaskInput(context.Background(), acc, "LoginArkoseCaptcha")
	require.ErrorContains(t, err, "unsolvable")
}

func TestParseFlowResponse(t *testing.T) {
	fr, err := parseFlowResponse([]byte(`{"flow_token":"ft1","subtasks":[{"subtask_id":"LoginEnterPassword"}]}`))
	require.NoError(t, err)
	require.Equal(t, "ft1", fr.FlowToken)
	require.Equal(t, "LoginEnterPassword", fr.Subtasks[0].SubtaskID)

	_, err = parseFlowResponse([]byte(`{"subtasks":[]}`))
	require.ErrorContains(t, err, "empty flow_token")

	_, err = parseFlowResponse([]byte(`<html>`))
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestLoadOrLoginWithoutPassword(t *testing.T) {
	tr := &SessionTransport{sessions: newSessionStore(t.TempDir(), 0)}
	err := tr.loadOrLogin(context.Background(), &Account{Username: "alice"})
	require.ErrorContains(t, err, "no session and no password")
}

func TestLoadOrLoginProvidedCredentials(t *testing.T) {
	tr := &SessionTransport{sessions: newSessionStore(t.TempDir(), 10*time.Minute)}
	acc := &Account{Username: "alice", AuthToken: "tok", CT0: "c0"}

	require.NoError(t, tr.loadOrLogin(context.Background(), acc))

	authToken, ct0, err := tr.sessions.Load("alice")
	require.NoError(t, err)
	require.Equal(t, "tok", authToken)
	require.Equal(t, "c0", ct0)
}

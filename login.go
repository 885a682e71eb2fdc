package xgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/pquerna/otp/totp"
)

const (
	onboardingURL    = legacyBase + "/1.1/onboarding/task.json"
	guestActivateURL = legacyBase + "/1.1/guest/activate.json"

	// arkosePublicKey is the FunCaptcha public key of the web login flow.
	arkosePublicKey = "0152B4EB-D2DC-460A-89A1-629838B529C9"

	maxLoginRounds = 10
	loginTimeout   = 3 * time.Minute
)

// cookieOrigins are checked in order when reading session cookies after login.
var cookieOrigins = []string{"https://api.twitter.com", "https://twitter.com", "https://x.com"}

// loginFlowStart opens flow_name=login.
const loginFlowStart = `{"input_flow_data":{"flow_context":{"debug_overrides":{},"start_location":{"location":"splash_screen"}}},"subtask_versions":{"action_list":2,"alert_dialog":1,"app_download_cta":1,"check_logged_in_account":1,"choice_selection":3,"contacts_live_sync_permission_prompt":0,"cta":7,"email_verification":2,"end_flow":1,"enter_date":1,"enter_email":2,"enter_password":5,"enter_phone":2,"enter_recaptcha":1,"enter_text":5,"enter_username":2,"generic_urt":3,"in_app_notification":1,"interest_picker":3,"js_instrumentation":1,"menu_dialog":1,"notifications_permission_prompt":2,"open_account":2,"open_home_timeline":1,"open_link":1,"phone_verification":4,"privacy_options":1,"security_key":3,"select_avatar":4,"select_banner":2,"settings_list":7,"show_code":1,"sign_up":2,"sign_up_review":4,"tweet_selection_urt":1,"update_users":1,"upload_media":1,"user_recommendations_list":4,"user_recommendations_urt":1,"wait_spinner":3,"web_modal":1}}`

type flowResponse struct {
	FlowToken string        `json:"flow_token"`
	Subtasks  []flowSubtask `json:"subtasks"`
}

type flowSubtask struct {
	SubtaskID string `json:"subtask_id"`
}

// loadOrLogin restores a persisted session, falls back to credentials given
// in the account, and finally performs a password login.
func (t *SessionTransport) loadOrLogin(ctx context.Context, acc *Account) error {
	authToken, ct0, err := t.sessions.Load(acc.Username)
	if err != nil {
		slog.Warn("error loading session", slog.String("user", acc.Username), slog.Any("error", err))
	}
	if authToken != "" && ct0 != "" {
		acc.SetCredentials(authToken, ct0)
		slog.Info("loaded session from disk", slog.String("user", acc.Username))
		return nil
	}

	if authToken, ct0, _ := acc.Credentials(); authToken != "" && ct0 != "" {
		acc.SetCredentials(authToken, ct0)
		slog.Info("using provided credentials", slog.String("user", acc.Username))
		t.sessions.persist(acc)
		return nil
	}

	if acc.Password == "" {
		return fmt.Errorf("no session and no password for account %s", acc.Username)
	}
	if err := t.login(ctx, acc); err != nil {
		return fmt.Errorf("login failed for %s: %w", acc.Username, err)
	}
	t.sessions.persist(acc)
	return nil
}

// relogin drops the account's session and logs in again.
func (t *SessionTransport) relogin(ctx context.Context, acc *Account) error {
	slog.Info("attempting relogin", slog.String("user", acc.Username))

	acc.SetCredentials("", "")
	if err := t.sessions.Remove(acc.Username); err != nil {
		slog.Warn("session remove failed", slog.String("user", acc.Username), slog.Any("error", err))
	}
	if err := t.loadOrLogin(ctx, acc); err != nil {
		return fmt.Errorf("relogin %s: %w", acc.Username, err)
	}

	acc.Reset()
	slog.Info("relogin succeeded", slog.String("user", acc.Username))
	return nil
}

// login walks the onboarding task flow until a terminal subtask.
func (t *SessionTransport) login(ctx context.Context, acc *Account) error {
	slog.Info("logging in", slog.String("user", acc.Username))

	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	bc := t.clientFor(acc)
	guestToken, err := activateGuestToken(bc)
	if err != nil {
		return fmt.Errorf("get guest token: %w", err)
	}

	flow, err := flowStep(bc, guestToken, onboardingURL+"?flow_name=login", json.RawMessage(loginFlowStart))
	if err != nil {
		return fmt.Errorf("init login flow: %w", err)
	}

	for range maxLoginRounds {
		if len(flow.Subtasks) == 0 {
			break
		}
		subtaskID := flow.Subtasks[0].SubtaskID
		slog.Debug("login subtask", slog.String("user", acc.Username), slog.String("subtask", subtaskID))

		if subtaskID == "LoginSuccessSubtask" || subtaskID == "AccountDuplicationCheck" {
			break
		}
		if subtaskID == "DenyLoginSubtask" {
			return fmt.Errorf("login denied for %s (account may be locked or disabled)", acc.Username)
		}

		input, err := t.subtaskInput(ctx, acc, subtaskID)
		if err != nil {
			return err
		}
		flow, err = flowStep(bc, guestToken, onboardingURL, map[string]any{
			"flow_token":     flow.FlowToken,
			"subtask_inputs": []map[string]any{input},
		})
		if err != nil {
			return fmt.Errorf("login subtask %s for %s: %w", subtaskID, acc.Username, err)
		}
	}

	authToken := cookieValue(bc, "auth_token")
	if authToken == "" {
		return fmt.Errorf("login completed but no auth_token in cookies for %s", acc.Username)
	}
	ct0 := cookieValue(bc, "ct0")
	if ct0 == "" {
		ct0 = GenerateCT0()
	}

	acc.SetCredentials(authToken, ct0)
	slog.Info("login successful", slog.String("user", acc.Username))
	return nil
}

// subtaskInput builds the answer to one onboarding subtask.
func (t *SessionTransport) subtaskInput(ctx context.Context, acc *Account, subtaskID string) (map[string]any, error) {
	input := map[string]any{"subtask_id": subtaskID}

	switch subtaskID {
	case "LoginJsInstrumentationSubtask":
		input["js_instrumentation"] = map[string]any{"response": `{"rf":{"a":"b"},"s":"s"}`, "link": "next_link"}

	case "LoginEnterUserIdentifierSSO":
		input["settings_list"] = map[string]any{
			"setting_responses": []map[string]any{{
				"key":           "user_identifier",
				"response_data": map[string]any{"text_data": map[string]any{"result": acc.Username}},
			}},
			"link": "next_link",
		}

	case "LoginEnterPassword":
		input["enter_password"] = map[string]any{"password": acc.Password, "link": "next_link"}

	case "LoginEnterAlternateIdentifierSubtask":
		input["enter_text"] = map[string]any{"text": acc.Username, "link": "next_link"}

	case "LoginTwoFactorAuthChallenge":
		if acc.TOTPSecret == "" {
			return nil, fmt.Errorf("2FA required but no TOTP secret for %s", acc.Username)
		}
		code, err := totp.GenerateCode(acc.TOTPSecret, time.Now())
		if err != nil {
			return nil, fmt.Errorf("TOTP code generation failed for %s: %w", acc.Username, err)
		}
		slog.Info("submitting TOTP code", slog.String("user", acc.Username))
		input["enter_text"] = map[string]any{"text": code, "link": "next_link"}

	case "LoginArkoseChallenge", "LoginArkoseCaptcha", "LoginEnterRecaptcha":
		if t.cfg.CaptchaSolver == nil {
			return nil, fmt.Errorf("CAPTCHA required but no solver configured for %s", acc.Username)
		}
		token, err := t.cfg.CaptchaSolver.Solve(ctx, arkosePublicKey, "https://x.com")
		if err != nil {
			return nil, fmt.Errorf("CAPTCHA solve failed for %s: %w", acc.Username, err)
		}
		slog.Info("CAPTCHA solved for login", slog.String("user", acc.Username))
		input["web_modal"] = map[string]any{
			"completion_deeplink": "twitter://onboarding/web_modal/next_link?access_token=" + token,
		}

	default:
		slog.Warn("unknown login subtask, skipping", slog.String("user", acc.Username), slog.String("subtask", subtaskID))
		input["action_list"] = map[string]any{"link": "next_link"}
	}
	return input, nil
}

// activateGuestToken activates a guest token for the onboarding flow.
func activateGuestToken(bc *stealth.BrowserClient) (string, error) {
	headers := map[string]string{
		"authorization": "Bearer " + BearerToken,
		"content-type":  "application/json",
		"user-agent":    defaultUserAgent,
	}
	body, _, status, err := bc.DoWithHeaderOrder("POST", guestActivateURL, headers, nil, headerOrder)
	if err != nil {
		return "", err
	}
	if status != 200 {
		return "", &APIError{Endpoint: "guest/activate", Status: status, Body: truncateBytes(body, 200)}
	}
	var resp struct {
		GuestToken string `json:"guest_token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &DecodeError{Endpoint: "guest/activate", Err: err}
	}
	if resp.GuestToken == "" {
		return "", fmt.Errorf("empty guest token in response")
	}
	return resp.GuestToken, nil
}

// flowStep posts one onboarding request and parses the next flow state.
func flowStep(bc *stealth.BrowserClient, guestToken, url string, payload any) (*flowResponse, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode flow step: %w", err)
	}
	body, _, status, err := bc.DoWithHeaderOrder("POST", url, onboardingHeaders(guestToken), bytes.NewReader(data), headerOrder)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, &APIError{Endpoint: "onboarding", Status: status, Body: truncateBytes(body, 300)}
	}
	return parseFlowResponse(body)
}

func parseFlowResponse(body []byte) (*flowResponse, error) {
	var fr flowResponse
	if err := json.Unmarshal(body, &fr); err != nil {
		return nil, &DecodeError{Endpoint: "onboarding", Err: err}
	}
	if fr.FlowToken == "" {
		return nil, fmt.Errorf("empty flow_token in response: %s", truncateBytes(body, 200))
	}
	return &fr, nil
}

// cookieValue returns the first non-empty cookie named name across cookieOrigins.
func cookieValue(bc *stealth.BrowserClient, name string) string {
	for _, origin := range cookieOrigins {
		if v := bc.GetCookieValue(origin, name); v != "" {
			return v
		}
	}
	return ""
}

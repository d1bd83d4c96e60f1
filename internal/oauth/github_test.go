package oauth

import "testing"

func TestTryParseTokenError_AuthorizationPending(t *testing.T) {
	result, ok := tryParseTokenError(`{"error":"authorization_pending"}`)
	if !ok || result.Status != PollPending {
		t.Fatalf("got %+v, ok=%v", result, ok)
	}
}

func TestTryParseTokenError_SlowDownAddsFiveSeconds(t *testing.T) {
	result, ok := tryParseTokenError(`{"error":"slow_down","interval":5}`)
	if !ok || result.Status != PollSlowDown || result.NewInterval != 10 {
		t.Fatalf("got %+v, ok=%v", result, ok)
	}
}

func TestTryParseTokenError_FormEncodedSlowDownDefaultsIntervalToFive(t *testing.T) {
	result, ok := tryParseTokenError("error=slow_down")
	if !ok || result.Status != PollSlowDown || result.NewInterval != 10 {
		t.Fatalf("got %+v, ok=%v", result, ok)
	}
}

func TestTryParseTokenError_ExpiredAndIncorrectCodesMapToDistinctMessages(t *testing.T) {
	expired, _ := tryParseTokenError(`{"error":"expired_token"}`)
	incorrect, _ := tryParseTokenError(`{"error":"incorrect_device_code"}`)
	if expired.Message == incorrect.Message {
		t.Fatalf("expected distinct messages, both were %q", expired.Message)
	}
}

func TestTryParseTokenError_NotAnErrorResponse(t *testing.T) {
	_, ok := tryParseTokenError(`{"access_token":"abc123"}`)
	if ok {
		t.Fatal("expected ok=false for a success-shaped body")
	}
}

func TestParseTokenResponse_PrefersJSON(t *testing.T) {
	tokens, ok := parseTokenResponse(`{"access_token":"abc","refresh_token":"def"}`)
	if !ok || tokens.AccessToken != "abc" || tokens.RefreshToken != "def" {
		t.Fatalf("got %+v, ok=%v", tokens, ok)
	}
}

func TestParseTokenResponse_FallsBackToFormEncoded(t *testing.T) {
	tokens, ok := parseTokenResponse("access_token=abc&refresh_token=def&token_type=bearer")
	if !ok || tokens.AccessToken != "abc" || tokens.RefreshToken != "def" {
		t.Fatalf("got %+v, ok=%v", tokens, ok)
	}
}

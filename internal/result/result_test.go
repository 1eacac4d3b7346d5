package result

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestDecodeMinimalPayload(t *testing.T) {
	t.Parallel()
	r, err := Decode(`{"userId":"u1","token":"t1","expiresAt":1715544000}`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := &Result{UserID: "u1", Token: "t1", ExpiresAt: 1715544000}
	if !reflect.DeepEqual(r, want) {
		t.Errorf("Decode = %+v, want %+v", r, want)
	}
}

func TestDecodeFullPayload(t *testing.T) {
	t.Parallel()
	r, err := Decode(`{"userId":"123","token":"test-token","expiresAt":1715544000,"voiceMatch":0.95,"email":"a@b.co","username":"alice","firstName":"Alice","lastName":"Liddell","deviceId":"pixel-7"}`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if r.VoiceMatch == nil || *r.VoiceMatch != 0.95 {
		t.Errorf("VoiceMatch = %v, want 0.95", r.VoiceMatch)
	}
	if r.Username != "alice" || r.FirstName != "Alice" || r.LastName != "Liddell" {
		t.Errorf("unexpected user fields: %+v", r)
	}
	if r.Extra["deviceId"] != "pixel-7" {
		t.Errorf("expected extension field deviceId, got %v", r.Extra)
	}
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()
	for _, payload := range []string{"not json", "", "null", "[1,2]", `"str"`} {
		_, err := Decode(payload)
		var mre *MalformedResultError
		if !errors.As(err, &mre) {
			t.Errorf("Decode(%q): expected MalformedResultError, got %v", payload, err)
		}
	}
}

func TestEncodeKeepsExtraFlat(t *testing.T) {
	t.Parallel()
	vm := PlaceholderVoiceMatch
	r := &Result{
		UserID:     "u1",
		Token:      "t1",
		ExpiresAt:  10,
		VoiceMatch: &vm,
		Extra:      map[string]any{"channel": "sip"},
	}
	payload, err := r.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var flat map[string]any
	json.Unmarshal([]byte(payload), &flat)
	if flat["channel"] != "sip" {
		t.Errorf("expected channel at top level, got %v", flat)
	}
	if _, ok := flat["email"]; ok {
		t.Error("empty email should be omitted")
	}

	back, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(back, r) {
		t.Errorf("round trip = %+v, want %+v", back, r)
	}
}

func TestExpiresFrom(t *testing.T) {
	t.Parallel()
	now := time.Unix(1715540400, 0)
	if got := ExpiresFrom(now); got != 1715544000 {
		t.Errorf("ExpiresFrom = %d, want 1715544000", got)
	}
}

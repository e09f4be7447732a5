package twitchchat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func badgeJSON(setID string, versions ...map[string]string) map[string]any {
	vs := make([]map[string]string, 0, len(versions))
	vs = append(vs, versions...)
	return map[string]any{"set_id": setID, "versions": vs}
}

func TestGlobalBadges_PrefersHighResolution(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/badges/global" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Client-Id") != "cid" {
			t.Errorf("missing client id header")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				badgeJSON("subscriber",
					map[string]string{"id": "0", "image_url_1x": "https://cdn/1x", "image_url_4x": "https://cdn/4x"},
					map[string]string{"id": "3", "image_url_2x": "https://cdn/2x"},
				),
			},
		})
	}))
	defer srv.Close()

	hc := &Helix{ClientID: "cid", Token: "tok", BaseURL: srv.URL}
	badges, err := hc.GlobalBadges(context.Background())
	if err != nil {
		t.Fatalf("GlobalBadges: %v", err)
	}
	if badges["subscriber/0"] != "https://cdn/4x" {
		t.Errorf("subscriber/0 = %q, want 4x art", badges["subscriber/0"])
	}
	if badges["subscriber/3"] != "https://cdn/2x" {
		t.Errorf("subscriber/3 = %q, want 2x fallback", badges["subscriber/3"])
	}
}

func TestChannelBadges_RequiresBroadcasterID(t *testing.T) {
	hc := &Helix{ClientID: "cid"}
	if _, err := hc.ChannelBadges(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty broadcaster id")
	}
}

func TestAuthenticatedUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"id": "42", "login": "streamer", "display_name": "Streamer"}},
		})
	}))
	defer srv.Close()

	hc := &Helix{ClientID: "cid", Token: "tok", BaseURL: srv.URL}
	user, err := hc.AuthenticatedUser(context.Background())
	if err != nil {
		t.Fatalf("AuthenticatedUser: %v", err)
	}
	if user.ID != "42" || user.Login != "streamer" {
		t.Errorf("user = %+v", user)
	}
}

func TestStreamViewerCount_Offline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))
	defer srv.Close()

	hc := &Helix{ClientID: "cid", BaseURL: srv.URL}
	count, live, err := hc.StreamViewerCount(context.Background(), "streamer")
	if err != nil {
		t.Fatalf("StreamViewerCount: %v", err)
	}
	if live || count != 0 {
		t.Errorf("offline channel reported live=%v count=%d", live, count)
	}
}

func TestLoadBadges_FallbackWithoutCredentials(t *testing.T) {
	bs := loadBadges(context.Background(), &Helix{}, "")
	if bs.lookup("moderator/1") == "" {
		t.Fatal("static fallback badges missing moderator/1")
	}
}

func TestLoadBadges_FallbackOnAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	bs := loadBadges(context.Background(), &Helix{ClientID: "cid", BaseURL: srv.URL}, "42")
	if bs.lookup("broadcaster/1") == "" {
		t.Fatal("expected static fallback after API failure")
	}
}

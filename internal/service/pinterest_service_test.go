package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	config "github.com/maheshrc27/pinscheduler/configs"
	"github.com/maheshrc27/pinscheduler/internal/models"
	"github.com/maheshrc27/pinscheduler/internal/repository/repotest"
	"github.com/maheshrc27/pinscheduler/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakePinterest struct {
	t        *testing.T
	mux      *http.ServeMux
	lastPin  map[string]any
	lastAuth string
}

func newFakePinterest(t *testing.T) (*fakePinterest, *httptest.Server) {
	f := &fakePinterest{t: t, mux: http.NewServeMux()}
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	f.mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		clientID, secret, ok := r.BasicAuth()
		if !ok || clientID != "client" || secret != "shh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if r.PostForm.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			assert.Equal(t, "true", r.PostForm.Get("continuous_refresh"))
			w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"bearer","expires_in":3600}`))
		case "refresh_token":
			assert.Equal(t, "rt-1", r.PostForm.Get("refresh_token"))
			w.Write([]byte(`{"access_token":"at-2","token_type":"bearer","expires_in":7200}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	f.mux.HandleFunc("/user_account", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"p-1","username":"baker","profile_image":"https://i.pinimg.com/p.jpg"}`))
	})
	f.mux.HandleFunc("/pins", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastPin))
		w.Header().Set("Content-Type", "application/json")
		if f.lastPin["board_id"] == "closed-board" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":2,"message":"board not found"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"ext-42"}`))
	})
	f.mux.HandleFunc("/boards", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"items":[{"id":"b-1","name":"Desserts"}],"bookmark":""}`))
	})
	return f, srv
}

func testConfig(apiURL string) config.Config {
	return config.Config{
		SecretKey: testSecret,
		Pinterest: config.Pinterest{
			ClientID:     "client",
			ClientSecret: "shh",
			RedirectURI:  "http://localhost:3000/auth/pinterest/callback",
			APIURL:       apiURL,
		},
	}
}

func seal(t *testing.T, token string) string {
	t.Helper()
	sealed, err := utils.Encrypt([]byte(token), []byte(testSecret))
	require.NoError(t, err)
	return sealed
}

func unseal(t *testing.T, sealed string) string {
	t.Helper()
	plain, err := utils.Decrypt(sealed, []byte(testSecret))
	require.NoError(t, err)
	return plain
}

func TestGetAuthURL(t *testing.T) {
	svc := NewPinterestService(testConfig("https://api.pinterest.com/v5"), repotest.NewPinterestAccountRepository(), zap.NewNop())

	raw, err := svc.GetAuthURL("state-token")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "www.pinterest.com", u.Host)
	q := u.Query()
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "state-token", q.Get("state"))
	assert.Equal(t, pinterestScopes, q.Get("scope"))

	unconfigured := NewPinterestService(config.Config{}, repotest.NewPinterestAccountRepository(), zap.NewNop())
	_, err = unconfigured.GetAuthURL("state-token")
	assert.Equal(t, KindConfiguration, KindOf(err))
}

func TestCallbackLinksAccount(t *testing.T) {
	_, srv := newFakePinterest(t)
	accounts := repotest.NewPinterestAccountRepository()
	svc := NewPinterestService(testConfig(srv.URL), accounts, zap.NewNop())
	ctx := context.Background()

	account, err := svc.Callback(ctx, "user-1", "good-code")
	require.NoError(t, err)
	assert.Equal(t, "p-1", account.PinterestID)
	assert.Equal(t, "baker", account.Username)

	stored, err := accounts.GetByPinterestID(ctx, "p-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "user-1", stored.UserID)
	assert.Equal(t, "at-1", unseal(t, stored.AccessToken))
	assert.Equal(t, "rt-1", unseal(t, stored.RefreshToken))
	assert.WithinDuration(t, time.Now().Add(time.Hour), stored.TokenExpiresAt, time.Minute)

	// Linking again keeps the row.
	again, err := svc.Callback(ctx, "user-1", "good-code")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, again.ID)
}

func TestCallbackErrors(t *testing.T) {
	_, srv := newFakePinterest(t)
	svc := NewPinterestService(testConfig(srv.URL), repotest.NewPinterestAccountRepository(), zap.NewNop())
	ctx := context.Background()

	_, err := svc.Callback(ctx, "user-1", "bad-code")
	assert.Equal(t, KindExternalService, KindOf(err))
	assert.Contains(t, string(PayloadOf(err)), "invalid_grant")

	_, err = svc.Callback(ctx, "", "good-code")
	assert.Equal(t, KindUnauthorized, KindOf(err))

	_, err = svc.Callback(ctx, "user-1", "")
	assert.Equal(t, KindInvalid, KindOf(err))
}

func linkedAccounts(t *testing.T) *repotest.PinterestAccountRepository {
	return repotest.NewPinterestAccountRepository(&models.PinterestAccount{
		ID:             "acc-1",
		UserID:         "user-1",
		PinterestID:    "p-1",
		AccessToken:    seal(t, "at-1"),
		RefreshToken:   seal(t, "rt-1"),
		TokenExpiresAt: time.Now().Add(10 * time.Minute),
	})
}

func TestCreatePin(t *testing.T) {
	fake, srv := newFakePinterest(t)
	svc := NewPinterestService(testConfig(srv.URL), linkedAccounts(t), zap.NewNop())

	price := 9.5
	pin := &models.Pin{
		ID: "pin-1", PinterestAccountID: "acc-1", BoardID: "b-1", Title: "Lemon tart",
		MediaType: models.MediaTypeImage, ImageURL: "https://cdn.example.com/tart.png",
		RichPinType: models.RichPinProduct, Price: &price, Availability: models.AvailabilityInStock,
	}

	id, err := svc.CreatePin(context.Background(), pin)
	require.NoError(t, err)
	assert.Equal(t, "ext-42", id)
	assert.Equal(t, "Bearer at-1", fake.lastAuth)

	assert.Equal(t, "b-1", fake.lastPin["board_id"])
	assert.Equal(t, map[string]any{"source_type": "image_url", "url": "https://cdn.example.com/tart.png"}, fake.lastPin["media_source"])
	assert.Equal(t, map[string]any{"type": "product", "price": 9.5, "availability": "in_stock"}, fake.lastPin["rich_metadata"])
}

func TestCreatePinVideo(t *testing.T) {
	fake, srv := newFakePinterest(t)
	svc := NewPinterestService(testConfig(srv.URL), linkedAccounts(t), zap.NewNop())

	pin := &models.Pin{
		ID: "pin-1", PinterestAccountID: "acc-1", BoardID: "b-1", Title: "Clip",
		MediaType: models.MediaTypeVideo, VideoURL: "https://cdn.example.com/clip.mp4",
	}
	_, err := svc.CreatePin(context.Background(), pin)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"source_type": "video_url", "cover_image_url": "https://cdn.example.com/clip.mp4"}, fake.lastPin["media_source"])
	assert.NotContains(t, fake.lastPin, "rich_metadata")
}

func TestCreatePinRejected(t *testing.T) {
	_, srv := newFakePinterest(t)
	svc := NewPinterestService(testConfig(srv.URL), linkedAccounts(t), zap.NewNop())

	pin := &models.Pin{ID: "pin-1", PinterestAccountID: "acc-1", BoardID: "closed-board", MediaType: models.MediaTypeImage}
	_, err := svc.CreatePin(context.Background(), pin)
	require.Error(t, err)
	assert.Equal(t, KindExternalService, KindOf(err))
	assert.JSONEq(t, `{"code":2,"message":"board not found"}`, string(PayloadOf(err)))
}

func TestCreatePinUnlinkedAccount(t *testing.T) {
	_, srv := newFakePinterest(t)
	svc := NewPinterestService(testConfig(srv.URL), repotest.NewPinterestAccountRepository(), zap.NewNop())

	_, err := svc.CreatePin(context.Background(), &models.Pin{ID: "pin-1", PinterestAccountID: "gone"})
	assert.Equal(t, KindUnauthorized, KindOf(err))
}

func TestRefreshAccessTokenKeepsRefreshToken(t *testing.T) {
	_, srv := newFakePinterest(t)
	accounts := linkedAccounts(t)
	svc := NewPinterestService(testConfig(srv.URL), accounts, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.RefreshAccessToken(ctx, "user-1", "p-1"))

	stored, err := accounts.GetByPinterestID(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "at-2", unseal(t, stored.AccessToken))
	assert.Equal(t, "rt-1", unseal(t, stored.RefreshToken))
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), stored.TokenExpiresAt, time.Minute)

	err = svc.RefreshAccessToken(ctx, "user-2", "p-1")
	assert.Equal(t, KindNotFound, KindOf(err))
	err = svc.RefreshAccessToken(ctx, "user-1", "p-404")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestListBoards(t *testing.T) {
	_, srv := newFakePinterest(t)
	accounts := linkedAccounts(t)
	accounts.Upsert(context.Background(), &models.PinterestAccount{
		ID: "acc-2", UserID: "user-1", PinterestID: "p-2", AccessToken: seal(t, "revoked"),
	})
	svc := NewPinterestService(testConfig(srv.URL), accounts, zap.NewNop())
	ctx := context.Background()

	all, err := svc.ListBoards(ctx, "user-1", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "p-1", all[0].PinterestAccountID)
	assert.Equal(t, "Desserts", all[0].Boards[0].Name)
	assert.Equal(t, "Failed to fetch boards", all[1].Error)
	assert.Empty(t, all[1].Boards)

	one, err := svc.ListBoards(ctx, "user-1", "p-1")
	require.NoError(t, err)
	assert.Len(t, one, 1)

	_, err = svc.ListBoards(ctx, "user-9", "")
	assert.Equal(t, KindUnauthorized, KindOf(err))
}

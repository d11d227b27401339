package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	config "github.com/maheshrc27/pinscheduler/configs"
	"github.com/maheshrc27/pinscheduler/internal/models"
	"github.com/maheshrc27/pinscheduler/internal/repository"
	"github.com/maheshrc27/pinscheduler/internal/transfer"
	"github.com/maheshrc27/pinscheduler/pkg/utils"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	PINTEREST_AUTH_URL = "https://www.pinterest.com/oauth/"
	pinterestScopes    = "pins:read,pins:write,boards:read,boards:write,user_accounts:read"

	// maxErrorPayload bounds how much of a remote error body is kept.
	maxErrorPayload = 64 << 10
)

// PinterestService talks to the Pinterest v5 API on behalf of linked
// accounts. Tokens are stored encrypted with the configured secret key.
type PinterestService interface {
	GetAuthURL(state string) (string, error)
	Callback(ctx context.Context, userID, code string) (*models.PinterestAccount, error)
	CreatePin(ctx context.Context, pin *models.Pin) (string, error)
	RefreshAccessToken(ctx context.Context, ownerID, pinterestID string) error
	ListAccounts(ctx context.Context, userID string) ([]*models.PinterestAccount, error)
	ListBoards(ctx context.Context, userID, pinterestID string) ([]transfer.AccountBoards, error)
}

type pinterestService struct {
	cfg      config.Config
	accounts repository.PinterestAccountRepository
	client   *http.Client
	log      *zap.Logger
}

func NewPinterestService(cfg config.Config, accounts repository.PinterestAccountRepository, log *zap.Logger) PinterestService {
	return &pinterestService{
		cfg:      cfg,
		accounts: accounts,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      log,
	}
}

func (s *pinterestService) oauthConfig(op string) (*oauth2.Config, error) {
	p := s.cfg.Pinterest
	if p.ClientID == "" || p.ClientSecret == "" || p.RedirectURI == "" {
		return nil, ErrConfiguration(op, "pinterest oauth settings are missing")
	}
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURI,
		Scopes:       []string{pinterestScopes},
		Endpoint: oauth2.Endpoint{
			AuthURL:   PINTEREST_AUTH_URL,
			TokenURL:  strings.TrimRight(p.APIURL, "/") + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}, nil
}

// httpContext makes the oauth2 package use the service's client.
func (s *pinterestService) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.client)
}

func (s *pinterestService) GetAuthURL(state string) (string, error) {
	conf, err := s.oauthConfig("pinterest.auth_url")
	if err != nil {
		return "", err
	}
	return conf.AuthCodeURL(state), nil
}

// Callback exchanges an authorization code and links the Pinterest account
// to the user, replacing the tokens if it was linked before.
func (s *pinterestService) Callback(ctx context.Context, userID, code string) (*models.PinterestAccount, error) {
	const op = "pinterest.callback"

	if userID == "" {
		return nil, ErrUnauthorized(op, "missing caller identity")
	}
	if code == "" {
		return nil, ErrInvalid(op, "authorization code is missing")
	}

	conf, err := s.oauthConfig(op)
	if err != nil {
		return nil, err
	}

	token, err := conf.Exchange(s.httpContext(ctx), code, oauth2.SetAuthURLParam("continuous_refresh", "true"))
	if err != nil {
		return nil, oauthError(op, "failed to obtain access token from pinterest", err)
	}

	var user transfer.PinterestUserAccount
	if err := s.call(ctx, op, token.AccessToken, http.MethodGet, "/user_account", nil, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, ErrExternal(op, "pinterest returned no account id", nil, nil)
	}

	accessToken, err := s.encrypt(token.AccessToken)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.encrypt(token.RefreshToken)
	if err != nil {
		return nil, err
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generate account id: %w", err)
	}

	account := &models.PinterestAccount{
		ID:             id,
		UserID:         userID,
		PinterestID:    user.ID,
		Username:       user.Username,
		ProfileImage:   user.ProfileImage,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		TokenExpiresAt: GetExpiresAt(token),
	}
	account.ID, err = s.accounts.Upsert(ctx, account)
	if err != nil {
		return nil, err
	}

	s.log.Info("pinterest account linked",
		zap.String("user_id", userID),
		zap.String("pinterest_id", user.ID),
		zap.String("username", user.Username))
	return account, nil
}

// CreatePin publishes a pin under the account it was scheduled for and
// returns the Pinterest pin id.
func (s *pinterestService) CreatePin(ctx context.Context, pin *models.Pin) (string, error) {
	const op = "pinterest.create_pin"

	account, err := s.accounts.GetByID(ctx, pin.PinterestAccountID)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", ErrUnauthorized(op, "pinterest account is no longer linked")
	}

	accessToken, err := s.decrypt(op, account.AccessToken)
	if err != nil {
		return "", err
	}

	var result transfer.PinterestPin
	if err := s.call(ctx, op, accessToken, http.MethodPost, "/pins", pinRequest(pin), &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", ErrExternal(op, "invalid response received from pinterest", nil, nil)
	}
	return result.ID, nil
}

func pinRequest(pin *models.Pin) *transfer.PinterestCreatePin {
	req := &transfer.PinterestCreatePin{
		BoardID:     pin.BoardID,
		Title:       pin.Title,
		Description: pin.Description,
		Link:        pin.Link,
	}
	if pin.MediaType == models.MediaTypeVideo {
		req.MediaSource = transfer.PinterestMediaSource{SourceType: "video_url", CoverImageURL: pin.VideoURL}
	} else {
		req.MediaSource = transfer.PinterestMediaSource{SourceType: "image_url", URL: pin.ImageURL}
	}
	if pin.RichPinType != "" {
		req.RichMetadata = &transfer.PinterestRichMetadata{
			Type:         pin.RichPinType,
			Price:        pin.Price,
			Availability: pin.Availability,
		}
	}
	return req
}

// RefreshAccessToken trades the stored refresh token for a new token pair.
// Pinterest may omit the refresh token, in which case the old one is kept.
func (s *pinterestService) RefreshAccessToken(ctx context.Context, ownerID, pinterestID string) error {
	const op = "pinterest.refresh_token"

	account, err := s.accounts.GetByPinterestID(ctx, pinterestID)
	if err != nil {
		return err
	}
	if account == nil || (ownerID != "" && account.UserID != ownerID) {
		return ErrNotFound(op, "pinterest account not found")
	}
	if account.RefreshToken == "" {
		return ErrNotFound(op, "no refresh token stored")
	}

	conf, err := s.oauthConfig(op)
	if err != nil {
		return err
	}

	refreshToken, err := s.decrypt(op, account.RefreshToken)
	if err != nil {
		return err
	}

	token, err := conf.TokenSource(s.httpContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return oauthError(op, "failed to refresh pinterest access token", err)
	}

	accessToken, err := s.encrypt(token.AccessToken)
	if err != nil {
		return err
	}
	newRefreshToken := ""
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		if newRefreshToken, err = s.encrypt(token.RefreshToken); err != nil {
			return err
		}
	}

	expiresAt := GetExpiresAt(token)
	if err := s.accounts.SetToken(ctx, pinterestID, accessToken, newRefreshToken, expiresAt); err != nil {
		return err
	}

	s.log.Info("pinterest token refreshed",
		zap.String("pinterest_id", pinterestID),
		zap.Time("expires_at", expiresAt))
	return nil
}

func (s *pinterestService) ListAccounts(ctx context.Context, userID string) ([]*models.PinterestAccount, error) {
	if userID == "" {
		return nil, ErrUnauthorized("pinterest.accounts", "missing caller identity")
	}
	accounts, err := s.accounts.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []*models.PinterestAccount{}
	}
	return accounts, nil
}

// ListBoards fetches the boards of every linked account, or of the one
// with the given Pinterest id. A failing account is reported in its entry.
func (s *pinterestService) ListBoards(ctx context.Context, userID, pinterestID string) ([]transfer.AccountBoards, error) {
	const op = "pinterest.boards"

	accounts, err := s.ListAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := []transfer.AccountBoards{}
	for _, account := range accounts {
		if pinterestID != "" && account.PinterestID != pinterestID {
			continue
		}
		results = append(results, s.boards(ctx, op, account))
	}
	if len(results) == 0 {
		return nil, ErrUnauthorized(op, "no pinterest account connected")
	}
	return results, nil
}

func (s *pinterestService) boards(ctx context.Context, op string, account *models.PinterestAccount) transfer.AccountBoards {
	result := transfer.AccountBoards{PinterestAccountID: account.PinterestID, Boards: []transfer.PinterestBoard{}}

	accessToken, err := s.decrypt(op, account.AccessToken)
	if err == nil {
		var list transfer.PinterestBoardList
		err = s.call(ctx, op, accessToken, http.MethodGet, "/boards?page_size=250", nil, &list)
		if err == nil {
			if list.Items != nil {
				result.Boards = list.Items
			}
			return result
		}
	}

	s.log.Warn("failed to fetch boards", zap.String("pinterest_id", account.PinterestID), zap.Error(err))
	result.Error = "Failed to fetch boards"
	return result
}

// call sends an authenticated request to the Pinterest API and decodes the
// JSON response into out.
func (s *pinterestService) call(ctx context.Context, op, accessToken, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	url := strings.TrimRight(s.cfg.Pinterest.APIURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := oauth2.NewClient(s.httpContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	resp, err := client.Do(req)
	if err != nil {
		return ErrExternal(op, "pinterest request failed", nil, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorPayload))
		return ErrExternal(op, fmt.Sprintf("pinterest returned status %d", resp.StatusCode), payload, nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return ErrExternal(op, "malformed response from pinterest", nil, err)
	}
	return nil
}

func (s *pinterestService) encrypt(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	return utils.Encrypt([]byte(token), []byte(s.cfg.SecretKey))
}

func (s *pinterestService) decrypt(op, token string) (string, error) {
	plain, err := utils.Decrypt(token, []byte(s.cfg.SecretKey))
	if err != nil {
		return "", &Error{Kind: KindConfiguration, Op: op, Message: "stored token cannot be decrypted", Err: err}
	}
	return plain, nil
}

func oauthError(op, msg string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return ErrExternal(op, msg, re.Body, err)
	}
	return ErrExternal(op, msg, nil, err)
}

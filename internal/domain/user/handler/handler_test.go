package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"review_board/internal/domain/user/model"
	"review_board/internal/domain/user/service"
	"review_board/internal/pkg/middleware"
	"review_board/pkg/apperr"
	"review_board/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) SignUp(ctx context.Context, email, password, username string) (*model.Profile, error) {
	args := m.Called(ctx, email, password, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Profile), args.Error(1)
}

func (m *MockAuthService) SignIn(ctx context.Context, email, password string) (*service.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Session), args.Error(1)
}

func (m *MockAuthService) SignOut(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockAuthService) CurrentSession(ctx context.Context, token string) (*model.Profile, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Profile), args.Error(1)
}

func (m *MockAuthService) IsAdmin(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockAuthService) SendPasswordReset(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *MockAuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	return m.Called(ctx, email, code, newPassword).Error(0)
}

type MockProfileService struct {
	mock.Mock
}

func (m *MockProfileService) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Profile), args.Error(1)
}

func (m *MockProfileService) UpdateUsername(ctx context.Context, userID, username string) (*model.Profile, error) {
	args := m.Called(ctx, userID, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Profile), args.Error(1)
}

func (m *MockProfileService) UploadAvatar(ctx context.Context, userID string, data []byte) (*model.Profile, error) {
	args := m.Called(ctx, userID, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Profile), args.Error(1)
}

func (m *MockProfileService) ChangePassword(ctx context.Context, userID, current, newPassword, confirm string) error {
	return m.Called(ctx, userID, current, newPassword, confirm).Error(0)
}

func newRouter(auth *MockAuthService, profiles *MockProfileService) (*gin.Engine, *AuthHandler, *ProfileHandler) {
	r := gin.New()
	ah := NewAuthHandler(auth, false)
	ph := NewProfileHandler(profiles)
	resolver := service.NewPrincipalResolver(auth)
	setup(r, ah, ph, resolver)
	return r, ah, ph
}

// setup 与模块注册的路由一致
func setup(r *gin.Engine, ah *AuthHandler, ph *ProfileHandler, resolver middleware.SessionResolver) {
	r.POST("/auth/signup", ah.SignUp)
	r.POST("/auth/login", ah.Login)
	r.POST("/auth/logout", middleware.AuthMiddleware(resolver), ah.Logout)
	r.POST("/auth/password-reset", ah.RequestPasswordReset)
	r.POST("/auth/password-reset/confirm", ah.ConfirmPasswordReset)
	g := r.Group("/api/profile", middleware.AuthMiddleware(resolver))
	g.GET("", ph.GetProfile)
	g.PUT("", ph.UpdateUsername)
	g.POST("/avatar", ph.UploadAvatar)
	g.PUT("/password", ph.ChangePassword)
}

func jsonRequest(method, path string, body any, token string) *http.Request {
	buf, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var alice = &model.Profile{ID: "u-1", Username: "alice"}

func TestAuthHandler_SignUp(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		auth := new(MockAuthService)
		r, _, _ := newRouter(auth, new(MockProfileService))
		auth.On("SignUp", mock.Anything, "alice@example.com", "password1", "").Return(alice, nil)

		w := serve(r, jsonRequest(http.MethodPost, "/auth/signup",
			SignUpInput{Email: "alice@example.com", Password: "password1"}, ""))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, response.CodeSuccess, decode(t, w).Code)
		auth.AssertExpectations(t)
	})

	t.Run("duplicate email", func(t *testing.T) {
		auth := new(MockAuthService)
		r, _, _ := newRouter(auth, new(MockProfileService))
		auth.On("SignUp", mock.Anything, "alice@example.com", "password1", "").
			Return(nil, apperr.New(apperr.KindConflict, "auth.signup", "this email is already registered"))

		w := serve(r, jsonRequest(http.MethodPost, "/auth/signup",
			SignUpInput{Email: "alice@example.com", Password: "password1"}, ""))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "this email is already registered", decode(t, w).Message)
	})

	t.Run("missing fields", func(t *testing.T) {
		auth := new(MockAuthService)
		r, _, _ := newRouter(auth, new(MockProfileService))
		w := serve(r, jsonRequest(http.MethodPost, "/auth/signup", gin.H{"email": "a@b.co"}, ""))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		auth.AssertNotCalled(t, "SignUp", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAuthHandler_Login(t *testing.T) {
	t.Run("sets cookie", func(t *testing.T) {
		auth := new(MockAuthService)
		r, _, _ := newRouter(auth, new(MockProfileService))
		session := &service.Session{Token: "tok", ExpiresAt: time.Now().Add(time.Hour), Profile: alice}
		auth.On("SignIn", mock.Anything, "alice@example.com", "password1").Return(session, nil)

		w := serve(r, jsonRequest(http.MethodPost, "/auth/login",
			LoginInput{Email: "alice@example.com", Password: "password1"}, ""))

		require.Equal(t, http.StatusOK, w.Code)
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, middleware.TokenCookie, cookies[0].Name)
		assert.Equal(t, "tok", cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
	})

	t.Run("bad credentials", func(t *testing.T) {
		auth := new(MockAuthService)
		r, _, _ := newRouter(auth, new(MockProfileService))
		auth.On("SignIn", mock.Anything, "alice@example.com", "wrong-pass").
			Return(nil, apperr.New(apperr.KindUnauthorized, "auth.signin", "invalid email or password"))

		w := serve(r, jsonRequest(http.MethodPost, "/auth/login",
			LoginInput{Email: "alice@example.com", Password: "wrong-pass"}, ""))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, w.Result().Cookies())
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	auth := new(MockAuthService)
	r, ah, _ := newRouter(auth, new(MockProfileService))
	auth.On("CurrentSession", mock.Anything, "tok").Return(alice, nil)
	auth.On("SignOut", mock.Anything, "tok").Return(nil)

	var dropped []string
	ah.OnLogout(func(ctx context.Context, token string) { dropped = append(dropped, token) })

	w := serve(r, jsonRequest(http.MethodPost, "/auth/logout", nil, "tok"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"tok"}, dropped)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	auth.AssertExpectations(t)

	// 未登录不能登出
	w = serve(r, jsonRequest(http.MethodPost, "/auth/logout", nil, ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_PasswordReset(t *testing.T) {
	auth := new(MockAuthService)
	r, _, _ := newRouter(auth, new(MockProfileService))
	auth.On("SendPasswordReset", mock.Anything, "alice@example.com").Return(nil).Once()
	auth.On("SendPasswordReset", mock.Anything, "alice@example.com").
		Return(apperr.New(apperr.KindBusy, "auth.password_reset", "please wait")).Once()
	auth.On("ResetPassword", mock.Anything, "alice@example.com", "123456", "new-password").Return(nil)

	w := serve(r, jsonRequest(http.MethodPost, "/auth/password-reset", ResetRequestInput{Email: "alice@example.com"}, ""))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, jsonRequest(http.MethodPost, "/auth/password-reset", ResetRequestInput{Email: "alice@example.com"}, ""))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, response.ErrBusy, decode(t, w).Code)

	w = serve(r, jsonRequest(http.MethodPost, "/auth/password-reset/confirm",
		ResetConfirmInput{Email: "alice@example.com", Code: "123456", Password: "new-password"}, ""))
	assert.Equal(t, http.StatusOK, w.Code)
	auth.AssertExpectations(t)
}

func TestProfileHandler(t *testing.T) {
	auth := new(MockAuthService)
	profiles := new(MockProfileService)
	r, _, ph := newRouter(auth, profiles)
	auth.On("CurrentSession", mock.Anything, "tok").Return(alice, nil)

	var changed int
	ph.OnChange(func(ctx context.Context, token string) {
		assert.Equal(t, "tok", token)
		changed++
	})

	t.Run("get", func(t *testing.T) {
		profiles.On("GetProfile", mock.Anything, "u-1").Return(alice, nil).Once()
		w := serve(r, jsonRequest(http.MethodGet, "/api/profile", nil, "tok"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"username":"alice"`)
	})

	t.Run("requires auth", func(t *testing.T) {
		w := serve(r, jsonRequest(http.MethodGet, "/api/profile", nil, ""))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("update username", func(t *testing.T) {
		renamed := &model.Profile{ID: "u-1", Username: "alice2"}
		profiles.On("UpdateUsername", mock.Anything, "u-1", "alice2").Return(renamed, nil).Once()
		w := serve(r, jsonRequest(http.MethodPut, "/api/profile", UsernameInput{Username: "alice2"}, "tok"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, changed)
	})

	t.Run("invalid username does not notify", func(t *testing.T) {
		profiles.On("UpdateUsername", mock.Anything, "u-1", "a").
			Return(nil, apperr.New(apperr.KindValidation, "profile.update_username", "too short")).Once()
		w := serve(r, jsonRequest(http.MethodPut, "/api/profile", UsernameInput{Username: "a"}, "tok"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, 1, changed)
	})

	t.Run("upload avatar", func(t *testing.T) {
		png := []byte("\x89PNG\r\n\x1a\n0000")
		body := &bytes.Buffer{}
		mw := multipart.NewWriter(body)
		part, err := mw.CreateFormFile("avatar", "me.png")
		require.NoError(t, err)
		_, _ = part.Write(png)
		require.NoError(t, mw.Close())

		profiles.On("UploadAvatar", mock.Anything, "u-1", png).Return(alice, nil).Once()
		req := httptest.NewRequest(http.MethodPost, "/api/profile/avatar", body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer tok")

		w := serve(r, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 2, changed)
	})

	t.Run("avatar missing", func(t *testing.T) {
		w := serve(r, jsonRequest(http.MethodPost, "/api/profile/avatar", nil, "tok"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("change password", func(t *testing.T) {
		profiles.On("ChangePassword", mock.Anything, "u-1", "old-password", "new-password", "new-password").
			Return(apperr.New(apperr.KindForbidden, "profile.change_password", "current password is incorrect")).Once()
		w := serve(r, jsonRequest(http.MethodPut, "/api/profile/password", PasswordInput{
			CurrentPassword: "old-password", NewPassword: "new-password", ConfirmPassword: "new-password",
		}, "tok"))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	profiles.AssertExpectations(t)
}

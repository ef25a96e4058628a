package service

import (
	"context"
	"io"
	"testing"
	"time"

	"review_board/internal/domain/user/model"
	"review_board/internal/domain/user/repository"
	"review_board/internal/pkg/otp"
	"review_board/pkg/apperr"
	"review_board/pkg/cache"
	"review_board/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "a-test-secret-that-is-long-enough-123"

// MockUserRepository is a mock of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User, profile *model.Profile) error {
	args := m.Called(user, profile)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	args := m.Called(id, passwordHash)
	return args.Error(0)
}

func (m *MockUserRepository) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Profile), args.Error(1)
}

func (m *MockUserRepository) CreateProfile(ctx context.Context, profile *model.Profile) error {
	args := m.Called(profile)
	return args.Error(0)
}

func (m *MockUserRepository) UpdateUsername(ctx context.Context, id, username string) error {
	args := m.Called(id, username)
	return args.Error(0)
}

func (m *MockUserRepository) UpdateAvatar(ctx context.Context, id, avatarURL string) error {
	args := m.Called(id, avatarURL)
	return args.Error(0)
}

func (m *MockUserRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

// MockOTPService is a mock of OTPService
type MockOTPService struct {
	mock.Mock
}

func (m *MockOTPService) Send(ctx context.Context, email string) (string, error) {
	args := m.Called(email)
	return args.String(0), args.Error(1)
}

func (m *MockOTPService) Verify(ctx context.Context, email, code string) error {
	args := m.Called(email, code)
	return args.Error(0)
}

// MockUploader is a mock of uploader.Uploader
type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string, overwrite bool) error {
	args := m.Called(key, size, contentType, overwrite)
	return args.Error(0)
}

func (m *MockUploader) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

func (m *MockUploader) Delete(ctx context.Context, key string) error {
	args := m.Called(key)
	return args.Error(0)
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

type authFixture struct {
	repo  *MockUserRepository
	otp   *MockOTPService
	cache *cache.MemoryCache
	svc   AuthService
}

func newAuthFixture() *authFixture {
	repo := new(MockUserRepository)
	otpSvc := new(MockOTPService)
	c := cache.NewMemoryCache()
	profiles := NewCachedProfileStore(repo, c, zap.NewNop())
	svc := NewAuthService(repo, profiles, otpSvc, c, AuthConfig{Secret: testSecret, TokenTTL: time.Hour}, zap.NewNop())
	return &authFixture{repo: repo, otp: otpSvc, cache: c, svc: svc}
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()

	t.Run("default username from email", func(t *testing.T) {
		f := newAuthFixture()
		f.repo.On("Create", mock.AnythingOfType("*model.User"), mock.AnythingOfType("*model.Profile")).
			Run(func(args mock.Arguments) {
				user := args.Get(0).(*model.User)
				assert.Equal(t, "alice@example.com", user.Email)
				assert.NotEqual(t, "password123", user.PasswordHash)
				assert.NotEmpty(t, user.ID)
			}).
			Return(nil)

		profile, err := f.svc.SignUp(ctx, " Alice@Example.com ", "password123", "")
		require.NoError(t, err)
		assert.Equal(t, "alice", profile.Username)
		f.repo.AssertExpectations(t)
	})

	t.Run("duplicate email", func(t *testing.T) {
		f := newAuthFixture()
		f.repo.On("Create", mock.Anything, mock.Anything).Return(repository.ErrDuplicate)

		_, err := f.svc.SignUp(ctx, "bob@example.com", "password123", "bob")
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("invalid input never reaches the store", func(t *testing.T) {
		f := newAuthFixture()

		_, err := f.svc.SignUp(ctx, "not-an-email", "password123", "")
		assert.ErrorIs(t, err, apperr.ErrValidation)
		_, err = f.svc.SignUp(ctx, "carol@example.com", "short", "")
		assert.ErrorIs(t, err, apperr.ErrValidation)
		_, err = f.svc.SignUp(ctx, "carol@example.com", "password123", "no spaces allowed")
		assert.ErrorIs(t, err, apperr.ErrValidation)

		f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestDefaultUsername(t *testing.T) {
	assert.Equal(t, "alice.smith", defaultUsername("alice.smith@example.com", "id"))
	assert.Equal(t, "user_12345678", defaultUsername("a+b@example.com", "1234567890abcdef"))
	assert.Equal(t, "bobby", defaultUsername("bo+bby@example.com", "x"))
}

func TestSignInAndSession(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture()
	user := &model.User{Email: "alice@example.com", PasswordHash: hashOf(t, "password123")}
	user.ID = "u-1"
	profile := &model.Profile{ID: "u-1", Username: "alice"}

	f.repo.On("GetByEmail", "alice@example.com").Return(user, nil)
	f.repo.On("GetByEmail", "nobody@example.com").Return(nil, repository.ErrNotFound)
	f.repo.On("GetProfile", "u-1").Return(profile, nil).Once()

	_, err := f.svc.SignIn(ctx, "alice@example.com", "wrong-password")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = f.svc.SignIn(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	session, err := f.svc.SignIn(ctx, "alice@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "alice", session.Profile.Username)

	claims, err := utils.ParseToken(testSecret, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)

	// 资料已缓存，不再查库
	current, err := f.svc.CurrentSession(ctx, session.Token)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "u-1", current.ID)

	require.NoError(t, f.svc.SignOut(ctx, session.Token))
	current, err = f.svc.CurrentSession(ctx, session.Token)
	require.NoError(t, err)
	assert.Nil(t, current, "revoked token has no session")

	f.repo.AssertExpectations(t)
}

func TestCurrentSession(t *testing.T) {
	ctx := context.Background()

	t.Run("no or bad token", func(t *testing.T) {
		f := newAuthFixture()
		for _, token := range []string{"", "garbage", "a.b.c"} {
			p, err := f.svc.CurrentSession(ctx, token)
			assert.NoError(t, err)
			assert.Nil(t, p)
		}
		assert.NoError(t, f.svc.SignOut(ctx, "garbage"))
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		f := newAuthFixture()
		token, _, err := utils.GenerateToken("another-secret-that-is-long-enough!!", "u-1", "a@b.co", time.Hour)
		require.NoError(t, err)
		p, err := f.svc.CurrentSession(ctx, token)
		assert.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("missing profile is created", func(t *testing.T) {
		f := newAuthFixture()
		token, _, err := utils.GenerateToken(testSecret, "u-2", "dave@example.com", time.Hour)
		require.NoError(t, err)

		f.repo.On("GetProfile", "u-2").Return(nil, repository.ErrNotFound)
		f.repo.On("CreateProfile", mock.MatchedBy(func(p *model.Profile) bool {
			return p.ID == "u-2" && p.Username == "dave"
		})).Return(nil)

		p, err := f.svc.CurrentSession(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "dave", p.Username)
		f.repo.AssertExpectations(t)
	})
}

func TestIsAdmin(t *testing.T) {
	f := newAuthFixture()
	f.repo.On("GetProfile", "a-1").Return(&model.Profile{ID: "a-1", IsAdmin: true}, nil)
	f.repo.On("GetProfile", "gone").Return(nil, repository.ErrNotFound)

	admin, err := f.svc.IsAdmin(context.Background(), "a-1")
	require.NoError(t, err)
	assert.True(t, admin)

	admin, err = f.svc.IsAdmin(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, admin)
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	user := &model.User{Email: "alice@example.com"}
	user.ID = "u-1"

	t.Run("unknown email is silent", func(t *testing.T) {
		f := newAuthFixture()
		f.repo.On("GetByEmail", "ghost@example.com").Return(nil, repository.ErrNotFound)

		require.NoError(t, f.svc.SendPasswordReset(ctx, "ghost@example.com"))
		f.otp.AssertNotCalled(t, "Send", mock.Anything)
	})

	t.Run("too frequent", func(t *testing.T) {
		f := newAuthFixture()
		f.repo.On("GetByEmail", "alice@example.com").Return(user, nil)
		f.otp.On("Send", "alice@example.com").Return("", otp.ErrTooFrequent)

		assert.ErrorIs(t, f.svc.SendPasswordReset(ctx, "alice@example.com"), apperr.ErrBusy)
	})

	t.Run("send and confirm", func(t *testing.T) {
		f := newAuthFixture()
		f.repo.On("GetByEmail", "alice@example.com").Return(user, nil)
		f.otp.On("Send", "alice@example.com").Return("123456", nil)
		f.otp.On("Verify", "alice@example.com", "000000").Return(otp.ErrInvalidCode)
		f.otp.On("Verify", "alice@example.com", "123456").Return(nil)
		f.repo.On("UpdatePassword", "u-1", mock.AnythingOfType("string")).Return(nil)

		require.NoError(t, f.svc.SendPasswordReset(ctx, "Alice@example.com"))

		err := f.svc.ResetPassword(ctx, "alice@example.com", "000000", "new-password")
		assert.ErrorIs(t, err, apperr.ErrValidation)

		err = f.svc.ResetPassword(ctx, "alice@example.com", "123456", "short")
		assert.ErrorIs(t, err, apperr.ErrValidation)

		require.NoError(t, f.svc.ResetPassword(ctx, "alice@example.com", "123456", "new-password"))
		f.repo.AssertExpectations(t)
		f.otp.AssertExpectations(t)
	})
}

type profileFixture struct {
	repo    *MockUserRepository
	storage *MockUploader
	svc     ProfileService
}

func newProfileFixture() *profileFixture {
	repo := new(MockUserRepository)
	storage := new(MockUploader)
	profiles := NewCachedProfileStore(repo, cache.NewMemoryCache(), zap.NewNop())
	return &profileFixture{repo: repo, storage: storage, svc: NewProfileService(repo, profiles, storage, zap.NewNop())}
}

func TestUpdateUsername(t *testing.T) {
	ctx := context.Background()

	t.Run("validation", func(t *testing.T) {
		f := newProfileFixture()
		for _, name := range []string{"", "  ", "ab", "has space", "emoji😀name", "toolong_toolong_toolong_toolong_x"} {
			_, err := f.svc.UpdateUsername(ctx, "u-1", name)
			assert.ErrorIs(t, err, apperr.ErrValidation, name)
		}
		f.repo.AssertNotCalled(t, "UpdateUsername", mock.Anything, mock.Anything)
	})

	t.Run("invalidates cached profile", func(t *testing.T) {
		f := newProfileFixture()
		f.repo.On("GetProfile", "u-1").Return(&model.Profile{ID: "u-1", Username: "old"}, nil).Once()
		f.repo.On("UpdateUsername", "u-1", "new.name").Return(nil)
		f.repo.On("GetProfile", "u-1").Return(&model.Profile{ID: "u-1", Username: "new.name"}, nil).Once()

		p, err := f.svc.GetProfile(ctx, "u-1")
		require.NoError(t, err)
		assert.Equal(t, "old", p.Username)

		p, err = f.svc.UpdateUsername(ctx, "u-1", " new.name ")
		require.NoError(t, err)
		assert.Equal(t, "new.name", p.Username)
		f.repo.AssertExpectations(t)
	})
}

func TestUploadAvatar(t *testing.T) {
	ctx := context.Background()
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

	t.Run("overwrites fixed key", func(t *testing.T) {
		f := newProfileFixture()
		f.storage.On("Upload", "avatars/u-1/avatar.png", int64(len(png)), "image/png", true).Return(nil)
		f.repo.On("UpdateAvatar", "u-1", "https://cdn.test/avatars/u-1/avatar.png").Return(nil)
		url := "https://cdn.test/avatars/u-1/avatar.png"
		f.repo.On("GetProfile", "u-1").Return(&model.Profile{ID: "u-1", AvatarURL: &url}, nil)

		p, err := f.svc.UploadAvatar(ctx, "u-1", png)
		require.NoError(t, err)
		assert.Equal(t, url, p.Avatar())
		f.storage.AssertExpectations(t)
	})

	t.Run("rejects large and non-image files", func(t *testing.T) {
		f := newProfileFixture()
		_, err := f.svc.UploadAvatar(ctx, "u-1", append(png, make([]byte, MaxAvatarSize)...))
		assert.ErrorIs(t, err, apperr.ErrValidation)
		_, err = f.svc.UploadAvatar(ctx, "u-1", []byte("just some text"))
		assert.ErrorIs(t, err, apperr.ErrValidation)
		f.storage.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	user := &model.User{PasswordHash: hashOf(t, "current-pass")}
	user.ID = "u-1"

	f := newProfileFixture()
	f.repo.On("GetByID", "u-1").Return(user, nil)
	f.repo.On("UpdatePassword", "u-1", mock.AnythingOfType("string")).Return(nil).Once()

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, "u-1", "", "new-password", "new-password"), apperr.ErrValidation)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, "u-1", "current-pass", "new-password", "other"), apperr.ErrValidation)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, "u-1", "wrong", "new-password", "new-password"), apperr.ErrForbidden)
	require.NoError(t, f.svc.ChangePassword(ctx, "u-1", "current-pass", "new-password", "new-password"))
	f.repo.AssertExpectations(t)
}

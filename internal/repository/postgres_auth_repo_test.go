package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/playnet/internal/model"
)

func TestPostgresUserRepo_CreateAndFind(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	u := &model.User{Email: "Alice@Example.com", Name: "Alice", PasswordHash: "hash"}
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if u.ID == 0 {
		t.Fatal("expected ID to be assigned")
	}
	if u.Role != model.GlobalRoleUser {
		t.Errorf("Role = %q, want %q", u.Role, model.GlobalRoleUser)
	}
	if u.Profile.PrivacyProfile != "public" || u.Profile.PrivacyContact != "everyone" {
		t.Errorf("unexpected privacy defaults: %+v", u.Profile)
	}

	// メールアドレスは大文字小文字を区別しない
	found, err := repo.FindByEmail(ctx, " alice@example.com ")
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	if found == nil || found.ID != u.ID {
		t.Fatalf("expected user %d, got %+v", u.ID, found)
	}
	if !found.HasPassword() {
		t.Error("expected password hash to be stored")
	}

	byID, err := repo.FindByID(ctx, u.ID)
	if err != nil || byID == nil || byID.Email != "Alice@Example.com" {
		t.Fatalf("FindByID = %+v, %v", byID, err)
	}

	missing, err := repo.FindByID(ctx, u.ID+1000)
	if err != nil || missing != nil {
		t.Errorf("expected (nil, nil) for missing user, got %+v, %v", missing, err)
	}

	dup := &model.User{Email: "ALICE@example.com", Name: "Other"}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestPostgresUserRepo_UpdateProfileAndRole(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	u := createTestUser(t, repo, "bob@example.com")
	createTestUser(t, repo, "taken@example.com")

	u.Name = "Bob"
	u.Profile.Interests = []string{"futsal", "chess"}
	u.Profile.Bio = "weekend player"
	u.Profile.PrivacyProfile = "private"
	u.Profile.PrivacyContact = "members"
	if err := repo.UpdateProfile(ctx, u); err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}

	got, err := repo.FindByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got.Name != "Bob" || got.Profile.Bio != "weekend player" || len(got.Profile.Interests) != 2 {
		t.Errorf("profile not persisted: %+v", got)
	}
	if got.Profile.PrivacyProfile != "private" || got.Profile.PrivacyContact != "members" {
		t.Errorf("privacy not persisted: %+v", got.Profile)
	}

	u.Email = "taken@example.com"
	if err := repo.UpdateProfile(ctx, u); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}

	ok, err := repo.UpdateRole(ctx, u.ID, model.GlobalRoleSuperadmin)
	if err != nil || !ok {
		t.Fatalf("UpdateRole = %v, %v", ok, err)
	}
	got, _ = repo.FindByID(ctx, u.ID)
	if got.Role != model.GlobalRoleSuperadmin {
		t.Errorf("Role = %q, want superadmin", got.Role)
	}

	ok, err = repo.UpdateRole(ctx, u.ID+1000, model.GlobalRoleAdmin)
	if err != nil || ok {
		t.Errorf("UpdateRole on missing user = %v, %v, want false, nil", ok, err)
	}
}

func TestPostgresIdentityRepo_LinkAndFind(t *testing.T) {
	db := openTestDB(t)
	users := NewPostgresUserRepo(db)
	identities := NewPostgresIdentityRepo(db)
	ctx := context.Background()

	u := &model.User{Email: "carol@example.com", Name: "Carol"}
	ident := &model.Identity{Provider: "google", ProviderUserID: "g-123"}
	if err := users.CreateWithIdentity(ctx, u, ident); err != nil {
		t.Fatalf("CreateWithIdentity failed: %v", err)
	}
	if ident.UserID != u.ID {
		t.Errorf("identity.UserID = %d, want %d", ident.UserID, u.ID)
	}

	found, err := identities.FindByProviderAndProviderUserID(ctx, "google", "g-123")
	if err != nil || found == nil || found.UserID != u.ID {
		t.Fatalf("FindByProviderAndProviderUserID = %+v, %v", found, err)
	}

	// 同じ組み合わせの再登録はエラーにならない
	if err := identities.Create(ctx, &model.Identity{UserID: u.ID, Provider: "google", ProviderUserID: "g-123"}); err != nil {
		t.Errorf("duplicate Create should be ignored, got %v", err)
	}

	none, err := identities.FindByProviderAndProviderUserID(ctx, "google", "unknown")
	if err != nil || none != nil {
		t.Errorf("expected (nil, nil), got %+v, %v", none, err)
	}

	// メール重複時はidentityも作成されない
	dup := &model.User{Email: "carol@example.com", Name: "Carol 2"}
	if err := users.CreateWithIdentity(ctx, dup, &model.Identity{Provider: "google", ProviderUserID: "g-456"}); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}
	orphan, _ := identities.FindByProviderAndProviderUserID(ctx, "google", "g-456")
	if orphan != nil {
		t.Error("identity should be rolled back with the user")
	}
}

func TestPostgresPasswordResetRepo_ConsumeOnce(t *testing.T) {
	db := openTestDB(t)
	users := NewPostgresUserRepo(db)
	resets := NewPostgresPasswordResetRepo(db)
	ctx := context.Background()

	u := createTestUser(t, users, "dave@example.com")
	reset := &model.PasswordReset{UserID: u.ID, TokenHash: "hash-1", ExpiresAt: time.Now().Add(time.Hour)}
	if err := resets.Create(ctx, reset); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	found, err := resets.FindByTokenHash(ctx, "hash-1")
	if err != nil || found == nil || found.Used() {
		t.Fatalf("FindByTokenHash = %+v, %v", found, err)
	}

	if err := resets.Consume(ctx, found, "new-hash"); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if err := resets.Consume(ctx, found, "other-hash"); !errors.Is(err, ErrResetConsumed) {
		t.Errorf("second Consume: expected ErrResetConsumed, got %v", err)
	}

	got, _ := users.FindByID(ctx, u.ID)
	if got.PasswordHash != "new-hash" {
		t.Errorf("PasswordHash = %q, want new-hash", got.PasswordHash)
	}
	used, _ := resets.FindByTokenHash(ctx, "hash-1")
	if used == nil || !used.Used() {
		t.Error("reset should be marked used")
	}

	missing, err := resets.FindByTokenHash(ctx, "unknown")
	if err != nil || missing != nil {
		t.Errorf("expected (nil, nil), got %+v, %v", missing, err)
	}
}

func TestPostgresPasswordResetRepo_ExpiredNotConsumed(t *testing.T) {
	db := openTestDB(t)
	users := NewPostgresUserRepo(db)
	resets := NewPostgresPasswordResetRepo(db)
	ctx := context.Background()

	u := createTestUser(t, users, "erin@example.com")
	reset := &model.PasswordReset{UserID: u.ID, TokenHash: "hash-expired", ExpiresAt: time.Now().Add(-time.Minute)}
	if err := resets.Create(ctx, reset); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := resets.Consume(ctx, reset, "new-hash"); !errors.Is(err, ErrResetConsumed) {
		t.Errorf("expected ErrResetConsumed for expired reset, got %v", err)
	}
	got, _ := users.FindByID(ctx, u.ID)
	if got.PasswordHash != "" {
		t.Error("password must not change for an expired reset")
	}
}

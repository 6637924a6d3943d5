package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rivve/boarding-house/internal/lib/apperr"
	"github.com/rivve/boarding-house/internal/migrations"
	"github.com/rivve/boarding-house/internal/models"
)

// tierOrder порядок тарифов gold < platinum.
func tierOrder(active, incoming models.PlanType) bool {
	rank := map[models.PlanType]int{models.PlanGold: 0, models.PlanPlatinum: 1}
	return rank[active] > rank[incoming]
}

func setupTestDatabase(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	_, err = migrations.Run(storage.DB, migrationsPath)
	require.NoError(t, err)
	require.NoError(t, CheckDatabaseReady(ctx, storage))

	return storage
}

// testDataFactory создает связанные тестовые записи.
type testDataFactory struct {
	t       *testing.T
	storage *Storage
}

func (f *testDataFactory) user(role models.Role) string {
	f.t.Helper()
	name := uuid.NewString()[:8]
	uid, err := f.storage.CreateUser(context.Background(), models.User{
		Email:        name + "@example.com",
		Username:     name,
		PasswordHash: "hash",
		Role:         role,
	})
	require.NoError(f.t, err)
	return uid
}

func (f *testDataFactory) pending(userUID string, plan models.PlanType, created time.Time) string {
	f.t.Helper()
	txID := "sess_" + uuid.NewString()
	_, err := f.storage.CreatePayment(context.Background(), models.Payment{
		UserUID:       userUID,
		UserRole:      models.RoleStudent,
		PlanType:      plan,
		PlanDuration:  models.DurationMonthly,
		Amount:        150000,
		Currency:      "LKR",
		TransactionID: txID,
		CreatedAt:     created,
	})
	require.NoError(f.t, err)
	return txID
}

func (f *testDataFactory) listing(landlordUID string, residents, current int) int64 {
	f.t.Helper()
	id, err := f.storage.CreateListing(context.Background(), models.Listing{
		LandlordUID:      landlordUID,
		Title:            "Room near campus",
		Address:          "Colombo 07",
		Location:         models.GeoPoint{Lat: 6.9022, Lng: 79.8612},
		Price:            2500000,
		HousingType:      "annex",
		Residents:        residents,
		CurrentResidents: current,
		Facilities:       []string{"wifi"},
	})
	require.NoError(f.t, err)
	return id
}

func TestStorage_Users(t *testing.T) {
	storage := setupTestDatabase(t)
	ctx := context.Background()
	now := time.Now().UTC()
	expires := now.Add(time.Hour)

	uid, err := storage.CreateUser(ctx, models.User{
		Email:                    "kasun@example.com",
		Username:                 "kasun",
		PasswordHash:             "hash",
		Role:                     models.RoleStudent,
		VerificationToken:        "token-1",
		VerificationTokenExpires: &expires,
	})
	require.NoError(t, err)

	_, err = storage.CreateUser(ctx, models.User{
		Email: "KASUN@example.com", Username: "kasun", PasswordHash: "hash", Role: models.RoleStudent,
	})
	require.ErrorIs(t, err, apperr.ErrEmailTaken)

	user, err := storage.GetUserByEmail(ctx, "Kasun@Example.com")
	require.NoError(t, err)
	assert.Equal(t, uid, user.UUID)
	assert.False(t, user.IsEmailVerified)

	_, err = storage.VerifyEmail(ctx, "wrong", now)
	require.ErrorIs(t, err, apperr.ErrInvalidToken)

	verified, err := storage.VerifyEmail(ctx, "token-1", now)
	require.NoError(t, err)
	assert.True(t, verified.IsEmailVerified)

	// токен одноразовый
	_, err = storage.VerifyEmail(ctx, "token-1", now)
	require.ErrorIs(t, err, apperr.ErrInvalidToken)

	_, err = storage.GetUserByUID(ctx, uuid.NewString())
	require.ErrorIs(t, err, apperr.ErrUserNotFound)
}

func TestStorage_ActivatePayment(t *testing.T) {
	storage := setupTestDatabase(t)
	f := &testDataFactory{t: t, storage: storage}
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("activation is idempotent", func(t *testing.T) {
		uid := f.user(models.RoleStudent)
		txID := f.pending(uid, models.PlanGold, now)

		res, err := storage.ActivatePayment(ctx, txID, "sub_1", now, tierOrder)
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.Equal(t, models.StatusSuccess, res.Payment.Status)
		require.NotNil(t, res.Payment.SubscriptionExpiry)
		assert.WithinDuration(t, now.AddDate(0, 0, 30), *res.Payment.SubscriptionExpiry, time.Second)

		replay, err := storage.ActivatePayment(ctx, txID, "sub_1", now.Add(time.Minute), tierOrder)
		require.NoError(t, err)
		assert.False(t, replay.Applied)
		assert.WithinDuration(t, *res.Payment.SubscriptionExpiry, *replay.Payment.SubscriptionExpiry, time.Second)

		user, err := storage.GetUserByUID(ctx, uid)
		require.NoError(t, err)
		assert.True(t, user.IsPremium)
	})

	t.Run("upgrade supersedes active payment", func(t *testing.T) {
		uid := f.user(models.RoleStudent)
		gold := f.pending(uid, models.PlanGold, now)
		_, err := storage.ActivatePayment(ctx, gold, "sub_gold", now, tierOrder)
		require.NoError(t, err)

		platinum := f.pending(uid, models.PlanPlatinum, now)
		res, err := storage.ActivatePayment(ctx, platinum, "sub_platinum", now, tierOrder)
		require.NoError(t, err)
		require.True(t, res.Applied)
		require.Len(t, res.Superseded, 1)
		assert.Equal(t, models.StatusCancelled, res.Superseded[0].Status)
		assert.Equal(t, models.CancelSuperseded, res.Superseded[0].CancelReason)

		active, err := storage.GetActivePayment(ctx, uid, now)
		require.NoError(t, err)
		require.NotNil(t, active)
		assert.Equal(t, models.PlanPlatinum, active.PlanType)
	})

	t.Run("lower plan completion does not replace higher plan", func(t *testing.T) {
		uid := f.user(models.RoleStudent)
		platinum := f.pending(uid, models.PlanPlatinum, now)
		gold := f.pending(uid, models.PlanGold, now)

		first, err := storage.ActivatePayment(ctx, platinum, "sub_platinum", now, tierOrder)
		require.NoError(t, err)
		require.True(t, first.Applied)

		res, err := storage.ActivatePayment(ctx, gold, "sub_gold", now, tierOrder)
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Empty(t, res.Superseded)
		require.NotNil(t, res.BlockedBy)
		assert.Equal(t, first.Payment.ID, res.BlockedBy.ID)
		assert.Equal(t, models.StatusFailed, res.Payment.Status)
		assert.Equal(t, models.CancelDowngradeBlocked, res.Payment.CancelReason)
		assert.Nil(t, res.Payment.SubscriptionExpiry)

		active, err := storage.GetActivePayment(ctx, uid, now)
		require.NoError(t, err)
		require.NotNil(t, active)
		assert.Equal(t, models.PlanPlatinum, active.PlanType)
		assert.WithinDuration(t, *first.Payment.SubscriptionExpiry, *active.SubscriptionExpiry, time.Second)

		// повтор того же события ничего не меняет
		replay, err := storage.ActivatePayment(ctx, gold, "sub_gold", now, tierOrder)
		require.NoError(t, err)
		assert.False(t, replay.Applied)
		assert.Nil(t, replay.BlockedBy)
		assert.Equal(t, models.StatusFailed, replay.Payment.Status)
	})

	t.Run("same plan renewal extends expiry", func(t *testing.T) {
		uid := f.user(models.RoleStudent)
		first := f.pending(uid, models.PlanGold, now)
		res, err := storage.ActivatePayment(ctx, first, "", now, tierOrder)
		require.NoError(t, err)

		second := f.pending(uid, models.PlanGold, now)
		renewed, err := storage.ActivatePayment(ctx, second, "", now, tierOrder)
		require.NoError(t, err)
		assert.WithinDuration(t, res.Payment.SubscriptionExpiry.AddDate(0, 0, 30), *renewed.Payment.SubscriptionExpiry, time.Second)
	})

	t.Run("failed payment cannot be activated", func(t *testing.T) {
		uid := f.user(models.RoleStudent)
		txID := f.pending(uid, models.PlanGold, now)

		_, applied, err := storage.MarkPaymentFailed(ctx, txID, now)
		require.NoError(t, err)
		assert.True(t, applied)

		res, err := storage.ActivatePayment(ctx, txID, "", now, tierOrder)
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Equal(t, models.StatusFailed, res.Payment.Status)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		_, err := storage.ActivatePayment(ctx, "missing", "", now, tierOrder)
		require.ErrorIs(t, err, apperr.ErrPaymentNotFound)
	})
}

func TestStorage_ConcurrentActivation(t *testing.T) {
	storage := setupTestDatabase(t)
	f := &testDataFactory{t: t, storage: storage}
	ctx := context.Background()
	now := time.Now().UTC()

	uid := f.user(models.RoleStudent)
	txID := f.pending(uid, models.PlanGold, now)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := storage.ActivatePayment(ctx, txID, "", now, tierOrder)
			if err != nil {
				return
			}
			if res.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, applied)
}

func TestStorage_CancelAndPremium(t *testing.T) {
	storage := setupTestDatabase(t)
	f := &testDataFactory{t: t, storage: storage}
	ctx := context.Background()
	now := time.Now().UTC()

	tests := []struct {
		name        string
		reason      models.CancelReason
		wantPremium bool
	}{
		{name: "user cancel keeps access until expiry", reason: models.CancelByUser, wantPremium: true},
		{name: "gateway cancel revokes access", reason: models.CancelByGateway, wantPremium: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uid := f.user(models.RoleStudent)
			res, err := storage.ActivatePayment(ctx, f.pending(uid, models.PlanGold, now), "", now, tierOrder)
			require.NoError(t, err)

			cancelled, ok, err := storage.CancelPayment(ctx, res.Payment.ID, tt.reason, now)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.reason, cancelled.CancelReason)

			_, ok, err = storage.CancelPayment(ctx, res.Payment.ID, tt.reason, now)
			require.NoError(t, err)
			assert.False(t, ok)

			premium, changed, err := storage.RecomputePremium(ctx, uid, now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPremium, premium)
			assert.Equal(t, !tt.wantPremium, changed)
		})
	}
}

func TestStorage_SweeperQueries(t *testing.T) {
	storage := setupTestDatabase(t)
	f := &testDataFactory{t: t, storage: storage}
	ctx := context.Background()
	now := time.Now().UTC()

	uid := f.user(models.RoleStudent)
	res, err := storage.ActivatePayment(ctx, f.pending(uid, models.PlanGold, now), "", now, tierOrder)
	require.NoError(t, err)

	later := now.AddDate(0, 0, 31)
	expired, err := storage.ListExpiredActive(ctx, later, 100)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, res.Payment.ID, expired[0].ID)

	ok, err := storage.ExpirePayment(ctx, res.Payment.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "not yet expired")

	ok, err = storage.ExpirePayment(ctx, res.Payment.ID, later)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = storage.ExpirePayment(ctx, res.Payment.ID, later)
	require.NoError(t, err)
	assert.False(t, ok, "second sweep is a no-op")

	downgraded, err := storage.DowngradeUnentitledUsers(ctx, later)
	require.NoError(t, err)
	require.Len(t, downgraded, 1)
	assert.Equal(t, uid, downgraded[0].UUID)
	assert.False(t, downgraded[0].IsPremium)

	f.pending(uid, models.PlanGold, now.Add(-48*time.Hour))
	f.pending(uid, models.PlanGold, now)
	n, err := storage.FailAbandonedPending(ctx, now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStorage_SlotAccounting(t *testing.T) {
	storage := setupTestDatabase(t)
	f := &testDataFactory{t: t, storage: storage}
	ctx := context.Background()

	landlord := f.user(models.RoleLandlord)
	id := f.listing(landlord, 2, 2)

	_, err := storage.AddResident(ctx, id)
	require.ErrorIs(t, err, apperr.ErrInvalidOperation)

	l, err := storage.RemoveResident(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, l.CurrentResidents)

	l, err = storage.AddResident(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, l.CurrentResidents)

	_, err = storage.AddResident(ctx, 999999)
	require.ErrorIs(t, err, apperr.ErrListingNotFound)

	empty := f.listing(landlord, 1, 0)
	_, err = storage.RemoveResident(ctx, empty)
	require.ErrorIs(t, err, apperr.ErrInvalidOperation)
}

func TestStorage_ConcurrentAddResident(t *testing.T) {
	storage := setupTestDatabase(t)
	f := &testDataFactory{t: t, storage: storage}
	ctx := context.Background()

	id := f.listing(f.user(models.RoleLandlord), 3, 0)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = storage.AddResident(ctx, id)
		}()
	}
	wg.Wait()

	l, err := storage.GetListing(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, l.CurrentResidents)
}

func TestStorage_SearchListings(t *testing.T) {
	storage := setupTestDatabase(t)
	f := &testDataFactory{t: t, storage: storage}
	ctx := context.Background()
	now := time.Now().UTC()

	regular := f.user(models.RoleLandlord)
	premium := f.user(models.RoleLandlord)
	_, err := storage.ActivatePayment(ctx, f.pending(premium, models.PlanGold, now), "", now, tierOrder)
	require.NoError(t, err)

	near := f.listing(regular, 2, 0)
	boosted := f.listing(premium, 2, 2)
	_, err = storage.CreateListing(ctx, models.Listing{
		LandlordUID: regular,
		Title:       "Kandy house",
		Address:     "Kandy",
		Location:    models.GeoPoint{Lat: 7.2906, Lng: 80.6337},
		Price:       1500000,
		HousingType: "house",
		Residents:   4,
		Facilities:  []string{"parking"},
	})
	require.NoError(t, err)

	maxPrice := int64(2000000)
	tests := []struct {
		name    string
		filter  models.ListingFilter
		wantIDs []int64
		wantLen int
	}{
		{
			name:    "boosted first",
			filter:  models.ListingFilter{Near: &models.GeoPoint{Lat: 6.9022, Lng: 79.8612}, RadiusKm: 5},
			wantIDs: []int64{boosted, near},
		},
		{
			name:    "only vacant",
			filter:  models.ListingFilter{Near: &models.GeoPoint{Lat: 6.9022, Lng: 79.8612}, RadiusKm: 5, OnlyVacant: true},
			wantIDs: []int64{near},
		},
		{name: "price range", filter: models.ListingFilter{MaxPrice: &maxPrice}, wantLen: 1},
		{name: "facility", filter: models.ListingFilter{Facility: "parking"}, wantLen: 1},
		{name: "text", filter: models.ListingFilter{Query: "kandy"}, wantLen: 1},
		{name: "all", filter: models.ListingFilter{}, wantLen: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := storage.SearchListings(ctx, tt.filter)
			require.NoError(t, err)
			if tt.wantIDs != nil {
				ids := make([]int64, 0, len(got))
				for _, l := range got {
					ids = append(ids, l.ID)
				}
				assert.Equal(t, tt.wantIDs, ids)
				return
			}
			assert.Len(t, got, tt.wantLen)
		})
	}
}

func TestStorage_WishlistAndReviews(t *testing.T) {
	storage := setupTestDatabase(t)
	f := &testDataFactory{t: t, storage: storage}
	ctx := context.Background()

	student := f.user(models.RoleStudent)
	id := f.listing(f.user(models.RoleLandlord), 2, 1)

	added, err := storage.ToggleWishlist(ctx, student, id)
	require.NoError(t, err)
	assert.True(t, added)

	wishlisters, err := storage.ListWishlisters(ctx, id)
	require.NoError(t, err)
	require.Len(t, wishlisters, 1)
	assert.Equal(t, student, wishlisters[0].UserUID)

	listings, err := storage.ListWishlist(ctx, student)
	require.NoError(t, err)
	require.Len(t, listings, 1)

	added, err = storage.ToggleWishlist(ctx, student, id)
	require.NoError(t, err)
	assert.False(t, added)

	_, err = storage.ToggleWishlist(ctx, student, 999999)
	require.ErrorIs(t, err, apperr.ErrListingNotFound)

	_, err = storage.AddReview(ctx, models.Review{ListingID: id, UserUID: student, Rating: 4, Comment: "clean"})
	require.NoError(t, err)
	_, err = storage.AddReview(ctx, models.Review{ListingID: id, UserUID: student, Rating: 5})
	require.ErrorIs(t, err, apperr.ErrAlreadyReviewed)

	l, err := storage.GetListing(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, l.RatingCount)
	assert.InDelta(t, 4.0, l.Rating, 0.001)

	reviews, err := storage.ListReviews(ctx, id)
	require.NoError(t, err)
	assert.Len(t, reviews, 1)

	require.NoError(t, storage.IncrementViews(ctx, id))
	require.NoError(t, storage.IncrementContacts(ctx, id))
	l, err = storage.GetListing(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), l.ViewCount)
	assert.Equal(t, int64(1), l.ContactCount)
}

func TestStorage_UpdateAndDeleteListing(t *testing.T) {
	storage := setupTestDatabase(t)
	f := &testDataFactory{t: t, storage: storage}
	ctx := context.Background()

	landlord := f.user(models.RoleLandlord)
	id := f.listing(landlord, 2, 2)

	title := "Annex with garden"
	capacity := 3
	l, err := storage.UpdateListing(ctx, id, models.ListingUpdate{
		Title:      &title,
		Residents:  &capacity,
		Facilities: []string{"wifi", "garden"},
	})
	require.NoError(t, err)
	assert.Equal(t, title, l.Title)
	assert.Equal(t, 3, l.Residents)
	assert.Equal(t, 2, l.CurrentResidents)
	assert.Equal(t, []string{"wifi", "garden"}, l.Facilities)
	assert.Equal(t, "Colombo 07", l.Address)

	shrink := 1
	_, err = storage.UpdateListing(ctx, id, models.ListingUpdate{Residents: &shrink})
	require.ErrorIs(t, err, apperr.ErrInvalidOperation)

	_, err = storage.UpdateListing(ctx, 999999, models.ListingUpdate{Title: &title})
	require.ErrorIs(t, err, apperr.ErrListingNotFound)

	student := f.user(models.RoleStudent)
	_, err = storage.ToggleWishlist(ctx, student, id)
	require.NoError(t, err)

	require.NoError(t, storage.DeleteListing(ctx, id))
	_, err = storage.GetListing(ctx, id)
	require.ErrorIs(t, err, apperr.ErrListingNotFound)
	listings, err := storage.ListWishlist(ctx, student)
	require.NoError(t, err)
	assert.Empty(t, listings)

	require.ErrorIs(t, storage.DeleteListing(ctx, id), apperr.ErrListingNotFound)
}

func TestStorage_UpdateUserProfile(t *testing.T) {
	storage := setupTestDatabase(t)
	f := &testDataFactory{t: t, storage: storage}
	ctx := context.Background()

	uid := f.user(models.RoleStudent)
	_, err := storage.DB.ExecContext(ctx, `UPDATE users SET phone = '+94770000000', is_phone_verified = TRUE WHERE uid = $1`, uid)
	require.NoError(t, err)

	first := "Nimal"
	u, err := storage.UpdateUserProfile(ctx, uid, models.ProfileUpdate{FirstName: &first})
	require.NoError(t, err)
	assert.Equal(t, "Nimal", u.FirstName)
	assert.True(t, u.IsPhoneVerified)

	phone := "+94771234567"
	u, err = storage.UpdateUserProfile(ctx, uid, models.ProfileUpdate{Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, phone, u.Phone)
	assert.Equal(t, "Nimal", u.FirstName)
	assert.False(t, u.IsPhoneVerified)

	_, err = storage.UpdateUserProfile(ctx, uuid.NewString(), models.ProfileUpdate{FirstName: &first})
	require.ErrorIs(t, err, apperr.ErrUserNotFound)
}

func TestStorage_Messages(t *testing.T) {
	storage := setupTestDatabase(t)
	f := &testDataFactory{t: t, storage: storage}
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	student := f.user(models.RoleStudent)
	landlord := f.user(models.RoleLandlord)
	other := f.user(models.RoleStudent)

	for i, m := range []models.Message{
		{SenderUID: student, ToUID: landlord, Text: "is the room free?", CreatedAt: now},
		{SenderUID: landlord, ToUID: student, Text: "yes, come at six", CreatedAt: now.Add(time.Minute)},
		{SenderUID: other, ToUID: landlord, Text: "unrelated", CreatedAt: now.Add(2 * time.Minute)},
	} {
		saved, err := storage.CreateMessage(ctx, m)
		require.NoError(t, err, "message %d", i)
		assert.NotZero(t, saved.ID)
	}

	conversation, err := storage.ListConversation(ctx, landlord, student)
	require.NoError(t, err)
	require.Len(t, conversation, 2)
	assert.Equal(t, "is the room free?", conversation[0].Text)
	assert.Equal(t, landlord, conversation[1].SenderUID)

	_, err = storage.CreateMessage(ctx, models.Message{SenderUID: student, ToUID: uuid.NewString(), Text: "hi", CreatedAt: now})
	require.ErrorIs(t, err, apperr.ErrUserNotFound)
}

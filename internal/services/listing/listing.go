// Package listing реализует объявления: поиск, просмотр с кэшированием,
// учет жильцов, отзывы и уведомления подписчиков избранного.
package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rivve/boarding-house/internal/lib/apperr"
	"github.com/rivve/boarding-house/internal/lib/clock"
	"github.com/rivve/boarding-house/internal/lib/metrics"
	"github.com/rivve/boarding-house/internal/lib/sl"
	"github.com/rivve/boarding-house/internal/models"
	"github.com/rivve/boarding-house/internal/storage/cache"
)

const listingCacheTTL = time.Hour

var (
	ErrInvalidRating    = apperr.New(apperr.KindValidation, "rating must be between 1 and 5")
	ErrInvalidOccupancy = apperr.New(apperr.KindValidation, "current residents must be between 0 and residents")
	ErrNothingToUpdate  = apperr.New(apperr.KindValidation, "nothing to update")
	ErrInvalidListing   = apperr.New(apperr.KindValidation, "title must not be empty, price and residents must not be negative")
)

// Repository хранилище объявлений.
type Repository interface {
	CreateListing(ctx context.Context, l models.Listing) (int64, error)
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	UpdateListing(ctx context.Context, id int64, upd models.ListingUpdate) (*models.Listing, error)
	DeleteListing(ctx context.Context, id int64) error
	SearchListings(ctx context.Context, f models.ListingFilter) ([]*models.Listing, error)
	IncrementViews(ctx context.Context, id int64) error
	IncrementContacts(ctx context.Context, id int64) error
	AddResident(ctx context.Context, id int64) (*models.Listing, error)
	RemoveResident(ctx context.Context, id int64) (*models.Listing, error)
	ListWishlisters(ctx context.Context, listingID int64) ([]models.Wishlister, error)
	AddReview(ctx context.Context, r models.Review) (int64, error)
	ListReviews(ctx context.Context, listingID int64) ([]*models.Review, error)
	GetUserByUID(ctx context.Context, userUID string) (*models.User, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// Events публикация событий заполненности и дедупликация уведомлений.
type Events interface {
	Publish(ctx context.Context, channel string, msg any) error
	ClaimOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Notifier отправка писем пользователям.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// Contact контакты владельца объявления.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type ListingService struct {
	repo      Repository
	cache     Cache
	events    Events
	notifier  Notifier
	clock     clock.Clock
	notifyTTL time.Duration
	baseURL   string
	log       *slog.Logger
}

// NewListingService создает новый экземпляр ListingService.
func NewListingService(repo Repository, cache Cache, events Events, notifier Notifier,
	clk clock.Clock, notifyTTL time.Duration, baseURL string, log *slog.Logger) *ListingService {
	return &ListingService{
		repo:      repo,
		cache:     cache,
		events:    events,
		notifier:  notifier,
		clock:     clk,
		notifyTTL: notifyTTL,
		baseURL:   baseURL,
		log:       log,
	}
}

func cacheKey(id int64) string {
	return fmt.Sprintf("listing:%d", id)
}

// Create создает объявление владельца.
func (s *ListingService) Create(ctx context.Context, landlordUID string, l models.Listing) (int64, error) {
	const op = "listing.Create"
	if l.CurrentResidents < 0 || l.CurrentResidents > l.Residents {
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidOccupancy)
	}
	l.LandlordUID = landlordUID

	id, err := s.repo.CreateListing(ctx, l)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("created new listing", slog.String("op", op), slog.Int64("id", id))
	return id, nil
}

// Update меняет объявление владельца. Если вместимость выросла и появились
// свободные места, уведомляет тех, у кого объявление в избранном.
func (s *ListingService) Update(ctx context.Context, landlordUID string, id int64, upd models.ListingUpdate) (*models.Listing, error) {
	const op = "listing.Update"
	log := s.log.With(slog.String("op", op), slog.Int64("id", id))

	if upd.Empty() {
		return nil, fmt.Errorf("%s: %w", op, ErrNothingToUpdate)
	}
	if (upd.Title != nil && strings.TrimSpace(*upd.Title) == "") ||
		(upd.Price != nil && *upd.Price < 0) ||
		(upd.Residents != nil && *upd.Residents < 0) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidListing)
	}

	before, err := s.owned(ctx, landlordUID, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	l, err := s.repo.UpdateListing(ctx, id, upd)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidOperation) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidOccupancy)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("listing updated")

	if l.Residents == before.Residents {
		if err := s.cache.Invalidate(cacheKey(id)); err != nil {
			log.Warn("failed to remove from cache", sl.Err(err))
		}
		return l, nil
	}
	s.afterOccupancyChange(ctx, log, l)
	if !before.HasVacancy() && l.HasVacancy() {
		s.notifyWishlisters(ctx, log, l)
	}
	return l, nil
}

// Delete удаляет объявление владельца.
func (s *ListingService) Delete(ctx context.Context, landlordUID string, id int64) error {
	const op = "listing.Delete"
	log := s.log.With(slog.String("op", op), slog.Int64("id", id))

	if err := s.checkOwner(ctx, landlordUID, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.DeleteListing(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.cache.Invalidate(cacheKey(id)); err != nil {
		log.Warn("failed to remove from cache", sl.Err(err))
	}
	log.Info("listing deleted")
	return nil
}

// Get возвращает объявление, используя кэш, и увеличивает счетчик просмотров.
func (s *ListingService) Get(ctx context.Context, id int64) (*models.Listing, error) {
	const op = "listing.Get"
	log := s.log.With(slog.String("op", op), slog.Int64("id", id))

	var result *models.Listing
	found, err := s.cache.Get(cacheKey(id), &result)
	if err != nil {
		log.Warn("failed to read from cache", sl.Err(err))
	}
	if !found || result == nil {
		result, err = s.repo.GetListing(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := s.cache.Set(cacheKey(id), result, listingCacheTTL); err != nil {
			log.Warn("failed to add to cache", sl.Err(err))
		}
	}

	if err := s.repo.IncrementViews(ctx, id); err != nil {
		log.Warn("failed to increment views", sl.Err(err))
	}
	return result, nil
}

// Search ищет объявления по фильтру.
func (s *ListingService) Search(ctx context.Context, f models.ListingFilter) ([]*models.Listing, error) {
	const op = "listing.Search"
	listings, err := s.repo.SearchListings(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return listings, nil
}

// AddResident занимает место в объявлении владельца.
func (s *ListingService) AddResident(ctx context.Context, landlordUID string, id int64) (*models.Listing, error) {
	const op = "listing.AddResident"
	log := s.log.With(slog.String("op", op), slog.Int64("id", id))

	if err := s.checkOwner(ctx, landlordUID, id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	l, err := s.repo.AddResident(ctx, id)
	if err != nil {
		metrics.SlotChanges.WithLabelValues("add", "rejected").Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.SlotChanges.WithLabelValues("add", "ok").Inc()
	s.afterOccupancyChange(ctx, log, l)
	return l, nil
}

// RemoveResident освобождает место и уведомляет тех, у кого объявление в избранном.
func (s *ListingService) RemoveResident(ctx context.Context, landlordUID string, id int64) (*models.Listing, error) {
	const op = "listing.RemoveResident"
	log := s.log.With(slog.String("op", op), slog.Int64("id", id))

	if err := s.checkOwner(ctx, landlordUID, id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	l, err := s.repo.RemoveResident(ctx, id)
	if err != nil {
		metrics.SlotChanges.WithLabelValues("remove", "rejected").Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.SlotChanges.WithLabelValues("remove", "ok").Inc()
	s.afterOccupancyChange(ctx, log, l)

	if l.HasVacancy() {
		s.notifyWishlisters(ctx, log, l)
	}
	return l, nil
}

func (s *ListingService) checkOwner(ctx context.Context, landlordUID string, id int64) error {
	_, err := s.owned(ctx, landlordUID, id)
	return err
}

// owned возвращает объявление, если оно принадлежит landlordUID.
func (s *ListingService) owned(ctx context.Context, landlordUID string, id int64) (*models.Listing, error) {
	l, err := s.repo.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.LandlordUID != landlordUID {
		return nil, apperr.ErrForbidden
	}
	return l, nil
}

func (s *ListingService) afterOccupancyChange(ctx context.Context, log *slog.Logger, l *models.Listing) {
	if err := s.cache.Invalidate(cacheKey(l.ID)); err != nil {
		log.Warn("failed to remove from cache", sl.Err(err))
	}
	event := models.OccupancyEvent{
		ListingID:        l.ID,
		Residents:        l.Residents,
		CurrentResidents: l.CurrentResidents,
		At:               s.clock.Now(),
	}
	if err := s.events.Publish(ctx, cache.OccupancyChannel, event); err != nil {
		log.Warn("failed to publish occupancy event", sl.Err(err))
	}
}

// notifyWishlisters не более одного письма на пару (объявление, пользователь) за notifyTTL.
func (s *ListingService) notifyWishlisters(ctx context.Context, log *slog.Logger, l *models.Listing) {
	wishlisters, err := s.repo.ListWishlisters(ctx, l.ID)
	if err != nil {
		log.Error("failed to list wishlisters", sl.Err(err))
		return
	}

	sent := 0
	for _, w := range wishlisters {
		key := fmt.Sprintf("wishlist:notified:%d:%s", l.ID, w.UserUID)
		first, err := s.events.ClaimOnce(ctx, key, s.notifyTTL)
		if err != nil {
			log.Warn("failed to claim notification slot", slog.String("user_uid", w.UserUID), sl.Err(err))
			continue
		}
		if !first {
			continue
		}
		err = s.notifier.Notify(ctx, models.Notification{
			Email:    w.Email,
			Subject:  "A place you saved on RiVVE is available",
			Template: models.TemplateSlotAvailable,
			Data: map[string]any{
				"Username":  w.Username,
				"Title":     l.Title,
				"Address":   l.Address,
				"Available": l.Residents - l.CurrentResidents,
				"URL":       fmt.Sprintf("%s/listings/%d", s.baseURL, l.ID),
			},
		})
		if err != nil {
			log.Error("failed to send slot notification", slog.String("user_uid", w.UserUID), sl.Err(err))
			if err := s.cache.Invalidate(key); err != nil {
				log.Warn("failed to release notification slot", slog.String("user_uid", w.UserUID), sl.Err(err))
			}
			continue
		}
		sent++
	}
	log.Info("wishlisters notified", slog.Int("sent", sent), slog.Int("wishlisters", len(wishlisters)))
}

// AddReview добавляет отзыв и обновляет рейтинг объявления.
func (s *ListingService) AddReview(ctx context.Context, userUID string, listingID int64, rating int, comment string) (int64, error) {
	const op = "listing.AddReview"
	if rating < 1 || rating > 5 {
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidRating)
	}
	id, err := s.repo.AddReview(ctx, models.Review{
		ListingID: listingID,
		UserUID:   userUID,
		Rating:    rating,
		Comment:   comment,
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.cache.Invalidate(cacheKey(listingID)); err != nil {
		s.log.Warn("failed to remove from cache", slog.String("op", op), sl.Err(err))
	}
	return id, nil
}

// Reviews возвращает отзывы объявления.
func (s *ListingService) Reviews(ctx context.Context, listingID int64) ([]*models.Review, error) {
	const op = "listing.Reviews"
	reviews, err := s.repo.ListReviews(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return reviews, nil
}

// Contact учитывает обращение и возвращает контакты владельца.
func (s *ListingService) Contact(ctx context.Context, listingID int64) (*Contact, error) {
	const op = "listing.Contact"
	l, err := s.repo.GetListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	landlord, err := s.repo.GetUserByUID(ctx, l.LandlordUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.IncrementContacts(ctx, listingID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Contact{
		Name:  strings.TrimSpace(landlord.FirstName + " " + landlord.LastName),
		Email: landlord.Email,
		Phone: landlord.Phone,
	}, nil
}

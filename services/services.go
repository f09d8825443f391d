package services

import (
	"errors"
	"strings"
	"time"

	"contractit/models"
	"contractit/uploads"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var validate = validator.New()

// Options tunes the services. Zero values fall back to production defaults.
type Options struct {
	AutoApproveAfter time.Duration
	BcryptCost       int
	Uploads          *uploads.Store
	Now              func() time.Time
}

// Services groups the use cases behind the HTTP handlers.
type Services struct {
	Accounts  *AccountService
	Projects  *ProjectService
	Bids      *BidService
	Payments  *PaymentService
	Portfolio *PortfolioService
}

type base struct {
	db      *gorm.DB
	log     *zap.Logger
	now     func() time.Time
	uploads *uploads.Store
}

func New(db *gorm.DB, log *zap.Logger, opts Options) *Services {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.AutoApproveAfter <= 0 {
		opts.AutoApproveAfter = models.DefaultAutoApproveAfter
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	b := base{db: db, log: log, now: opts.Now, uploads: opts.Uploads}
	return &Services{
		Accounts:  &AccountService{base: b, cost: opts.BcryptCost},
		Projects:  &ProjectService{base: b},
		Bids:      &BidService{base: b},
		Payments:  &PaymentService{base: b, autoApproveAfter: opts.AutoApproveAfter},
		Portfolio: &PortfolioService{base: b},
	}
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

package utils

import (
	"strconv"
	"time"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"house-rent-server/models"
	"house-rent-server/storage"
)

// UserIDMiddleware rejects requests whose {id} path parameter does not match
// the authenticated user.
func UserIDMiddleware(ctx iris.Context) {
	id := ctx.Params().Get("id")
	claims := jwt.Get(ctx).(*AccessToken)
	userID := strconv.FormatUint(uint64(claims.ID), 10)

	if userID != id {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}
	ctx.Next()
}

// SelfOrAdminMiddleware admits the subject user or any admin. Used by the
// verification status endpoint.
func SelfOrAdminMiddleware(ctx iris.Context) {
	id := ctx.Params().Get("id")
	claims := jwt.Get(ctx).(*AccessToken)
	userID := strconv.FormatUint(uint64(claims.ID), 10)

	if userID != id && claims.Role != "admin" {
		JSONError(ctx, iris.StatusForbidden, "forbidden", "you may only view your own verification")
		return
	}
	ctx.Next()
}

// UserIDFromTokenMiddleware extracts the authenticated user ID from the JWT
// and stores it in the request context for routes without an {id} parameter.
func UserIDFromTokenMiddleware(ctx iris.Context) {
	claims := jwt.Get(ctx).(*AccessToken)
	ctx.Values().Set("userID", claims.ID)
	ctx.Values().Set("userRole", claims.Role)
	ctx.Next()
}

// AdminOnlyMiddleware ensures the requester has the admin role.
func AdminOnlyMiddleware(ctx iris.Context) {
	claims := jwt.Get(ctx).(*AccessToken)
	if claims.Role != "admin" {
		JSONError(ctx, iris.StatusForbidden, "forbidden", "admin access required")
		return
	}
	ctx.Values().Set("userID", claims.ID)
	ctx.Next()
}

// EnsureVerifiedLandlord gates house creation: landlords must have a verified
// identity before they can list.
func EnsureVerifiedLandlord(ctx iris.Context) {
	claims := jwt.Get(ctx).(*AccessToken)
	if claims.Role != "landlord" {
		ctx.Next()
		return
	}

	var user models.User
	if err := storage.DB.First(&user, claims.ID).Error; err != nil {
		CreateInternalServerError(ctx)
		return
	}
	if !user.Verified {
		JSONError(ctx, iris.StatusForbidden, "forbidden", "landlord identity verification required")
		return
	}
	ctx.Next()
}

// LimitVerificationAttempts is the daily quota guard in front of identity
// submissions. It lazily initializes the attempts sub-record, resets the
// counter on calendar-day rollover, then re-checks the (possibly reset)
// count — all under a row lock so concurrent submissions from the same user
// cannot slip past the cap before the orchestrator's increment lands.
func LimitVerificationAttempts(ctx iris.Context) {
	claims := jwt.Get(ctx).(*AccessToken)
	now := time.Now()

	blocked := false
	err := storage.DB.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, claims.ID).Error; err != nil {
			return err
		}

		reset := user.VerificationAttempts.RollOver(now)
		if user.VerificationAttempts.Exhausted(now) {
			blocked = true
			return nil
		}
		if reset {
			log.WithField("user", user.ID).Info("reset daily verification attempts")
			return tx.Save(&user).Error
		}
		return nil
	})

	if err != nil {
		if err == gorm.ErrRecordNotFound {
			CreateNotFound(ctx)
			return
		}
		CreateInternalServerError(ctx)
		return
	}

	if blocked {
		log.WithField("user", claims.ID).Warn("blocked: too many verification attempts today")
		JSONError(ctx, iris.StatusTooManyRequests, "too_many_attempts",
			"Too many verification attempts today. Please try again tomorrow.")
		return
	}
	ctx.Next()
}

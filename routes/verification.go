package routes

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
	"golang.org/x/exp/slices"
	"gorm.io/gorm"

	"house-rent-server/models"
	"house-rent-server/services"
	"house-rent-server/storage"
	"house-rent-server/utils"
)

// maxVerificationImageSize caps each uploaded image at 10 MB.
const maxVerificationImageSize = 10 << 20

var verificationService *services.VerificationService

// InitVerification wires the shared verification pipeline built in main.
func InitVerification(svc *services.VerificationService) {
	verificationService = svc
}

func readFormImage(ctx iris.Context, field string) ([]byte, bool) {
	file, info, err := ctx.FormFile(field)
	if err != nil || info == nil {
		return nil, false
	}
	defer file.Close()

	buf, err := io.ReadAll(io.LimitReader(file, maxVerificationImageSize+1))
	if err != nil || len(buf) == 0 {
		return nil, false
	}
	if len(buf) > maxVerificationImageSize {
		return nil, false
	}
	return buf, true
}

// SubmitVerification accepts an identity submission (multipart form with
// idType, idNumber, idImage, selfie), writes the pending record and responds
// immediately; OCR, face matching and uploads run in the background.
func SubmitVerification(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	idType := ctx.FormValue("idType")
	idNumber := ctx.FormValue("idNumber")
	idImage, okID := readFormImage(ctx, "idImage")
	selfie, okSelfie := readFormImage(ctx, "selfie")

	if idType == "" || idNumber == "" || !okID || !okSelfie {
		utils.JSONError(ctx, http.StatusBadRequest, "validation_error", "All fields and images are required")
		return
	}

	submissionID, err := verificationService.Submit(services.SubmitVerificationInput{
		UserID:   claims.ID,
		IDType:   idType,
		IDNumber: idNumber,
		IDImage:  idImage,
		Selfie:   selfie,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			utils.JSONError(ctx, http.StatusBadRequest, "validation_error", err.Error())
		case errors.Is(err, services.ErrUserNotFound):
			utils.CreateNotFound(ctx)
		case errors.Is(err, services.ErrDuplicateIDNumber):
			utils.JSONError(ctx, http.StatusConflict, "duplicate_id_number", err.Error())
		default:
			utils.CreateInternalServerError(ctx)
		}
		return
	}

	ctx.JSON(iris.Map{
		"message":        "Verification submitted, pending outcome",
		"verificationId": submissionID,
	})
}

// VerificationStatus returns the subject user's verified flag, verification
// record and attempt counters. Restricted to the subject user or an admin.
func VerificationStatus(ctx iris.Context) {
	id, err := strconv.ParseUint(ctx.Params().Get("id"), 10, 32)
	if err != nil {
		utils.JSONError(ctx, http.StatusBadRequest, "validation_error", "invalid user id")
		return
	}

	var user models.User
	if dbErr := storage.DB.First(&user, uint(id)).Error; dbErr != nil {
		if errors.Is(dbErr, gorm.ErrRecordNotFound) {
			utils.CreateNotFound(ctx)
			return
		}
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{
		"verified":     user.Verified,
		"verification": user.Verification,
		"attempts":     user.VerificationAttempts,
	})
}

type reviewVerificationInput struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note"`
}

// ReviewVerification lets an admin force a terminal transition on a user's
// verification record, overriding the automatic outcome.
func ReviewVerification(ctx iris.Context) {
	id, err := strconv.ParseUint(ctx.Params().Get("id"), 10, 32)
	if err != nil {
		utils.JSONError(ctx, http.StatusBadRequest, "validation_error", "invalid user id")
		return
	}

	var input reviewVerificationInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	allowed := []string{
		models.VerificationStatusVerified,
		models.VerificationStatusRejected,
		models.VerificationStatusPendingReview,
	}
	if !slices.Contains(allowed, input.Status) {
		utils.JSONError(ctx, http.StatusBadRequest, "validation_error",
			"Invalid status. Must be one of: verified, rejected, pending_review")
		return
	}

	var before models.Verification
	if u, findErr := services.NewGormUserStore().FindByID(uint(id)); findErr == nil && u != nil {
		before = u.Verification
	}

	user, err := verificationService.Review(uint(id), input.Status, input.Note)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.CreateNotFound(ctx)
			return
		}
		utils.CreateInternalServerError(ctx)
		return
	}

	utils.Audit(ctx, "verification.review", "user", user.ID, before, user.Verification)

	ctx.JSON(iris.Map{
		"message":   "User verification " + input.Status,
		"userId":    user.ID,
		"newStatus": user.Verification.Status,
	})
}

// AdminListVerifications returns the verification queue for the dashboard.
func AdminListVerifications(ctx iris.Context) {
	status := ctx.URLParamDefault("status", "")
	page := ctx.URLParamIntDefault("page", 1)
	perPage := ctx.URLParamIntDefault("per_page", 20)
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	q := storage.DB.Model(&models.User{}).Where("verification_status <> ''")
	if status != "" {
		q = q.Where("verification_status = ?", status)
	}

	var total int64
	q.Count(&total)

	var users []models.User
	if err := q.Select("id, name, email, role, verified, " +
		"verification_status, verification_score, verification_reviewer_note, " +
		"verification_created_at, verification_reviewed_at, " +
		"attempt_count, attempt_last_attempt").
		Order("verification_created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&users).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	utils.JSONPage(ctx, users, page, perPage, total)
}

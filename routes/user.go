package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/kataras/iris/v12"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"house-rent-server/models"
	"house-rent-server/services"
	"house-rent-server/storage"
	"house-rent-server/utils"
)

const otpTTL = 10 * time.Minute

var mailer *services.Mailer

// InitUserRoutes wires the shared mailer built in main.
func InitUserRoutes(m *services.Mailer) {
	mailer = m
}

func getAndHandleUserExists(user *models.User, email string) (exists bool, err error) {
	userExistsQuery := storage.DB.Where("email = ?", strings.ToLower(email)).Limit(1).Find(&user)
	if userExistsQuery.Error != nil {
		return false, userExistsQuery.Error
	}
	return userExistsQuery.RowsAffected > 0, nil
}

func hashAndSaltPassword(password string) (hashedPassword string, err error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func issueEmailOTP(user *models.User, kind string) error {
	otp := utils.GenerateOTP(6)
	if otp == "" {
		return errors.New("otp generation failed")
	}
	expires := time.Now().Add(otpTTL)

	if kind == "reset" {
		user.ResetOTP = otp
		user.ResetOTPExpires = &expires
	} else {
		user.EmailOTP = otp
		user.EmailOTPExpires = &expires
	}
	if err := storage.DB.Save(user).Error; err != nil {
		return err
	}
	return mailer.SendOTP(user.Email, otp, kind)
}

func Register(ctx iris.Context) {
	var userInput RegisterUserInput
	if err := ctx.ReadJSON(&userInput); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	role := userInput.Role
	if role != "landlord" {
		role = "tenant"
	}

	var newUser models.User
	userExists, userExistsErr := getAndHandleUserExists(&newUser, userInput.Email)
	if userExistsErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if userExists {
		utils.CreateEmailAlreadyRegistered(ctx)
		return
	}

	hashedPassword, hashErr := hashAndSaltPassword(userInput.Password)
	if hashErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	newUser = models.User{
		Name:     userInput.Name,
		Email:    strings.ToLower(userInput.Email),
		Password: hashedPassword,
		Role:     role,
	}
	if err := storage.DB.Create(&newUser).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	if err := issueEmailOTP(&newUser, "verification"); err != nil {
		log.WithError(err).Warn("could not send registration OTP")
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{
		"message": "Registered. Check your email for the verification code.",
		"userId":  newUser.ID,
	})
}

func Login(ctx iris.Context) {
	var userInput LoginUserInput
	if err := ctx.ReadJSON(&userInput); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var existingUser models.User
	errorMsg := "Invalid email or password."
	userExists, userExistsErr := getAndHandleUserExists(&existingUser, userInput.Email)
	if userExistsErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if !userExists {
		utils.CreateError(iris.StatusUnauthorized, "Credentials Error", errorMsg, ctx)
		return
	}
	if existingUser.SocialLogin {
		utils.CreateError(iris.StatusUnauthorized, "Credentials Error", "Social login user; use your provider to sign in.", ctx)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(existingUser.Password), []byte(userInput.Password)); err != nil {
		utils.CreateError(iris.StatusUnauthorized, "Credentials Error", errorMsg, ctx)
		return
	}

	if !existingUser.EmailVerified {
		utils.CreateError(iris.StatusForbidden, "Email Not Verified",
			"Verify your email with the OTP code before logging in.", ctx)
		return
	}

	returnUser(existingUser, ctx)
}

func VerifyEmailOTP(ctx iris.Context) {
	var input OTPInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var user models.User
	userExists, err := getAndHandleUserExists(&user, input.Email)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if !userExists {
		utils.CreateNotFound(ctx)
		return
	}

	if user.EmailOTP == "" || user.EmailOTP != input.OTP ||
		user.EmailOTPExpires == nil || time.Now().After(*user.EmailOTPExpires) {
		utils.CreateError(iris.StatusBadRequest, "Invalid OTP", "The code is wrong or expired.", ctx)
		return
	}

	user.EmailVerified = true
	user.EmailOTP = ""
	user.EmailOTPExpires = nil
	if err := storage.DB.Save(&user).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	returnUser(user, ctx)
}

func ResendEmailOTP(ctx iris.Context) {
	var input EmailInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var user models.User
	userExists, err := getAndHandleUserExists(&user, input.Email)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	// Do not leak which emails are registered.
	if userExists && !user.EmailVerified {
		if err := issueEmailOTP(&user, "verification"); err != nil {
			log.WithError(err).Warn("could not resend OTP")
		}
	}
	ctx.JSON(iris.Map{"message": "If the account exists, a code has been sent."})
}

func ForgotPassword(ctx iris.Context) {
	var input EmailInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var user models.User
	userExists, err := getAndHandleUserExists(&user, input.Email)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if userExists && !user.SocialLogin {
		if err := issueEmailOTP(&user, "reset"); err != nil {
			log.WithError(err).Warn("could not send reset OTP")
		}
	}
	ctx.JSON(iris.Map{"message": "If the account exists, a reset code has been sent."})
}

func ResetPassword(ctx iris.Context) {
	var input ResetPasswordInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var user models.User
	userExists, err := getAndHandleUserExists(&user, input.Email)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if !userExists || user.ResetOTP == "" || user.ResetOTP != input.OTP ||
		user.ResetOTPExpires == nil || time.Now().After(*user.ResetOTPExpires) {
		utils.CreateError(iris.StatusBadRequest, "Invalid OTP", "The code is wrong or expired.", ctx)
		return
	}

	hashedPassword, hashErr := hashAndSaltPassword(input.Password)
	if hashErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	user.Password = hashedPassword
	user.ResetOTP = ""
	user.ResetOTPExpires = nil
	if err := storage.DB.Save(&user).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"message": "Password updated. You can log in now."})
}

func GoogleLoginOrSignUp(ctx iris.Context) {
	var userInput SocialUserInput
	if err := ctx.ReadJSON(&userInput); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	endpoint := "https://www.googleapis.com/userinfo/v2/me"

	client := &http.Client{}
	req, _ := http.NewRequest(http.MethodGet, endpoint, nil)
	req.Header.Set("Authorization", "Bearer "+userInput.AccessToken)
	res, googleErr := client.Do(req)
	if googleErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	defer res.Body.Close()

	body, bodyErr := io.ReadAll(res.Body)
	if bodyErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	var googleBody GoogleUserRes
	json.Unmarshal(body, &googleBody)

	if googleBody.Email == "" {
		utils.CreateError(iris.StatusUnauthorized, "Credentials Error", "Google token rejected.", ctx)
		return
	}

	socialLoginOrSignUp(ctx, googleBody.Name, googleBody.Email, "Google")
}

func AppleLoginOrSignUp(ctx iris.Context) {
	var userInput AppleUserInput
	if err := ctx.ReadJSON(&userInput); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	res, httpErr := http.Get("https://appleid.apple.com/auth/keys")
	if httpErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	defer res.Body.Close()

	body, bodyErr := io.ReadAll(res.Body)
	if bodyErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	jwks, jwksErr := keyfunc.NewJSON(body)
	if jwksErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	token, tokenErr := jwt.Parse(userInput.IdentityToken, jwks.Keyfunc)
	if tokenErr != nil || !token.Valid {
		utils.CreateError(iris.StatusUnauthorized, "Credentials Error", "Apple identity token rejected.", ctx)
		return
	}

	email := fmt.Sprint(token.Claims.(jwt.MapClaims)["email"])
	if email == "" || email == "<nil>" {
		utils.CreateError(iris.StatusUnauthorized, "Credentials Error", "Apple identity token has no email.", ctx)
		return
	}

	socialLoginOrSignUp(ctx, "", email, "Apple")
}

func socialLoginOrSignUp(ctx iris.Context, name, email, provider string) {
	var user models.User
	userExists, userExistsErr := getAndHandleUserExists(&user, email)
	if userExistsErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	if !userExists {
		user = models.User{
			Name:           name,
			Email:          strings.ToLower(email),
			SocialLogin:    true,
			SocialProvider: provider,
			EmailVerified:  true, // provider already verified the address
		}
		if err := storage.DB.Create(&user).Error; err != nil {
			utils.CreateInternalServerError(ctx)
			return
		}
		returnUser(user, ctx)
		return
	}

	if user.SocialLogin && user.SocialProvider == provider {
		returnUser(user, ctx)
		return
	}

	utils.CreateEmailAlreadyRegistered(ctx)
}

// GetProfile returns the authenticated user's profile.
func GetProfile(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)

	var user models.User
	if err := storage.DB.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.CreateNotFound(ctx)
			return
		}
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(user)
}

func UpdateProfile(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)

	var input UpdateProfileInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var user models.User
	if err := storage.DB.First(&user, userID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	if input.Name != "" {
		user.Name = input.Name
	}
	if input.Location != "" {
		user.Location = input.Location
	}
	if input.Bio != "" {
		user.Bio = input.Bio
	}
	if input.Phone != "" {
		user.Phone = input.Phone
	}
	if input.ProfilePic != "" {
		url, err := storage.UploadBase64Image(input.ProfilePic, "profiles", "")
		if err != nil {
			utils.CreateError(iris.StatusBadRequest, "Upload Error", "Profile picture upload failed.", ctx)
			return
		}
		user.ProfilePic = url
	}

	if err := storage.DB.Save(&user).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(user)
}

func returnUser(user models.User, ctx iris.Context) {
	tokenPair, tokenErr := utils.CreateTokenPair(user.ID)
	if tokenErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{
		"ID":           user.ID,
		"name":         user.Name,
		"email":        user.Email,
		"role":         user.Role,
		"verified":     user.Verified,
		"accessToken":  string(tokenPair.AccessToken),
		"refreshToken": string(tokenPair.RefreshToken),
	})
}

type RegisterUserInput struct {
	Name     string `json:"name" validate:"required,max=256"`
	Email    string `json:"email" validate:"required,max=256,email"`
	Password string `json:"password" validate:"required,min=8,max=256"`
	Role     string `json:"role" validate:"omitempty,oneof=tenant landlord"`
}

type LoginUserInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type OTPInput struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6"`
}

type EmailInput struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordInput struct {
	Email    string `json:"email" validate:"required,email"`
	OTP      string `json:"otp" validate:"required,len=6"`
	Password string `json:"password" validate:"required,min=8,max=256"`
}

type SocialUserInput struct {
	AccessToken string `json:"accessToken" validate:"required"`
}

type AppleUserInput struct {
	IdentityToken string `json:"identityToken" validate:"required"`
}

type GoogleUserRes struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

type UpdateProfileInput struct {
	Name       string `json:"name"`
	Location   string `json:"location"`
	Bio        string `json:"bio"`
	Phone      string `json:"phone"`
	ProfilePic string `json:"profilePic"`
}

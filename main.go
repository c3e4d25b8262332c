package main

import (
	"net/http"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"house-rent-server/routes"
	"house-rent-server/services"
	"house-rent-server/storage"
	"house-rent-server/utils"
)

// requestTimeout bounds the synchronous portion of every request. Background
// verification work is detached and deliberately not subject to it.
const requestTimeout = 2 * time.Minute

func main() {
	godotenv.Load()
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	storage.InitializeDB()
	storage.InitializeRedis()

	// Verification pipeline: preprocessor, OCR, face matcher and uploader
	// behind the orchestrator, with one background worker pool per process.
	verificationSvc := services.NewVerificationService(
		services.NewGormUserStore(),
		services.NewImagePreprocessor(),
		services.NewOCRExtractor(services.NewTesseractRecognizer()),
		services.NewFaceMatcher(),
		services.NewCloudinaryUploader(),
	)
	verificationSvc.RejectDuplicateID = os.Getenv("VERIFICATION_REJECT_DUPLICATE_ID") == "true"
	verificationSvc.Start(2)
	defer verificationSvc.Stop()

	routes.InitVerification(verificationSvc)
	routes.InitUserRoutes(services.NewMailer())

	// Purge accounts that never confirmed their email.
	c := cron.New()
	c.AddFunc("@every 6h", services.CleanupUnverifiedUsers)
	c.Start()
	defer c.Stop()

	app := iris.New()
	app.Validator = validator.New()

	app.AllowMethods(iris.MethodOptions)
	app.UseRouter(func(ctx iris.Context) {
		ctx.Header("Access-Control-Allow-Origin", ctx.GetHeader("Origin"))
		ctx.Header("Vary", "Origin")
		ctx.Header("Access-Control-Allow-Credentials", "true")
		ctx.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With")
		ctx.Header("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		if ctx.Method() == iris.MethodOptions {
			ctx.StatusCode(iris.StatusNoContent)
			return
		}
		ctx.Next()
	})
	app.Use(iris.Compression)

	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	accessTokenVerifier.WithDefaultBlocklist()
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} {
		return new(utils.AccessToken)
	})

	refreshTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("REFRESH_TOKEN_SECRET")))
	refreshTokenVerifier.WithDefaultBlocklist()
	refreshTokenVerifierMiddleware := refreshTokenVerifier.Verify(func() interface{} {
		return new(jwt.Claims)
	})
	refreshTokenVerifier.Extractors = append(refreshTokenVerifier.Extractors, func(ctx iris.Context) string {
		var tokenInput utils.RefreshTokenInput
		if err := ctx.ReadJSON(&tokenInput); err != nil {
			return ""
		}
		return tokenInput.RefreshToken
	})

	user := app.Party("/api/user")
	{
		user.Post("/register", utils.RateLimit("register", 10, time.Minute), routes.Register)
		user.Post("/login", utils.RateLimit("login", 10, time.Minute), routes.Login)
		user.Post("/google", routes.GoogleLoginOrSignUp)
		user.Post("/apple", routes.AppleLoginOrSignUp)
		user.Post("/verify-otp", utils.RateLimit("otp", 10, time.Minute), routes.VerifyEmailOTP)
		user.Post("/resend-otp", utils.RateLimit("otp", 10, time.Minute), routes.ResendEmailOTP)
		user.Post("/forgot-password", utils.RateLimit("otp", 10, time.Minute), routes.ForgotPassword)
		user.Post("/reset-password", utils.RateLimit("otp", 10, time.Minute), routes.ResetPassword)
		user.Post("/refresh", refreshTokenVerifierMiddleware, utils.RefreshToken)

		profile := user.Party("/profile", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware)
		{
			profile.Get("/", routes.GetProfile)
			profile.Patch("/", routes.UpdateProfile)
		}
	}

	verification := app.Party("/api/verification", accessTokenVerifierMiddleware)
	{
		verification.Post("/auto", utils.LimitVerificationAttempts, routes.SubmitVerification)
		verification.Get("/{id:uint}/status", utils.SelfOrAdminMiddleware, routes.VerificationStatus)
		verification.Patch("/{id:uint}/review", utils.AdminOnlyMiddleware, routes.ReviewVerification)
	}

	houses := app.Party("/api/houses")
	{
		houses.Get("/", routes.ListHouses)
		houses.Get("/{id:uint}", routes.GetHouse)
		houses.Post("/", accessTokenVerifierMiddleware, utils.EnsureVerifiedLandlord, routes.CreateHouse)
		houses.Get("/mine", accessTokenVerifierMiddleware, routes.MyHouses)
		houses.Patch("/{id:uint}", accessTokenVerifierMiddleware, routes.UpdateHouse)
		houses.Delete("/{id:uint}", accessTokenVerifierMiddleware, routes.DeleteHouse)
	}

	admin := app.Party("/api/admin", accessTokenVerifierMiddleware, utils.AdminOnlyMiddleware)
	{
		admin.Get("/stats", routes.AdminStats)
		admin.Get("/users", routes.AdminListUsers)
		admin.Get("/verifications", routes.AdminListVerifications)
		admin.Get("/houses/pending", routes.AdminPendingHouses)
		admin.Patch("/houses/{id:uint}/review", routes.AdminReviewHouse)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "5000"
	}

	srv := &http.Server{
		Addr:         ":" + port,
		ReadTimeout:  requestTimeout,
		WriteTimeout: requestTimeout,
	}
	log.Info("server listening on port ", port)
	if err := app.Run(iris.Server(srv)); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

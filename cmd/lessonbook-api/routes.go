package main

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lessonbook-api/internal/handler"
	"github.com/noah-isme/lessonbook-api/internal/middleware"
	"github.com/noah-isme/lessonbook-api/internal/models"
)

type handlers struct {
	auth        *handler.AuthHandler
	lessons     *handler.LessonHandler
	enrollments *handler.EnrollmentHandler
	ledger      *handler.LedgerHandler
	payments    *handler.PaymentHandler
	statements  *handler.StatementHandler
}

type routeGuards struct {
	tokens        middleware.TokenValidator
	internalToken string
}

func registerRoutes(api *gin.RouterGroup, h handlers, guards routeGuards) {
	teacherOnly := middleware.RequireRoles(models.RoleTeacher)
	studentOnly := middleware.RequireRoles(models.RoleStudent)
	selfOrTeacher := middleware.RBAC(middleware.SelfRole, string(models.RoleTeacher))

	api.POST("/auth/login", h.auth.Login)

	payments := api.Group("/payments")
	payments.POST("/confirm", middleware.InternalToken(guards.internalToken), h.payments.Confirm)
	payments.POST("/stripe/webhook", h.payments.StripeWebhook)

	api.GET("/statements/download/:token", h.statements.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(guards.tokens))

	secured.GET("/auth/me", h.auth.Me)

	secured.GET("/lessons", h.lessons.List)
	secured.GET("/lessons/:id", h.lessons.Get)
	secured.POST("/lessons", teacherOnly, h.lessons.Create)
	secured.PATCH("/lessons/:id", teacherOnly, h.lessons.Update)
	secured.DELETE("/lessons/:id", teacherOnly, h.lessons.Delete)
	secured.GET("/teachers/:id/lessons", h.lessons.ListByTeacher)

	secured.GET("/lessons/:id/enrollments", teacherOnly, h.enrollments.ListByLesson)
	secured.POST("/lessons/:id/enrollments", studentOnly, h.enrollments.Enroll)
	secured.PATCH("/enrollments/:id", teacherOnly, h.enrollments.ChangeStatus)
	secured.DELETE("/enrollments/:id", h.enrollments.Cancel)

	students := secured.Group("/students/:id")
	students.GET("/enrollments", selfOrTeacher, h.enrollments.ListByStudent)
	students.GET("/ledger", selfOrTeacher, h.ledger.History)
	students.GET("/ledger/verify", selfOrTeacher, h.ledger.Verify)
	students.POST("/statements", middleware.RBAC(middleware.SelfRole), h.statements.Create)

	secured.GET("/statements/:id", studentOnly, h.statements.Status)
}

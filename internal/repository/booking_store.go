package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/lessonbook-api/internal/models"
)

// BookingTx is the set of row operations available inside one booking transaction.
// Lock* methods take FOR UPDATE row locks held until commit or rollback. Callers lock
// lesson before student before enrollment; lesson creation locks the teacher first.
type BookingTx interface {
	LockTeacher(ctx context.Context, teacherID string) (*models.Teacher, error)

	LockLesson(ctx context.Context, lessonID string) (*models.Lesson, error)
	InsertLesson(ctx context.Context, lesson *models.Lesson) error
	UpdateLesson(ctx context.Context, lesson *models.Lesson) error
	SetLessonFull(ctx context.Context, lessonID string, full bool) error
	DeleteLesson(ctx context.Context, lessonID string) error
	CountTeacherLessonsStartingBetween(ctx context.Context, teacherID string, from, to time.Time) (int, error)

	LockStudent(ctx context.Context, studentID string) (*models.Student, error)
	UpdateCreditBalance(ctx context.Context, studentID string, balance decimal.Decimal) error

	LockEnrollment(ctx context.Context, enrollmentID string) (*models.Enrollment, error)
	FindEnrollmentByPair(ctx context.Context, studentID, lessonID string) (*models.Enrollment, error)
	CountRegistered(ctx context.Context, lessonID string) (int, error)
	ListLessonEnrollments(ctx context.Context, lessonID string) ([]models.Enrollment, error)
	InsertEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	UpdateEnrollmentStatus(ctx context.Context, enrollmentID string, status models.EnrollmentStatus) error
	DeleteEnrollment(ctx context.Context, enrollmentID string) error

	AppendLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error
	FindLedgerEntry(ctx context.Context, entryID string) (*models.LedgerEntry, error)

	FindPaymentByExternalID(ctx context.Context, externalTxnID string) (*models.Payment, error)
	InsertPayment(ctx context.Context, payment *models.Payment) error
}

// BookingStore opens booking transactions against Postgres.
type BookingStore struct {
	transactor *Transactor
}

// NewBookingStore constructs a BookingStore.
func NewBookingStore(transactor *Transactor) *BookingStore {
	return &BookingStore{transactor: transactor}
}

// WithinTx runs fn with repositories bound to a single transaction.
func (s *BookingStore) WithinTx(ctx context.Context, fn func(BookingTx) error) error {
	return s.transactor.WithinTx(ctx, func(tx *sqlx.Tx) error {
		return fn(newBookingTx(tx))
	})
}

type bookingTx struct {
	teachers    *TeacherRepository
	lessons     *LessonRepository
	students    *StudentRepository
	enrollments *EnrollmentRepository
	ledger      *LedgerRepository
	payments    *PaymentRepository
}

func newBookingTx(tx sqlx.ExtContext) *bookingTx {
	return &bookingTx{
		teachers:    NewTeacherRepository(tx),
		lessons:     NewLessonRepository(tx),
		students:    NewStudentRepository(tx),
		enrollments: NewEnrollmentRepository(tx),
		ledger:      NewLedgerRepository(tx),
		payments:    NewPaymentRepository(tx),
	}
}

func (b *bookingTx) LockTeacher(ctx context.Context, teacherID string) (*models.Teacher, error) {
	return b.teachers.LockTeacher(ctx, teacherID)
}

func (b *bookingTx) LockLesson(ctx context.Context, lessonID string) (*models.Lesson, error) {
	return b.lessons.LockLesson(ctx, lessonID)
}

func (b *bookingTx) InsertLesson(ctx context.Context, lesson *models.Lesson) error {
	return b.lessons.InsertLesson(ctx, lesson)
}

func (b *bookingTx) UpdateLesson(ctx context.Context, lesson *models.Lesson) error {
	return b.lessons.UpdateLesson(ctx, lesson)
}

func (b *bookingTx) SetLessonFull(ctx context.Context, lessonID string, full bool) error {
	return b.lessons.SetLessonFull(ctx, lessonID, full)
}

func (b *bookingTx) DeleteLesson(ctx context.Context, lessonID string) error {
	return b.lessons.DeleteLesson(ctx, lessonID)
}

func (b *bookingTx) CountTeacherLessonsStartingBetween(ctx context.Context, teacherID string, from, to time.Time) (int, error) {
	return b.lessons.CountTeacherLessonsStartingBetween(ctx, teacherID, from, to)
}

func (b *bookingTx) LockStudent(ctx context.Context, studentID string) (*models.Student, error) {
	return b.students.LockStudent(ctx, studentID)
}

func (b *bookingTx) UpdateCreditBalance(ctx context.Context, studentID string, balance decimal.Decimal) error {
	return b.students.UpdateCreditBalance(ctx, studentID, balance)
}

func (b *bookingTx) LockEnrollment(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	return b.enrollments.LockEnrollment(ctx, enrollmentID)
}

func (b *bookingTx) FindEnrollmentByPair(ctx context.Context, studentID, lessonID string) (*models.Enrollment, error) {
	return b.enrollments.FindEnrollmentByPair(ctx, studentID, lessonID)
}

func (b *bookingTx) CountRegistered(ctx context.Context, lessonID string) (int, error) {
	return b.enrollments.CountRegistered(ctx, lessonID)
}

func (b *bookingTx) ListLessonEnrollments(ctx context.Context, lessonID string) ([]models.Enrollment, error) {
	return b.enrollments.ListLessonEnrollments(ctx, lessonID)
}

func (b *bookingTx) InsertEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	return b.enrollments.InsertEnrollment(ctx, enrollment)
}

func (b *bookingTx) UpdateEnrollmentStatus(ctx context.Context, enrollmentID string, status models.EnrollmentStatus) error {
	return b.enrollments.UpdateEnrollmentStatus(ctx, enrollmentID, status)
}

func (b *bookingTx) DeleteEnrollment(ctx context.Context, enrollmentID string) error {
	return b.enrollments.DeleteEnrollment(ctx, enrollmentID)
}

func (b *bookingTx) AppendLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return b.ledger.AppendLedgerEntry(ctx, entry)
}

func (b *bookingTx) FindLedgerEntry(ctx context.Context, entryID string) (*models.LedgerEntry, error) {
	return b.ledger.FindLedgerEntry(ctx, entryID)
}

func (b *bookingTx) FindPaymentByExternalID(ctx context.Context, externalTxnID string) (*models.Payment, error) {
	return b.payments.FindPaymentByExternalID(ctx, externalTxnID)
}

func (b *bookingTx) InsertPayment(ctx context.Context, payment *models.Payment) error {
	return b.payments.InsertPayment(ctx, payment)
}

package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lessonbook-api/internal/models"
	"github.com/noah-isme/lessonbook-api/internal/repository"
)

// memoryStore is an in-memory booking database. Transactions are serialized by mu
// and rolled back by restoring a snapshot, mirroring row locks plus ROLLBACK.
type memoryStore struct {
	mu          sync.Mutex
	teachers    map[string]models.Teacher
	lessons     map[string]models.Lesson
	students    map[string]models.Student
	enrollments map[string]models.Enrollment
	ledger      []models.LedgerEntry
	payments    map[string]models.Payment
	seq         int64

	txCalls   int
	failTx    []error
	listCalls int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		teachers:    map[string]models.Teacher{},
		lessons:     map[string]models.Lesson{},
		students:    map[string]models.Student{},
		enrollments: map[string]models.Enrollment{},
		payments:    map[string]models.Payment{},
	}
}

type memorySnapshot struct {
	lessons     map[string]models.Lesson
	students    map[string]models.Student
	enrollments map[string]models.Enrollment
	ledger      []models.LedgerEntry
	payments    map[string]models.Payment
	seq         int64
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memoryStore) snapshot() memorySnapshot {
	return memorySnapshot{
		lessons:     copyMap(m.lessons),
		students:    copyMap(m.students),
		enrollments: copyMap(m.enrollments),
		ledger:      append([]models.LedgerEntry(nil), m.ledger...),
		payments:    copyMap(m.payments),
		seq:         m.seq,
	}
}

func (m *memoryStore) restore(s memorySnapshot) {
	m.lessons = s.lessons
	m.students = s.students
	m.enrollments = s.enrollments
	m.ledger = s.ledger
	m.payments = s.payments
	m.seq = s.seq
}

// WithinTx runs fn under the store lock. Queued failTx errors are returned, one per
// call, before fn runs.
func (m *memoryStore) WithinTx(ctx context.Context, fn func(repository.BookingTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCalls++
	if len(m.failTx) > 0 {
		err := m.failTx[0]
		m.failTx = m.failTx[1:]
		return err
	}
	snap := m.snapshot()
	if err := fn(&memoryTx{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memoryStore) addTeacher(id string) {
	m.teachers[id] = models.Teacher{ID: id, Username: id, FullName: "Teacher " + id}
}

func (m *memoryStore) addStudent(id, credit string) {
	m.students[id] = models.Student{ID: id, Username: id, FullName: "Student " + id, CreditBalance: decimal.RequireFromString(credit)}
}

func (m *memoryStore) addLesson(id, teacherID string, capacity int, price string, start time.Time) {
	m.lessons[id] = models.Lesson{
		ID:          id,
		TeacherID:   teacherID,
		Title:       "Lesson " + id,
		Description: "desc",
		Level:       1,
		Start:       start,
		End:         start.Add(time.Hour),
		Capacity:    capacity,
		Price:       decimal.RequireFromString(price),
	}
}

func (m *memoryStore) balance(t *testing.T, studentID string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	student, ok := m.students[studentID]
	require.True(t, ok)
	return student.CreditBalance.StringFixed(2)
}

func (m *memoryStore) lesson(t *testing.T, id string) models.Lesson {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	lesson, ok := m.lessons[id]
	require.True(t, ok)
	return lesson
}

func (m *memoryStore) entriesFor(studentID string) []models.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LedgerEntry
	for _, entry := range m.ledger {
		if entry.StudentID == studentID {
			out = append(out, entry)
		}
	}
	return out
}

func (m *memoryStore) enrollmentFor(studentID, lessonID string) (models.Enrollment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.LessonID == lessonID {
			return e, true
		}
	}
	return models.Enrollment{}, false
}

func (m *memoryStore) registeredCount(lessonID string) int {
	count := 0
	for _, e := range m.enrollments {
		if e.LessonID == lessonID && e.Status == models.EnrollmentStatusRegistered {
			count++
		}
	}
	return count
}

func pqError(code, constraint string) *pq.Error {
	return &pq.Error{Code: pq.ErrorCode(code), Constraint: constraint}
}

type memoryTx struct {
	m *memoryStore
}

func (tx *memoryTx) LockTeacher(ctx context.Context, teacherID string) (*models.Teacher, error) {
	teacher, ok := tx.m.teachers[teacherID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &teacher, nil
}

func (tx *memoryTx) LockLesson(ctx context.Context, lessonID string) (*models.Lesson, error) {
	lesson, ok := tx.m.lessons[lessonID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &lesson, nil
}

func (tx *memoryTx) InsertLesson(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	lesson.CreatedAt = time.Now().UTC()
	lesson.UpdatedAt = lesson.CreatedAt
	tx.m.lessons[lesson.ID] = *lesson
	return nil
}

func (tx *memoryTx) UpdateLesson(ctx context.Context, lesson *models.Lesson) error {
	current, ok := tx.m.lessons[lesson.ID]
	if !ok {
		return sql.ErrNoRows
	}
	updated := *lesson
	updated.IsFull = current.IsFull
	tx.m.lessons[lesson.ID] = updated
	return nil
}

func (tx *memoryTx) SetLessonFull(ctx context.Context, lessonID string, full bool) error {
	lesson, ok := tx.m.lessons[lessonID]
	if !ok {
		return sql.ErrNoRows
	}
	lesson.IsFull = full
	tx.m.lessons[lessonID] = lesson
	return nil
}

func (tx *memoryTx) DeleteLesson(ctx context.Context, lessonID string) error {
	if _, ok := tx.m.lessons[lessonID]; !ok {
		return sql.ErrNoRows
	}
	delete(tx.m.lessons, lessonID)
	for id, e := range tx.m.enrollments {
		if e.LessonID == lessonID {
			delete(tx.m.enrollments, id)
		}
	}
	return nil
}

func (tx *memoryTx) CountTeacherLessonsStartingBetween(ctx context.Context, teacherID string, from, to time.Time) (int, error) {
	count := 0
	for _, l := range tx.m.lessons {
		if l.TeacherID == teacherID && !l.Start.Before(from) && !l.Start.After(to) {
			count++
		}
	}
	return count, nil
}

func (tx *memoryTx) LockStudent(ctx context.Context, studentID string) (*models.Student, error) {
	student, ok := tx.m.students[studentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &student, nil
}

func (tx *memoryTx) UpdateCreditBalance(ctx context.Context, studentID string, balance decimal.Decimal) error {
	student, ok := tx.m.students[studentID]
	if !ok {
		return sql.ErrNoRows
	}
	if balance.IsNegative() {
		return fmt.Errorf("%w: %w", repository.ErrCheckViolation, pqError("23514", repository.ConstraintStudentCredit))
	}
	student.CreditBalance = balance
	tx.m.students[studentID] = student
	return nil
}

func (tx *memoryTx) LockEnrollment(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	e, ok := tx.m.enrollments[enrollmentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (tx *memoryTx) FindEnrollmentByPair(ctx context.Context, studentID, lessonID string) (*models.Enrollment, error) {
	for _, e := range tx.m.enrollments {
		if e.StudentID == studentID && e.LessonID == lessonID {
			found := e
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (tx *memoryTx) CountRegistered(ctx context.Context, lessonID string) (int, error) {
	return tx.m.registeredCount(lessonID), nil
}

func (tx *memoryTx) ListLessonEnrollments(ctx context.Context, lessonID string) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for _, e := range tx.m.enrollments {
		if e.LessonID == lessonID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tx *memoryTx) InsertEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	if _, err := tx.FindEnrollmentByPair(ctx, enrollment.StudentID, enrollment.LessonID); err == nil {
		return fmt.Errorf("%w: %w", repository.ErrDuplicate, pqError("23505", repository.ConstraintEnrollmentPair))
	}
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	enrollment.CreatedAt = time.Now().UTC()
	enrollment.UpdatedAt = enrollment.CreatedAt
	tx.m.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (tx *memoryTx) UpdateEnrollmentStatus(ctx context.Context, enrollmentID string, status models.EnrollmentStatus) error {
	e, ok := tx.m.enrollments[enrollmentID]
	if !ok {
		return sql.ErrNoRows
	}
	e.Status = status
	tx.m.enrollments[enrollmentID] = e
	return nil
}

func (tx *memoryTx) DeleteEnrollment(ctx context.Context, enrollmentID string) error {
	if _, ok := tx.m.enrollments[enrollmentID]; !ok {
		return sql.ErrNoRows
	}
	delete(tx.m.enrollments, enrollmentID)
	return nil
}

func (tx *memoryTx) AppendLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if entry.NewCredit.IsNegative() {
		return fmt.Errorf("%w: %w", repository.ErrCheckViolation, pqError("23514", repository.ConstraintLedgerNewCredit))
	}
	tx.m.seq++
	entry.Seq = tx.m.seq
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()
	tx.m.ledger = append(tx.m.ledger, *entry)
	return nil
}

func (tx *memoryTx) FindLedgerEntry(ctx context.Context, entryID string) (*models.LedgerEntry, error) {
	for _, entry := range tx.m.ledger {
		if entry.ID == entryID {
			found := entry
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (tx *memoryTx) FindPaymentByExternalID(ctx context.Context, externalTxnID string) (*models.Payment, error) {
	payment, ok := tx.m.payments[externalTxnID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &payment, nil
}

func (tx *memoryTx) InsertPayment(ctx context.Context, payment *models.Payment) error {
	if _, ok := tx.m.payments[payment.ExternalTxnID]; ok {
		return fmt.Errorf("%w: %w", repository.ErrDuplicate, pqError("23505", repository.ConstraintPaymentExternalTxn))
	}
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	payment.CreatedAt = time.Now().UTC()
	tx.m.payments[payment.ExternalTxnID] = *payment
	return nil
}

// Pool-side readers over the same store.

type memoryEnrollments struct{ m *memoryStore }

func (r memoryEnrollments) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (r memoryEnrollments) details(match func(models.Enrollment) bool) []models.EnrollmentDetail {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.EnrollmentDetail
	for _, e := range r.m.enrollments {
		if !match(e) {
			continue
		}
		lesson := r.m.lessons[e.LessonID]
		out = append(out, models.EnrollmentDetail{
			Enrollment:  e,
			StudentName: r.m.students[e.StudentID].FullName,
			LessonTitle: lesson.Title,
			LessonStart: lesson.Start,
			TeacherID:   lesson.TeacherID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r memoryEnrollments) ListDetailsByLesson(ctx context.Context, lessonID string) ([]models.EnrollmentDetail, error) {
	return r.details(func(e models.Enrollment) bool { return e.LessonID == lessonID }), nil
}

func (r memoryEnrollments) ListDetailsByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	return r.details(func(e models.Enrollment) bool { return e.StudentID == studentID }), nil
}

type memoryLessons struct{ m *memoryStore }

func (r memoryLessons) FindByID(ctx context.Context, id string) (*models.LessonDetail, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	lesson, ok := r.m.lessons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.LessonDetail{
		Lesson:          lesson,
		TeacherName:     r.m.teachers[lesson.TeacherID].FullName,
		RegisteredCount: r.m.registeredCount(id),
	}, nil
}

func (r memoryLessons) List(ctx context.Context, filter models.LessonFilter) ([]models.LessonDetail, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.listCalls++
	var out []models.LessonDetail
	for _, lesson := range r.m.lessons {
		if filter.TeacherID != "" && lesson.TeacherID != filter.TeacherID {
			continue
		}
		if filter.AvailableOnly && lesson.IsFull {
			continue
		}
		out = append(out, models.LessonDetail{Lesson: lesson, RegisteredCount: r.m.registeredCount(lesson.ID)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, len(out), nil
}

type memoryStudents struct{ m *memoryStore }

func (r memoryStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	student, ok := r.m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &student, nil
}

func (r memoryStudents) IsEnrolledWithTeacher(ctx context.Context, studentID, teacherID string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, e := range r.m.enrollments {
		if e.StudentID == studentID && r.m.lessons[e.LessonID].TeacherID == teacherID {
			return true, nil
		}
	}
	return false, nil
}

type memoryLedger struct{ m *memoryStore }

func (r memoryLedger) ListByStudent(ctx context.Context, studentID string) ([]models.LedgerEntry, error) {
	return r.m.entriesFor(studentID), nil
}

func studentActor(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent, Username: id}
}

func teacherActor(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleTeacher, Username: id}
}

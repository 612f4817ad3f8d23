package domain

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// Difficulty grades a quiz.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// QuestionType discriminates how a question is answered and graded.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionNumeric        QuestionType = "numeric"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionOpen           QuestionType = "open"
)

// FeedbackMode controls when students see correctness feedback.
type FeedbackMode string

const (
	FeedbackImmediate FeedbackMode = "immediate"
	FeedbackDeferred  FeedbackMode = "deferred"
	FeedbackNone      FeedbackMode = "none"
)

// Role is the coarse authorization role attached by the auth middleware.
type Role string

const (
	RoleStudent Role = "student"
	RoleEditor  Role = "editor"
	RoleAdmin   Role = "admin"
)

// User is a registered account. Creator relations only ever expose the
// public identity (name, email).
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID    string `bun:"id,pk" json:"id,omitempty"`
	Name  string `bun:"name,notnull" json:"name"`
	Email string `bun:"email,notnull" json:"email"`
	Role  Role   `bun:"role,notnull" json:"role,omitempty"`
}

// Group is a named set of students used as an assignment target.
type Group struct {
	bun.BaseModel `bun:"table:groups,alias:g"`

	ID      string  `bun:"id,pk" json:"id"`
	Name    string  `bun:"name,notnull" json:"name"`
	Members []*User `bun:"m2m:group_members,join:Group=User" json:"members,omitempty"`

	// MemberCount is filled by listing queries, not stored.
	MemberCount int `bun:"member_count,scanonly" json:"member_count,omitempty"`
}

// GroupMember joins students into groups.
type GroupMember struct {
	bun.BaseModel `bun:"table:group_members"`

	GroupID string `bun:"group_id,pk"`
	UserID  string `bun:"user_id,pk"`
	Group   *Group `bun:"rel:belongs-to,join:group_id=id"`
	User    *User  `bun:"rel:belongs-to,join:user_id=id"`
}

// Question belongs to exactly one quiz. Keywords holds free-form grading
// data as JSON; for option-bearing types it additionally carries the option
// list under an "options" key.
type Question struct {
	bun.BaseModel `bun:"table:questions,alias:qs"`

	ID             string          `bun:"id,pk" json:"id"`
	QuizID         string          `bun:"quiz_id,notnull" json:"quiz_id"`
	Type           QuestionType    `bun:"type,notnull" json:"type"`
	Content        string          `bun:"content,notnull" json:"content"`
	ExpectedAnswer string          `bun:"expected_answer" json:"expected_answer"`
	Explanation    string          `bun:"explanation" json:"explanation"`
	Tolerance      float64         `bun:"tolerance" json:"tolerance"`
	Weight         float64         `bun:"weight" json:"weight"`
	Keywords       json.RawMessage `bun:"keywords,type:jsonb" json:"keywords,omitempty"`
	OrderIndex     int             `bun:"order_index" json:"order_index"`
}

// Quiz is the aggregate root: metadata, an ordered question list and the
// assignment targets (direct students plus groups).
type Quiz struct {
	bun.BaseModel `bun:"table:quizzes,alias:q"`

	ID           string       `bun:"id,pk" json:"id"`
	Title        string       `bun:"title,notnull" json:"title"`
	Description  string       `bun:"description" json:"description"`
	Difficulty   Difficulty   `bun:"difficulty,notnull" json:"difficulty"`
	IsPublished  bool         `bun:"is_published,notnull" json:"is_published"`
	StartAt      *time.Time   `bun:"start_at" json:"start_at"`
	EndAt        *time.Time   `bun:"end_at" json:"end_at"`
	FeedbackMode FeedbackMode `bun:"feedback_mode" json:"feedback_mode"`
	TimeLimit    *int         `bun:"time_limit" json:"time_limit"`
	AssignToAll  bool         `bun:"assign_to_all,notnull" json:"assign_to_all"`
	CreatedBy    string       `bun:"created_by,notnull" json:"created_by"`
	CreatedAt    time.Time    `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt    time.Time    `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`

	Creator         *User       `bun:"rel:belongs-to,join:created_by=id" json:"creator,omitempty"`
	Questions       []*Question `bun:"rel:has-many,join:id=quiz_id" json:"questions,omitempty"`
	AllowedStudents []*User     `bun:"m2m:quiz_allowed_students,join:Quiz=User" json:"allowed_students,omitempty"`
	AllowedGroups   []*Group    `bun:"m2m:quiz_allowed_groups,join:Quiz=Group" json:"allowed_groups,omitempty"`

	// QuestionCount is filled by listing queries, not stored.
	QuestionCount int `bun:"question_count,scanonly" json:"question_count,omitempty"`
}

// QuizAllowedStudent joins quizzes to directly assigned students.
type QuizAllowedStudent struct {
	bun.BaseModel `bun:"table:quiz_allowed_students"`

	QuizID string `bun:"quiz_id,pk"`
	UserID string `bun:"user_id,pk"`
	Quiz   *Quiz  `bun:"rel:belongs-to,join:quiz_id=id"`
	User   *User  `bun:"rel:belongs-to,join:user_id=id"`
}

// QuizAllowedGroup joins quizzes to assigned groups.
type QuizAllowedGroup struct {
	bun.BaseModel `bun:"table:quiz_allowed_groups"`

	QuizID  string `bun:"quiz_id,pk"`
	GroupID string `bun:"group_id,pk"`
	Quiz    *Quiz  `bun:"rel:belongs-to,join:quiz_id=id"`
	Group   *Group `bun:"rel:belongs-to,join:group_id=id"`
}

// WindowOpen reports whether the availability window contains now.
// Null bounds are unbounded on their side; both bounds are inclusive.
func (q *Quiz) WindowOpen(now time.Time) bool {
	if q.StartAt != nil && now.Before(*q.StartAt) {
		return false
	}
	if q.EndAt != nil && now.After(*q.EndAt) {
		return false
	}
	return true
}

// AvailableToStudent evaluates the visibility rule: the quiz must be
// published, its window must contain now, and the student must be covered
// by assign-to-all, a direct allowance, or membership in an allowed group.
// AllowedStudents and AllowedGroups must be loaded; isMember answers group
// membership for the student.
func (q *Quiz) AvailableToStudent(studentID string, isMember func(groupID string) bool, now time.Time) bool {
	if !q.IsPublished || !q.WindowOpen(now) {
		return false
	}
	if q.AssignToAll {
		return true
	}
	for _, s := range q.AllowedStudents {
		if s.ID == studentID {
			return true
		}
	}
	for _, g := range q.AllowedGroups {
		if isMember(g.ID) {
			return true
		}
	}
	return false
}

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"mathwise-quiz-service/internal/app"
	"mathwise-quiz-service/internal/domain"
)

// QuizStore is an in-memory implementation of app.QuizStore and
// app.SelectionReader. It backs unit tests and lets the server run without
// Postgres configured.
type QuizStore struct {
	mu              sync.RWMutex
	users           map[string]domain.User
	groupNames      map[string]string
	groupMembers    map[string]map[string]struct{}
	quizzes         map[string]domain.Quiz
	questions       map[string][]domain.Question
	allowedStudents map[string]map[string]struct{}
	allowedGroups   map[string]map[string]struct{}
}

func NewQuizStore() *QuizStore {
	return &QuizStore{
		users:           make(map[string]domain.User),
		groupNames:      make(map[string]string),
		groupMembers:    make(map[string]map[string]struct{}),
		quizzes:         make(map[string]domain.Quiz),
		questions:       make(map[string][]domain.Question),
		allowedStudents: make(map[string]map[string]struct{}),
		allowedGroups:   make(map[string]map[string]struct{}),
	}
}

// AddUser seeds an account.
func (s *QuizStore) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// AddGroup seeds a group with the given student members.
func (s *QuizStore) AddGroup(id, name string, memberIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groupNames[id] = name
	members := make(map[string]struct{}, len(memberIDs))
	for _, m := range memberIDs {
		members[m] = struct{}{}
	}
	s.groupMembers[id] = members
}

func (s *QuizStore) CreateQuiz(ctx context.Context, quiz *domain.Quiz, allowedStudents, allowedGroups []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := *quiz
	meta.Questions = nil
	meta.Creator = nil
	meta.AllowedStudents = nil
	meta.AllowedGroups = nil
	s.quizzes[quiz.ID] = meta

	questions := make([]domain.Question, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		questions = append(questions, *q)
	}
	s.questions[quiz.ID] = questions

	s.allowedStudents[quiz.ID] = toSet(allowedStudents)
	s.allowedGroups[quiz.ID] = toSet(allowedGroups)
	return nil
}

func (s *QuizStore) GetQuiz(ctx context.Context, id string) (*domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return nil, domain.ErrQuizNotFound
	}
	out := quiz
	out.Creator = s.creatorLocked(quiz.CreatedBy)
	out.Questions = s.questionsLocked(id)
	out.QuestionCount = len(out.Questions)
	for sid := range s.allowedStudents[id] {
		u := s.users[sid]
		out.AllowedStudents = append(out.AllowedStudents, &domain.User{ID: sid, Name: u.Name, Email: u.Email})
	}
	for gid := range s.allowedGroups[id] {
		out.AllowedGroups = append(out.AllowedGroups, &domain.Group{ID: gid, Name: s.groupNames[gid]})
	}
	return &out, nil
}

func (s *QuizStore) ListQuizzes(ctx context.Context, filter app.ListFilter) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Quiz
	for id, quiz := range s.quizzes {
		if filter.CreatedBy != "" && quiz.CreatedBy != filter.CreatedBy {
			continue
		}
		if filter.Published != nil && quiz.IsPublished != *filter.Published {
			continue
		}
		item := quiz
		item.Creator = s.creatorLocked(quiz.CreatedBy)
		item.QuestionCount = len(s.questions[id])
		out = append(out, item)
	}
	sortQuizzes(out)
	return out, nil
}

func (s *QuizStore) ListAvailable(ctx context.Context, studentID string, now time.Time) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	isMember := func(groupID string) bool {
		_, ok := s.groupMembers[groupID][studentID]
		return ok
	}
	var out []domain.Quiz
	for id, quiz := range s.quizzes {
		candidate := quiz
		for sid := range s.allowedStudents[id] {
			candidate.AllowedStudents = append(candidate.AllowedStudents, &domain.User{ID: sid})
		}
		for gid := range s.allowedGroups[id] {
			candidate.AllowedGroups = append(candidate.AllowedGroups, &domain.Group{ID: gid})
		}
		if !candidate.AvailableToStudent(studentID, isMember, now) {
			continue
		}
		item := quiz
		item.Creator = s.creatorLocked(quiz.CreatedBy)
		item.QuestionCount = len(s.questions[id])
		out = append(out, item)
	}
	sortQuizzes(out)
	return out, nil
}

func (s *QuizStore) UpdateQuiz(ctx context.Context, quizID string, changes *app.QuizChanges) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quizID]; !ok {
		return domain.ErrQuizNotFound
	}

	// Validate every in-place question update before touching anything so a
	// bad entry leaves the quiz unchanged, matching the transactional store.
	existing := s.questions[quizID]
	for _, change := range changes.Questions {
		if change.IsNew {
			continue
		}
		if indexOfQuestion(existing, change.Question.ID) < 0 {
			return domain.ErrQuestionNotFound
		}
	}

	meta := changes.Meta
	meta.Questions = nil
	meta.Creator = nil
	meta.AllowedStudents = nil
	meta.AllowedGroups = nil
	meta.QuestionCount = 0
	s.quizzes[quizID] = meta

	if changes.AllowedStudents != nil {
		s.allowedStudents[quizID] = toSet(*changes.AllowedStudents)
	}
	if changes.AllowedGroups != nil {
		s.allowedGroups[quizID] = toSet(*changes.AllowedGroups)
	}

	for _, change := range changes.Questions {
		if change.IsNew {
			existing = append(existing, change.Question)
			continue
		}
		existing[indexOfQuestion(existing, change.Question.ID)] = change.Question
	}
	s.questions[quizID] = existing
	return nil
}

func (s *QuizStore) SelectionData(ctx context.Context) (*app.SelectionData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data := &app.SelectionData{}
	for _, u := range s.users {
		if u.Role != domain.RoleStudent {
			continue
		}
		data.Students = append(data.Students, domain.User{ID: u.ID, Name: u.Name, Email: u.Email})
	}
	sort.Slice(data.Students, func(i, j int) bool { return data.Students[i].Name < data.Students[j].Name })
	for id, name := range s.groupNames {
		data.Groups = append(data.Groups, domain.Group{ID: id, Name: name, MemberCount: len(s.groupMembers[id])})
	}
	sort.Slice(data.Groups, func(i, j int) bool { return data.Groups[i].Name < data.Groups[j].Name })
	return data, nil
}

func (s *QuizStore) creatorLocked(userID string) *domain.User {
	u, ok := s.users[userID]
	if !ok {
		return nil
	}
	return &domain.User{Name: u.Name, Email: u.Email}
}

func (s *QuizStore) questionsLocked(quizID string) []*domain.Question {
	stored := s.questions[quizID]
	out := make([]*domain.Question, 0, len(stored))
	for i := range stored {
		q := stored[i]
		out = append(out, &q)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

func indexOfQuestion(questions []domain.Question, id string) int {
	for i := range questions {
		if questions[i].ID == id {
			return i
		}
	}
	return -1
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sortQuizzes(quizzes []domain.Quiz) {
	sort.Slice(quizzes, func(i, j int) bool {
		if !quizzes[i].CreatedAt.Equal(quizzes[j].CreatedAt) {
			return quizzes[i].CreatedAt.Before(quizzes[j].CreatedAt)
		}
		return quizzes[i].ID < quizzes[j].ID
	})
}
